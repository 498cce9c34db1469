package engine

import (
	"github.com/datalake-platform/datalake/model"
)

// Execute runs a query spec against a materialized relation. Stages apply in
// a fixed order: filter, aggregate or project, sort, then offset and limit.
// OrderBy names refer to output column names, so ordering by an aggregation
// alias works.
func Execute(rel *Relation, spec *model.QuerySpec) (*Relation, error) {
	out := ApplyFilters(rel, spec.Filters)

	var err error
	if len(spec.Select) > 0 || len(spec.GroupBy) > 0 {
		if HasAggregation(spec.Select) || len(spec.GroupBy) > 0 {
			out, err = Aggregate(out, spec.Select, spec.GroupBy)
			if err != nil {
				return nil, err
			}
		} else {
			// a bare * expands to every column of the input
			var names, outNames []string
			for _, s := range spec.Select {
				if s.Column == "*" {
					for _, c := range out.Columns {
						names = append(names, c.Name)
						outNames = append(outNames, c.Name)
					}
					continue
				}
				names = append(names, s.Column)
				outNames = append(outNames, s.OutputName())
			}
			out, err = out.Project(names)
			if err != nil {
				return nil, err
			}
			cols := make([]Column, len(out.Columns))
			copy(cols, out.Columns)
			for i := range cols {
				cols[i].Name = outNames[i]
			}
			out = &Relation{Columns: cols, Rows: out.Rows}
		}
	}

	out, err = Sort(out, spec.OrderBy)
	if err != nil {
		return nil, err
	}

	offset := 0
	if spec.Offset != nil {
		offset = *spec.Offset
	}
	return out.Slice(offset, spec.Limit), nil
}
