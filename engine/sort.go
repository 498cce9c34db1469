package engine

import (
	"sort"

	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// Sort orders the relation by the given output columns. The sort is stable,
// so rows equal under every ordering keep their input order.
func Sort(rel *Relation, orderBy []model.OrderBy) (*Relation, error) {
	if len(orderBy) == 0 {
		return rel, nil
	}

	type key struct {
		idx  int
		desc bool
	}
	keys := make([]key, len(orderBy))
	for i, o := range orderBy {
		idx := rel.ColumnIndex(o.Column)
		if idx < 0 {
			return nil, fault.New(fault.KindExecution, "unknown order by column %q", o.Column)
		}
		keys[i] = key{idx: idx, desc: o.Descending()}
	}

	out := &Relation{Columns: rel.Columns, Rows: make([][]interface{}, len(rel.Rows))}
	copy(out.Rows, rel.Rows)

	sort.SliceStable(out.Rows, func(i, j int) bool {
		for _, k := range keys {
			c := compareValues(out.Rows[i][k.idx], out.Rows[j][k.idx])
			if c == 0 {
				continue
			}
			if k.desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out, nil
}
