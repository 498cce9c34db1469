package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/datalake-platform/datalake/fault"
	"github.com/datalake-platform/datalake/model"
)

// HasAggregation reports whether any selection carries an aggregation.
func HasAggregation(selects []model.SelectColumn) bool {
	for _, s := range selects {
		if s.Aggregation != "" {
			return true
		}
	}
	return false
}

// Aggregate evaluates an aggregated select list. Rows are grouped by the
// groupBy columns; when groupBy is absent the non-aggregated select entries
// form the implicit grouping key, so a fully aggregated select over an empty
// input still yields a single global row. Plain select entries outside the
// grouping key take the group's first value.
func Aggregate(rel *Relation, selects []model.SelectColumn, groupBy []string) (*Relation, error) {
	if len(groupBy) == 0 {
		for _, s := range selects {
			if s.Aggregation == "" {
				groupBy = append(groupBy, s.Column)
			}
		}
	}

	keyIdx := make([]int, len(groupBy))
	for i, name := range groupBy {
		idx := rel.ColumnIndex(name)
		if idx < 0 {
			return nil, fault.New(fault.KindExecution, "unknown group by column %q", name)
		}
		keyIdx[i] = idx
	}

	selIdx := make([]int, len(selects))
	for i, s := range selects {
		idx := rel.ColumnIndex(s.Column)
		if idx < 0 && !(strings.EqualFold(s.Aggregation, "count") && s.Column == "*") {
			return nil, fault.New(fault.KindExecution, "unknown column %q", s.Column)
		}
		selIdx[i] = idx
	}

	// group rows preserving first-seen key order
	groups := map[string][][]interface{}{}
	var order []string
	for _, row := range rel.Rows {
		key := groupKey(row, keyIdx)
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}
	if len(groupBy) == 0 && len(order) == 0 {
		order = append(order, "")
		groups[""] = nil
	}

	cols := make([]Column, len(selects))
	for i, s := range selects {
		cols[i] = Column{Name: s.OutputName(), Type: aggregateType(rel, selIdx[i], s.Aggregation)}
	}

	out := &Relation{Columns: cols, Rows: make([][]interface{}, 0, len(order))}
	for _, key := range order {
		rows := groups[key]
		result := make([]interface{}, len(selects))
		for i, s := range selects {
			v, err := aggregateColumn(rows, selIdx[i], s.Aggregation)
			if err != nil {
				return nil, err
			}
			result[i] = v
		}
		out.Rows = append(out.Rows, result)
	}
	return out, nil
}

func groupKey(row []interface{}, keyIdx []int) string {
	var sb strings.Builder
	for _, idx := range keyIdx {
		sb.WriteString(cellKey(row[idx]))
		sb.WriteByte(0x1f)
	}
	return sb.String()
}

// cellKey renders a cell into a collision-safe grouping key. The type prefix
// keeps int64(1) and "1" in separate groups.
func cellKey(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return "\x00"
	case time.Time:
		return "t:" + t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

func aggregateColumn(rows [][]interface{}, idx int, agg string) (interface{}, error) {
	if agg == "" {
		if len(rows) == 0 {
			return nil, nil
		}
		return rows[0][idx], nil
	}

	switch strings.ToLower(agg) {
	case "count":
		if idx < 0 {
			return int64(len(rows)), nil
		}
		var n int64
		for _, row := range rows {
			if row[idx] != nil {
				n++
			}
		}
		return n, nil

	case "sum", "avg", "average":
		var sum float64
		var n int64
		allInt := true
		for _, row := range rows {
			v := row[idx]
			if v == nil {
				continue
			}
			f, ok := toFloat(v)
			if !ok {
				return nil, fault.New(fault.KindExecution, "aggregation %s over non-numeric column", agg)
			}
			if _, isInt := v.(int64); !isInt {
				allInt = false
			}
			sum += f
			n++
		}
		if n == 0 {
			return nil, nil
		}
		if strings.EqualFold(agg, "sum") {
			if allInt {
				return int64(sum), nil
			}
			return sum, nil
		}
		return sum / float64(n), nil

	case "min", "max":
		var best interface{}
		for _, row := range rows {
			v := row[idx]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c := compareValues(v, best)
			if (strings.EqualFold(agg, "min") && c < 0) || (strings.EqualFold(agg, "max") && c > 0) {
				best = v
			}
		}
		return best, nil

	case "first":
		for _, row := range rows {
			if row[idx] != nil {
				return row[idx], nil
			}
		}
		return nil, nil

	case "last":
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i][idx] != nil {
				return rows[i][idx], nil
			}
		}
		return nil, nil

	default:
		return nil, fault.New(fault.KindExecution, "unsupported aggregation %q", agg)
	}
}

// aggregateType determines the output column type for an aggregated column.
func aggregateType(rel *Relation, idx int, agg string) string {
	switch strings.ToLower(agg) {
	case "count":
		return TypeInteger
	case "avg", "average":
		return TypeDouble
	case "sum":
		if idx >= 0 && rel.Columns[idx].Type == TypeInteger {
			return TypeInteger
		}
		return TypeDouble
	}
	if idx >= 0 {
		return rel.Columns[idx].Type
	}
	return TypeString
}
