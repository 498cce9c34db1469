package engine

import (
	"regexp"
	"strings"
	"time"

	"github.com/datalake-platform/datalake/common"
	"github.com/datalake-platform/datalake/model"
)

// ApplyFilters keeps the rows satisfying every condition. Conditions with an
// unknown operator or a column the relation does not have are dropped with a
// warning instead of failing the query. Null cells satisfy only is_null.
func ApplyFilters(rel *Relation, filters []model.FilterCondition) *Relation {
	if len(filters) == 0 {
		return rel
	}

	type boundFilter struct {
		model.FilterCondition
		col int
	}
	var bound []boundFilter
	for _, f := range filters {
		if !model.ValidOperator(f.Operator) {
			common.Logger.WithFields(map[string]interface{}{
				"column":   f.Column,
				"operator": f.Operator,
			}).Warn("dropping filter with unsupported operator")
			continue
		}
		idx := rel.ColumnIndex(f.Column)
		if idx < 0 {
			common.Logger.WithField("column", f.Column).Warn("dropping filter on unknown column")
			continue
		}
		bound = append(bound, boundFilter{f, idx})
	}
	if len(bound) == 0 {
		return rel
	}

	out := &Relation{Columns: rel.Columns}
	for _, row := range rel.Rows {
		keep := true
		for _, f := range bound {
			if !matches(row[f.col], f.FilterCondition) {
				keep = false
				break
			}
		}
		if keep {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}

func matches(cell interface{}, f model.FilterCondition) bool {
	op := strings.ToLower(f.Operator)

	switch op {
	case "is_null":
		return cell == nil
	case "is_not_null":
		return cell != nil
	}
	if cell == nil {
		return false
	}

	switch op {
	case "=", "==":
		return compareCell(cell, f.Value) == 0
	case "!=", "<>":
		return compareCell(cell, f.Value) != 0
	case "<":
		return compareCell(cell, f.Value) < 0
	case "<=":
		return compareCell(cell, f.Value) <= 0
	case ">":
		return compareCell(cell, f.Value) > 0
	case ">=":
		return compareCell(cell, f.Value) >= 0
	case "between":
		return compareCell(cell, f.Value) >= 0 && compareCell(cell, f.Value2) <= 0
	case "like":
		pattern, ok := f.Value.(string)
		if !ok {
			return false
		}
		s, ok := cell.(string)
		if !ok {
			return false
		}
		return likeMatch(s, pattern)
	case "in":
		values, ok := f.Value.([]interface{})
		if !ok {
			return false
		}
		for _, v := range values {
			if compareCell(cell, v) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// compareCell compares a typed cell against a raw JSON filter value, coercing
// the value toward the cell's type. Dates accept the supported textual
// layouts.
func compareCell(cell, value interface{}) int {
	if ts, ok := cell.(time.Time); ok {
		if s, ok := value.(string); ok {
			if parsed := parseDate(s); parsed != nil {
				return compareValues(ts, *parsed)
			}
		}
	}
	if b, ok := cell.(bool); ok {
		if vb, ok := value.(bool); ok {
			return compareValues(b, vb)
		}
	}
	return compareValues(cell, value)
}

// likeMatch implements SQL LIKE with % and _ wildcards.
func likeMatch(s, pattern string) bool {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}
