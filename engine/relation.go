// Package engine implements the in-process columnar execution pipeline:
// CSV ingestion with type inference, predicate filtering, grouped
// aggregation, ordering, pagination, and parquet serialization.
//
// Cell values are one of int64, float64, bool, string, time.Time or nil.
// Anything else entering a Relation is a programming error.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/datalake-platform/datalake/fault"
)

// Logical column types.
const (
	TypeInteger = "integer"
	TypeDouble  = "double"
	TypeBoolean = "boolean"
	TypeDate    = "date"
	TypeString  = "string"
)

// Column is a named, typed column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relation is a fully materialized table: a column list and rows of cells in
// column order.
type Relation struct {
	Columns []Column
	Rows    [][]interface{}
}

// NewRelation creates an empty relation with the given columns.
func NewRelation(cols []Column) *Relation {
	return &Relation{Columns: cols}
}

// ColumnIndex returns the position of the named column, or -1.
func (r *Relation) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// RowCount returns the number of rows.
func (r *Relation) RowCount() int64 {
	return int64(len(r.Rows))
}

// Slice applies offset and limit, clamping both to the available rows.
// A nil limit means unbounded; limit 0 yields an empty result.
func (r *Relation) Slice(offset int, limit *int) *Relation {
	rows := r.Rows
	if offset > 0 {
		if offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[offset:]
		}
	}
	if limit != nil && *limit < len(rows) {
		rows = rows[:*limit]
	}
	return &Relation{Columns: r.Columns, Rows: rows}
}

// Project returns a relation containing the named columns in order.
func (r *Relation) Project(names []string) (*Relation, error) {
	indices := make([]int, len(names))
	cols := make([]Column, len(names))
	for i, name := range names {
		idx := r.ColumnIndex(name)
		if idx < 0 {
			return nil, fault.New(fault.KindExecution, "unknown column %q", name)
		}
		indices[i] = idx
		cols[i] = r.Columns[idx]
	}

	out := &Relation{Columns: cols, Rows: make([][]interface{}, len(r.Rows))}
	for ri, row := range r.Rows {
		projected := make([]interface{}, len(indices))
		for i, idx := range indices {
			projected[i] = row[idx]
		}
		out.Rows[ri] = projected
	}
	return out, nil
}

// Maps converts the rows to JSON-friendly maps keyed by column name, with
// dates rendered in the wire timestamp layout. max bounds the output; a
// negative max means all rows.
func (r *Relation) Maps(max int) []map[string]interface{} {
	n := len(r.Rows)
	if max >= 0 && max < n {
		n = max
	}
	out := make([]map[string]interface{}, n)
	for i := 0; i < n; i++ {
		m := make(map[string]interface{}, len(r.Columns))
		for ci, col := range r.Columns {
			v := r.Rows[i][ci]
			if ts, ok := v.(time.Time); ok {
				v = ts.Format("2006-01-02T15:04:05")
			}
			m[col.Name] = v
		}
		out[i] = m
	}
	return out
}

// compareValues orders two cells of the same logical type. Nil sorts first.
// Integer and double compare numerically across the two types.
func compareValues(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}

	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		if !ok {
			break
		}
		switch {
		case !av && bv:
			return -1
		case av && !bv:
			return 1
		default:
			return 0
		}
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			break
		}
		switch {
		case av.Before(bv):
			return -1
		case av.After(bv):
			return 1
		default:
			return 0
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		return strings.Compare(av, bv)
	}

	// mixed incomparable types fall back to their textual form
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// toFloat widens numeric cells for comparison and arithmetic.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
