package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// QuerySpec is the structured, engine-agnostic description of a query. It is
// created from client JSON at the coordinator, persisted as an opaque string
// on the job, and re-parsed by the worker.
type QuerySpec struct {
	// Source is either "project.table" or a job id that resolves to one.
	Source  string            `json:"source"`
	Select  []SelectColumn    `json:"select,omitempty"`
	Filters []FilterCondition `json:"filters,omitempty"`
	GroupBy []string          `json:"groupBy,omitempty"`
	OrderBy []OrderBy         `json:"orderBy,omitempty"`
	// Limit and Offset distinguish absent from zero: limit 0 is a valid
	// request that yields an empty result.
	Limit  *int `json:"limit,omitempty"`
	Offset *int `json:"offset,omitempty"`
	// Encoding is an opaque visualization hint, passed through unchanged and
	// never interpreted by the execution pipeline.
	Encoding *Encoding `json:"encoding,omitempty"`
}

// SelectColumn selects a column, optionally aggregated and renamed.
type SelectColumn struct {
	Column      string `json:"column"`
	Aggregation string `json:"aggregation,omitempty"`
	As          string `json:"as,omitempty"`
}

// OutputName is the column name this selection produces.
func (s SelectColumn) OutputName() string {
	if s.As != "" {
		return s.As
	}
	if s.Aggregation != "" {
		return strings.ToLower(s.Aggregation) + "(" + s.Column + ")"
	}
	return s.Column
}

// FilterCondition is one WHERE-clause predicate. Value2 is used only by the
// between operator.
type FilterCondition struct {
	Column   string      `json:"column"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value,omitempty"`
	Value2   interface{} `json:"value2,omitempty"`
}

// OrderBy sorts by an output column name. Direction defaults to ascending;
// matching is case-insensitive.
type OrderBy struct {
	Column    string `json:"column"`
	Direction string `json:"direction,omitempty"`
}

// Descending reports whether this ordering is descending.
func (o OrderBy) Descending() bool {
	return strings.EqualFold(o.Direction, "desc")
}

// Encoding carries optional visualization hints (e.g. Vega-Lite channels).
type Encoding struct {
	X     string `json:"x,omitempty"`
	Y     string `json:"y,omitempty"`
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
	Shape string `json:"shape,omitempty"`
}

var allowedOperators = map[string]bool{
	"=": true, "==": true, "!=": true, "<>": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"like": true, "in": true, "between": true,
	"is_null": true, "is_not_null": true,
}

var allowedAggregations = map[string]bool{
	"sum": true, "avg": true, "average": true, "count": true,
	"min": true, "max": true, "first": true, "last": true,
}

// ValidOperator reports whether op is in the supported operator set.
func ValidOperator(op string) bool {
	return allowedOperators[strings.ToLower(op)]
}

// ValidAggregation reports whether agg is in the supported aggregation set.
func ValidAggregation(agg string) bool {
	return allowedAggregations[strings.ToLower(agg)]
}

// Validate checks structural constraints enforced at submission time:
// a source must be present, select entries must name a column, and
// aggregations must come from the allowed set. Unknown filter operators are
// accepted here; the executor drops them with a warning rather than failing
// the query.
func (q *QuerySpec) Validate() error {
	if strings.TrimSpace(q.Source) == "" {
		return fmt.Errorf("source is required (format: projectId.tableName)")
	}
	for i, sel := range q.Select {
		if strings.TrimSpace(sel.Column) == "" {
			return fmt.Errorf("select[%d]: column is required", i)
		}
		if sel.Aggregation != "" && !ValidAggregation(sel.Aggregation) {
			return fmt.Errorf("select[%d]: unsupported aggregation %q", i, sel.Aggregation)
		}
	}
	for i, f := range q.Filters {
		if strings.TrimSpace(f.Column) == "" {
			return fmt.Errorf("filters[%d]: column is required", i)
		}
	}
	if q.Limit != nil && *q.Limit < 0 {
		return fmt.Errorf("limit must be non-negative")
	}
	if q.Offset != nil && *q.Offset < 0 {
		return fmt.Errorf("offset must be non-negative")
	}
	return nil
}

// ParseQuerySpec decodes a persisted spec string.
func ParseQuerySpec(raw string) (*QuerySpec, error) {
	var spec QuerySpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("malformed query spec: %w", err)
	}
	return &spec, nil
}

// SplitSource splits "project.table" into its parts. Sources without a dot
// return project "unknown" and the raw source as the table name.
func SplitSource(source string) (project, table string) {
	if i := strings.Index(source, "."); i >= 0 {
		return source[:i], source[i+1:]
	}
	return "unknown", source
}
