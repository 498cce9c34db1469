package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuerySpec(t *testing.T) {
	raw := `{
		"source": "p1.sales",
		"select": [
			{"column": "region", "as": "r"},
			{"column": "revenue", "aggregation": "sum", "as": "total"}
		],
		"filters": [{"column": "region", "operator": "=", "value": "N"}],
		"groupBy": ["region"],
		"orderBy": [{"column": "total", "direction": "DESC"}],
		"limit": 100,
		"offset": 10,
		"encoding": {"x": "r", "y": "total"},
		"futureField": true
	}`

	spec, err := ParseQuerySpec(raw)
	require.NoError(t, err)
	require.NoError(t, spec.Validate())

	assert.Equal(t, "p1.sales", spec.Source)
	require.Len(t, spec.Select, 2)
	assert.Equal(t, "r", spec.Select[0].OutputName())
	assert.Equal(t, "total", spec.Select[1].OutputName())
	require.NotNil(t, spec.Limit)
	assert.Equal(t, 100, *spec.Limit)
	assert.True(t, spec.OrderBy[0].Descending())
	assert.Equal(t, "r", spec.Encoding.X)
}

func TestParseQuerySpecMalformed(t *testing.T) {
	_, err := ParseQuerySpec(`{"source": `)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	limit := -1
	cases := []struct {
		name string
		spec QuerySpec
		ok   bool
	}{
		{"missing source", QuerySpec{}, false},
		{"source only", QuerySpec{Source: "p.t"}, true},
		{"blank select column", QuerySpec{Source: "p.t", Select: []SelectColumn{{}}}, false},
		{"bad aggregation", QuerySpec{Source: "p.t", Select: []SelectColumn{{Column: "a", Aggregation: "median"}}}, false},
		{"good aggregation", QuerySpec{Source: "p.t", Select: []SelectColumn{{Column: "a", Aggregation: "SUM"}}}, true},
		{"negative limit", QuerySpec{Source: "p.t", Limit: &limit}, false},
		// Unknown operators pass validation; the executor drops them.
		{"unknown operator", QuerySpec{Source: "p.t", Filters: []FilterCondition{{Column: "a", Operator: "~="}}}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLimitZeroSurvivesRoundTrip(t *testing.T) {
	zero := 0
	spec := QuerySpec{Source: "p.t", Limit: &zero}

	data, err := json.Marshal(&spec)
	require.NoError(t, err)

	parsed, err := ParseQuerySpec(string(data))
	require.NoError(t, err)
	require.NotNil(t, parsed.Limit)
	assert.Equal(t, 0, *parsed.Limit)
}

func TestSplitSource(t *testing.T) {
	p, tbl := SplitSource("proj.sales")
	assert.Equal(t, "proj", p)
	assert.Equal(t, "sales", tbl)

	p, tbl = SplitSource("nodot")
	assert.Equal(t, "unknown", p)
	assert.Equal(t, "nodot", tbl)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "region", SelectColumn{Column: "region"}.OutputName())
	assert.Equal(t, "r", SelectColumn{Column: "region", As: "r"}.OutputName())
	assert.Equal(t, "sum(revenue)", SelectColumn{Column: "revenue", Aggregation: "SUM"}.OutputName())
}
