package engine

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/datalake-platform/datalake/fault"
)

// ReadJSON parses a JSON array of flat objects into a typed relation.
// Columns are the union of the record keys in alphabetical order. A numeric
// column is integer when every value is integral and double otherwise; a
// column mixing value types degrades to string. Nested objects and arrays
// are rejected.
func ReadJSON(data []byte) (*Relation, error) {
	var objects []map[string]interface{}
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "parsing JSON file")
	}
	if len(objects) == 0 {
		return nil, fault.New(fault.KindInvalidInput, "JSON file has no records")
	}

	seen := map[string]bool{}
	var names []string
	for _, obj := range objects {
		for k, v := range obj {
			switch v.(type) {
			case map[string]interface{}, []interface{}:
				return nil, fault.New(fault.KindInvalidInput, "JSON records must be flat, field %q is nested", k)
			}
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)

	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Type: inferJSONType(objects, name)}
	}

	rel := &Relation{Columns: cols, Rows: make([][]interface{}, len(objects))}
	for ri, obj := range objects {
		row := make([]interface{}, len(cols))
		for ci, col := range cols {
			row[ci] = jsonCell(obj[col.Name], col.Type)
		}
		rel.Rows[ri] = row
	}
	return rel, nil
}

func inferJSONType(objects []map[string]interface{}, name string) string {
	typ := ""
	integral := true
	for _, obj := range objects {
		v, ok := obj[name]
		if !ok || v == nil {
			continue
		}
		var t string
		switch n := v.(type) {
		case bool:
			t = TypeBoolean
		case float64:
			t = TypeDouble
			if n != math.Trunc(n) {
				integral = false
			}
		default:
			t = TypeString
		}
		if typ == "" {
			typ = t
		} else if typ != t {
			return TypeString
		}
	}
	switch {
	case typ == "":
		// only nulls
		return TypeString
	case typ == TypeDouble && integral:
		return TypeInteger
	default:
		return typ
	}
}

func jsonCell(v interface{}, colType string) interface{} {
	if v == nil {
		return nil
	}
	switch colType {
	case TypeInteger:
		if f, ok := v.(float64); ok {
			return int64(f)
		}
	case TypeDouble:
		if f, ok := v.(float64); ok {
			return f
		}
	case TypeBoolean:
		if b, ok := v.(bool); ok {
			return b
		}
	}
	switch n := v.(type) {
	case string:
		return n
	case bool:
		return strconv.FormatBool(n)
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	return nil
}
