package engine

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/datalake-platform/datalake/fault"
)

// dateLayouts are the accepted textual date formats, tried in order.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

// ReadCSV parses a CSV stream into a typed relation. The first record is the
// header. Column types are inferred from the data: a column is the narrowest
// type in the order integer, double, boolean, date that accepts every
// non-empty cell, falling back to string. Empty cells are null and do not
// influence inference.
func ReadCSV(r io.Reader) (*Relation, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fault.New(fault.KindInvalidInput, "empty CSV file")
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindInvalidInput, err, "reading CSV header")
	}

	var records [][]string
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.KindInvalidInput, err, "reading CSV row %d", len(records)+2)
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fault.New(fault.KindInvalidInput, "CSV file has a header but no data rows")
	}

	cols := make([]Column, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		cols[i] = Column{Name: name, Type: inferColumnType(records, i)}
	}

	rel := &Relation{Columns: cols, Rows: make([][]interface{}, len(records))}
	for ri, rec := range records {
		row := make([]interface{}, len(cols))
		for ci := range cols {
			if ci >= len(rec) {
				continue
			}
			row[ci] = parseCell(rec[ci], cols[ci].Type)
		}
		rel.Rows[ri] = row
	}
	return rel, nil
}

// inferColumnType finds the narrowest type accepting every non-empty cell in
// column ci.
func inferColumnType(records [][]string, ci int) string {
	sawValue := false
	isInt, isDouble, isBool, isDate := true, true, true, true

	for _, rec := range records {
		if ci >= len(rec) {
			continue
		}
		cell := strings.TrimSpace(rec[ci])
		if cell == "" {
			continue
		}
		sawValue = true

		if isInt {
			if _, err := strconv.ParseInt(cell, 10, 64); err != nil {
				isInt = false
			}
		}
		if isDouble {
			if _, err := strconv.ParseFloat(cell, 64); err != nil {
				isDouble = false
			}
		}
		if isBool && !isBoolCell(cell) {
			isBool = false
		}
		if isDate && parseDate(cell) == nil {
			isDate = false
		}
		if !isInt && !isDouble && !isBool && !isDate {
			break
		}
	}

	// a column of only empty cells stays string
	if !sawValue {
		return TypeString
	}
	switch {
	case isInt:
		return TypeInteger
	case isDouble:
		return TypeDouble
	case isBool:
		return TypeBoolean
	case isDate:
		return TypeDate
	default:
		return TypeString
	}
}

func isBoolCell(cell string) bool {
	switch strings.ToLower(cell) {
	case "true", "false":
		return true
	default:
		return false
	}
}

func parseDate(cell string) *time.Time {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return &t
		}
	}
	return nil
}

// parseCell converts a raw cell to the column's inferred type. Cells that no
// longer parse (possible when inference saw a subset) degrade to string.
func parseCell(raw, colType string) interface{} {
	cell := strings.TrimSpace(raw)
	if cell == "" {
		return nil
	}
	switch colType {
	case TypeInteger:
		if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
			return n
		}
	case TypeDouble:
		if f, err := strconv.ParseFloat(cell, 64); err == nil {
			return f
		}
	case TypeBoolean:
		return strings.EqualFold(cell, "true")
	case TypeDate:
		if t := parseDate(cell); t != nil {
			return *t
		}
	}
	return cell
}
