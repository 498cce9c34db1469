package engine

import (
	"bytes"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/datalake-platform/datalake/fault"
)

// WriteParquet serializes a relation to a parquet file. Every column is
// optional; dates are written as millisecond timestamps so readers that only
// know physical types still get a usable int64.
func WriteParquet(rel *Relation) ([]byte, error) {
	fields := parquet.Group{}
	for _, c := range rel.Columns {
		fields[c.Name] = parquetNode(c.Type)
	}
	schema := parquet.NewSchema("result", fields)

	buf := new(bytes.Buffer)
	w := parquet.NewGenericWriter[map[string]interface{}](buf, schema)

	batch := make([]map[string]interface{}, 0, 128)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := w.Write(batch); err != nil {
			return fault.Wrap(fault.KindExecution, err, "writing parquet rows")
		}
		batch = batch[:0]
		return nil
	}

	for _, row := range rel.Rows {
		m := make(map[string]interface{}, len(rel.Columns))
		for ci, col := range rel.Columns {
			v := row[ci]
			if v == nil {
				continue
			}
			if ts, ok := v.(time.Time); ok {
				v = ts.UnixMilli()
			}
			m[col.Name] = v
		}
		batch = append(batch, m)
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, fault.Wrap(fault.KindExecution, err, "closing parquet writer")
	}
	return buf.Bytes(), nil
}

func parquetNode(colType string) parquet.Node {
	switch colType {
	case TypeInteger:
		return parquet.Optional(parquet.Int(64))
	case TypeDouble:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case TypeBoolean:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	case TypeDate:
		return parquet.Optional(parquet.Timestamp(parquet.Millisecond))
	default:
		return parquet.Optional(parquet.String())
	}
}

// ReadParquet deserializes a parquet file produced by WriteParquet or any
// writer using compatible logical types.
func ReadParquet(data []byte) (*Relation, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fault.Wrap(fault.KindExecution, err, "opening parquet file")
	}

	// a map row type carries no schema of its own, so the reader needs the
	// file's schema explicitly
	r := parquet.NewGenericReader[map[string]interface{}](bytes.NewReader(data), f.Schema())
	defer r.Close()

	fields := f.Schema().Fields()
	cols := make([]Column, len(fields))
	for i, f := range fields {
		cols[i] = Column{Name: f.Name(), Type: fieldType(f)}
	}

	rel := NewRelation(cols)
	buf := make([]map[string]interface{}, 64)
	for {
		// fresh maps each iteration: the reader assigns into them and the
		// appended rows retain references to their values
		for i := range buf {
			buf[i] = make(map[string]interface{}, len(cols))
		}
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			row := make([]interface{}, len(cols))
			for ci, col := range cols {
				row[ci] = fromParquetValue(buf[i][col.Name], col.Type)
			}
			rel.Rows = append(rel.Rows, row)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.KindExecution, err, "reading parquet rows")
		}
	}
	return rel, nil
}

func fieldType(f parquet.Field) string {
	t := f.Type()
	if lt := t.LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil:
			return TypeString
		case lt.Timestamp != nil:
			return TypeDate
		}
	}
	switch t.Kind() {
	case parquet.Boolean:
		return TypeBoolean
	case parquet.Int32, parquet.Int64:
		return TypeInteger
	case parquet.Float, parquet.Double:
		return TypeDouble
	default:
		return TypeString
	}
}

func fromParquetValue(v interface{}, colType string) interface{} {
	if v == nil {
		return nil
	}
	switch colType {
	case TypeDate:
		switch n := v.(type) {
		case int64:
			return time.UnixMilli(n).UTC()
		case time.Time:
			return n.UTC()
		}
	case TypeInteger:
		switch n := v.(type) {
		case int32:
			return int64(n)
		case int64:
			return n
		}
	case TypeDouble:
		switch n := v.(type) {
		case float32:
			return float64(n)
		case float64:
			return n
		}
	case TypeString:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
	}
	return v
}
