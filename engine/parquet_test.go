package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetRoundTrip(t *testing.T) {
	rel := &Relation{
		Columns: []Column{
			{Name: "id", Type: TypeInteger},
			{Name: "price", Type: TypeDouble},
			{Name: "active", Type: TypeBoolean},
			{Name: "day", Type: TypeDate},
			{Name: "name", Type: TypeString},
		},
		Rows: [][]interface{}{
			{int64(1), 9.5, true, time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC), "alpha"},
			{int64(2), nil, false, nil, "beta"},
		},
	}

	data, err := WriteParquet(rel)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	back, err := ReadParquet(data)
	require.NoError(t, err)

	require.Equal(t, int64(2), back.RowCount())
	for _, col := range rel.Columns {
		idx := back.ColumnIndex(col.Name)
		require.GreaterOrEqual(t, idx, 0, "column %s missing after round trip", col.Name)
		assert.Equal(t, col.Type, back.Columns[idx].Type, "column %s type", col.Name)
	}

	byName := func(row int, name string) interface{} {
		return back.Rows[row][back.ColumnIndex(name)]
	}
	assert.Equal(t, int64(1), byName(0, "id"))
	assert.Equal(t, 9.5, byName(0, "price"))
	assert.Equal(t, true, byName(0, "active"))
	assert.Equal(t, time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC), byName(0, "day"))
	assert.Equal(t, "alpha", byName(0, "name"))

	assert.Nil(t, byName(1, "price"))
	assert.Nil(t, byName(1, "day"))
}

func TestParquetEmptyRelation(t *testing.T) {
	rel := NewRelation([]Column{{Name: "x", Type: TypeInteger}})

	data, err := WriteParquet(rel)
	require.NoError(t, err)

	back, err := ReadParquet(data)
	require.NoError(t, err)
	assert.Equal(t, int64(0), back.RowCount())
	require.Len(t, back.Columns, 1)
	assert.Equal(t, TypeInteger, back.Columns[0].Type)
}

func TestReadParquetGarbage(t *testing.T) {
	_, err := ReadParquet([]byte("not a parquet file"))
	assert.Error(t, err)
}
