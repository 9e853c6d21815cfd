package schema

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := DefaultRegistry()
	assert.Greater(t, registry.Len(), 0)

	parts, ok := registry.Lookup("parts")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, parts.PrimaryKey)

	err := registry.Register(TableDescriptor{Name: "parts", PrimaryKey: []string{"id"}})
	assert.Error(t, err, "duplicate table must be rejected")

	_, err = NewRegistry(TableDescriptor{Name: "parts; DROP TABLE x", PrimaryKey: []string{"id"}})
	assert.Error(t, err, "unsafe identifiers must be rejected")
}

func TestDecodeDataset(t *testing.T) {
	original := NewDataset()
	parts := NewTable(TableDescriptor{Name: "parts", PrimaryKey: []string{"id"}})
	parts.Columns = []Column{
		{Name: "id", DataType: "BIGINT"},
		{Name: "unit_cost", DataType: "DECIMAL"},
		{Name: "weight", DataType: "DOUBLE"},
		{Name: "photo", DataType: "BLOB"},
		{Name: "name", DataType: "VARCHAR"},
	}
	parts.Rows = [][]interface{}{
		{int64(9007199254740993), "12.50", 1.25, []byte{0x00, 0xff}, "Bolt M6"},
		{int64(2), nil, 2.0, nil, "Nut M6"},
	}
	original.AddTable(parts)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := DecodeDataset(data)
	require.NoError(t, err)

	table, ok := decoded.Table("parts")
	require.True(t, ok)
	require.Len(t, table.Rows, 2)

	assert.Equal(t, int64(9007199254740993), table.Rows[0][0])
	assert.Equal(t, "12.50", table.Rows[0][1])
	assert.Equal(t, 1.25, table.Rows[0][2])
	assert.Equal(t, []byte{0x00, 0xff}, table.Rows[0][3])
	assert.Equal(t, "Bolt M6", table.Rows[0][4])
	assert.Nil(t, table.Rows[1][1])
	assert.Equal(t, int64(2), decoded.TotalRows())
}

func TestDecodeDatasetRejectsRaggedRows(t *testing.T) {
	_, err := DecodeDataset([]byte(`{"tables":{"parts":{"columns":[{"name":"id","data_type":"INT"}],"rows":[[1,2]]}}}`))
	assert.Error(t, err)
}

func TestDecodeDatasetTemporalColumns(t *testing.T) {
	original := NewDataset()
	orders := NewTable(TableDescriptor{Name: "work_orders", PrimaryKey: []string{"id"}})
	orders.Columns = []Column{
		{Name: "id", DataType: "BIGINT"},
		{Name: "created_at", DataType: "DATETIME"},
		{Name: "due_date", DataType: "DATE"},
		{Name: "shift_start", DataType: "TIME"},
		{Name: "closed_at", DataType: "TIMESTAMP"},
	}
	created := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	due := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	orders.Rows = [][]interface{}{
		{int64(1), created, due, "06:00:00", nil},
	}
	original.AddTable(orders)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	decoded, err := DecodeDataset(data)
	require.NoError(t, err)
	table, _ := decoded.Table("work_orders")
	row := table.Rows[0]

	assert.Equal(t, created, row[1])
	assert.Equal(t, due, row[2])
	assert.Equal(t, "06:00:00", row[3], "TIME stays a string")
	assert.Nil(t, row[4])
}

func TestDecodeValueRejectsBadTime(t *testing.T) {
	_, err := DecodeValue("DATETIME", "yesterday")
	assert.Error(t, err)

	zero, err := DecodeValue("DATETIME", "0000-00-00 00:00:00")
	require.NoError(t, err)
	assert.True(t, zero.(time.Time).IsZero())
}

func TestNormalizeValue(t *testing.T) {
	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	stamp := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name     string
		dataType string
		a        interface{}
		b        interface{}
		same     bool
	}{
		{"date vs date string", "DATE", day, "2026-03-14", true},
		{"date vs rfc3339", "DATE", day, "2026-03-14T00:00:00Z", true},
		{"datetime vs mysql string", "DATETIME", stamp, "2026-03-14 09:30:00", true},
		{"datetime vs rfc3339 with offset", "TIMESTAMP", stamp, "2026-03-14T11:30:00+02:00", true},
		{"different datetimes", "DATETIME", stamp, "2026-03-14 09:31:00", false},
		{"bytes vs string", "VARCHAR", []byte("Bolt"), "Bolt", true},
		{"int vs float", "BIGINT", int64(10), 10.0, true},
		{"int vs json number", "INT", int64(42), json.Number("42"), true},
		{"decimal scale", "DECIMAL", "10.50", 10.5, true},
		{"decimal zero scale", "decimal(10,2)", "10.00", int64(10), true},
		{"bool vs tinyint", "TINYINT", true, int64(1), true},
		{"null vs empty", "VARCHAR", nil, "", false},
		{"different strings", "VARCHAR", "Bolt", "Nut", false},
		{"different decimals", "DECIMAL", "10.51", "10.5", false},
		{"text keeps trailing zeros", "VARCHAR", "10.50", "10.5", false},
		{"text keeps date spelling", "varchar(32)", "2026-01-01", "2026-01-01 00:00:00", false},
		{"untyped decimal scale", "", "10.50", 10.5, true},
		{"untyped time", "", stamp, "2026-03-14 09:30:00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := NormalizeValue(tt.dataType, tt.a), NormalizeValue(tt.dataType, tt.b)
			assert.Equal(t, tt.same, a == b, "%q vs %q", a, b)
		})
	}
}

func TestRowKey(t *testing.T) {
	types := []string{"BIGINT", "VARCHAR"}
	assert.Equal(t, RowKey(types, []interface{}{int64(1), "A"}), RowKey(types, []interface{}{json.Number("1"), []byte("A")}))
	assert.NotEqual(t, RowKey(nil, []interface{}{"1", "2"}), RowKey(nil, []interface{}{"12"}))
}

func TestColumnTypeClassification(t *testing.T) {
	assert.True(t, IsTemporalType("datetime(6)"))
	assert.True(t, IsTemporalType("TIMESTAMP"))
	assert.True(t, IsDateType("date"))
	assert.False(t, IsDateType("DATETIME"))
	assert.False(t, IsTemporalType("TIME"))
	assert.True(t, IsTextType("varchar(64)"))
	assert.False(t, IsTextType("DECIMAL"))
}
