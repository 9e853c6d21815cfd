package schema

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]{0,63}$`)

// TableDescriptor names a table and the columns that identify its rows.
// Adding a table to backups, restores and diffs only requires a new descriptor.
type TableDescriptor struct {
	Name       string   `json:"name" yaml:"name"`
	PrimaryKey []string `json:"primary_key" yaml:"primary_key"`
}

// Validate checks that the descriptor is safe to interpolate into SQL
func (d TableDescriptor) Validate() error {
	if !ValidIdentifier(d.Name) {
		return fmt.Errorf("invalid table name %q", d.Name)
	}
	for _, col := range d.PrimaryKey {
		if !ValidIdentifier(col) {
			return fmt.Errorf("invalid primary key column %q for table %s", col, d.Name)
		}
	}
	return nil
}

// ValidIdentifier reports whether name is a plain MySQL identifier
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Column is one column of a captured table shape
type Column struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Table is the shape and the rows captured for one descriptor
type Table struct {
	Name       string          `json:"name"`
	PrimaryKey []string        `json:"primary_key"`
	Columns    []Column        `json:"columns"`
	Rows       [][]interface{} `json:"rows"`
}

// NewTable creates an empty table for a descriptor
func NewTable(descriptor TableDescriptor) *Table {
	return &Table{
		Name:       descriptor.Name,
		PrimaryKey: append([]string(nil), descriptor.PrimaryKey...),
		Columns:    make([]Column, 0),
		Rows:       make([][]interface{}, 0),
	}
}

// ColumnNames returns the column names in shape order
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns the position of a column or -1
func (t *Table) ColumnIndex(name string) int {
	for i, col := range t.Columns {
		if strings.EqualFold(col.Name, name) {
			return i
		}
	}
	return -1
}

// RowCount returns the number of captured rows
func (t *Table) RowCount() int64 {
	return int64(len(t.Rows))
}

// Dataset is a full point-in-time copy of the store, keyed by table name
type Dataset struct {
	Tables map[string]*Table `json:"tables"`
}

// NewDataset creates an empty dataset
func NewDataset() *Dataset {
	return &Dataset{Tables: make(map[string]*Table)}
}

// AddTable adds or replaces a table
func (d *Dataset) AddTable(table *Table) {
	d.Tables[table.Name] = table
}

// Table returns a table by name
func (d *Dataset) Table(name string) (*Table, bool) {
	t, ok := d.Tables[name]
	return t, ok
}

// TableNames returns the table names in sorted order
func (d *Dataset) TableNames() []string {
	names := make([]string, 0, len(d.Tables))
	for name := range d.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RowCounts returns the number of rows per table
func (d *Dataset) RowCounts() map[string]int64 {
	counts := make(map[string]int64, len(d.Tables))
	for name, t := range d.Tables {
		counts[name] = t.RowCount()
	}
	return counts
}

// TotalRows returns the number of rows across all tables
func (d *Dataset) TotalRows() int64 {
	var total int64
	for _, t := range d.Tables {
		total += t.RowCount()
	}
	return total
}

// DecodeDataset parses a JSON table body and restores typed values from the column shapes
func DecodeDataset(data []byte) (*Dataset, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	dataset := NewDataset()
	if err := decoder.Decode(dataset); err != nil {
		return nil, fmt.Errorf("failed to decode dataset: %w", err)
	}
	if dataset.Tables == nil {
		dataset.Tables = make(map[string]*Table)
	}

	for name, table := range dataset.Tables {
		if table.Name == "" {
			table.Name = name
		}
		for r, row := range table.Rows {
			if len(row) != len(table.Columns) {
				return nil, fmt.Errorf("table %s row %d has %d values, expected %d", name, r, len(row), len(table.Columns))
			}
			for c, value := range row {
				decoded, err := DecodeValue(table.Columns[c].DataType, value)
				if err != nil {
					return nil, fmt.Errorf("table %s column %s: %w", name, table.Columns[c].Name, err)
				}
				row[c] = decoded
			}
		}
	}

	return dataset, nil
}

// DecodeValue converts a JSON-decoded value back to the Go type the live store yields for dataType
func DecodeValue(dataType string, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case json.Number:
		switch {
		case IsIntegerType(dataType):
			if i, err := v.Int64(); err == nil {
				return i, nil
			}
			if u, err := strconv.ParseUint(v.String(), 10, 64); err == nil {
				return u, nil
			}
			return nil, fmt.Errorf("invalid integer %s", v)
		case IsFloatType(dataType):
			return v.Float64()
		case IsDecimalType(dataType):
			return v.String(), nil
		default:
			if i, err := v.Int64(); err == nil {
				return i, nil
			}
			return v.Float64()
		}
	case string:
		switch {
		case IsBinaryType(dataType):
			decoded, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("invalid binary value: %w", err)
			}
			return decoded, nil
		case IsTemporalType(dataType):
			return ParseTemporal(v)
		}
		return v, nil
	default:
		return v, nil
	}
}

func baseType(dataType string) string {
	t := strings.ToUpper(strings.TrimSpace(dataType))
	t = strings.TrimPrefix(t, "UNSIGNED ")
	if idx := strings.IndexAny(t, "( "); idx >= 0 {
		t = t[:idx]
	}
	return t
}

// IsIntegerType reports whether dataType is an integer column type
func IsIntegerType(dataType string) bool {
	switch baseType(dataType) {
	case "TINYINT", "SMALLINT", "MEDIUMINT", "INT", "INTEGER", "BIGINT", "YEAR":
		return true
	}
	return false
}

// IsFloatType reports whether dataType is an approximate numeric column type
func IsFloatType(dataType string) bool {
	switch baseType(dataType) {
	case "FLOAT", "DOUBLE", "REAL":
		return true
	}
	return false
}

// IsDecimalType reports whether dataType is an exact numeric column type
func IsDecimalType(dataType string) bool {
	switch baseType(dataType) {
	case "DECIMAL", "NUMERIC":
		return true
	}
	return false
}

// IsBinaryType reports whether dataType holds raw bytes
func IsBinaryType(dataType string) bool {
	switch baseType(dataType) {
	case "BINARY", "VARBINARY", "TINYBLOB", "BLOB", "MEDIUMBLOB", "LONGBLOB", "BIT", "GEOMETRY":
		return true
	}
	return false
}

// IsDateType reports whether dataType stores a calendar date without time
func IsDateType(dataType string) bool {
	return baseType(dataType) == "DATE"
}

// IsTemporalType reports whether the driver yields time.Time for dataType.
// TIME is a duration in MySQL and stays a string.
func IsTemporalType(dataType string) bool {
	switch baseType(dataType) {
	case "DATE", "DATETIME", "TIMESTAMP":
		return true
	}
	return false
}

// IsTextType reports whether dataType holds character data
func IsTextType(dataType string) bool {
	switch baseType(dataType) {
	case "CHAR", "VARCHAR", "TINYTEXT", "TEXT", "MEDIUMTEXT", "LONGTEXT", "ENUM", "SET", "JSON", "TIME":
		return true
	}
	return false
}

// ParseTemporal parses a snapshot or driver rendering of a DATE, DATETIME or
// TIMESTAMP value into a UTC time.Time
func ParseTemporal(s string) (time.Time, error) {
	if strings.HasPrefix(s, "0000-00-00") {
		return time.Time{}, nil
	}
	t, ok := parseTimeString(s)
	if !ok {
		return time.Time{}, fmt.Errorf("invalid time value %q", s)
	}
	return t.UTC(), nil
}

// QuoteIdentifier quotes a MySQL identifier
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
