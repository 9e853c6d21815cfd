package schema

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Extractor discovers table descriptors from a MySQL schema
type Extractor struct {
	queryTimeout time.Duration
}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{
		queryTimeout: 30 * time.Second,
	}
}

// NewExtractorWithTimeout creates a new extractor with custom timeout
func NewExtractorWithTimeout(timeout time.Duration) *Extractor {
	return &Extractor{
		queryTimeout: timeout,
	}
}

// DiscoverTables lists the base tables of schemaName with their primary key columns.
// Tables named in exclude are skipped.
func (e *Extractor) DiscoverTables(ctx context.Context, db *sql.DB, schemaName string, exclude []string) ([]TableDescriptor, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if schemaName == "" {
		return nil, fmt.Errorf("schema name cannot be empty")
	}

	query := `
		SELECT t.TABLE_NAME, k.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k
			ON k.TABLE_SCHEMA = t.TABLE_SCHEMA
			AND k.TABLE_NAME = t.TABLE_NAME
			AND k.CONSTRAINT_NAME = 'PRIMARY'
		WHERE t.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY t.TABLE_NAME, k.ORDINAL_POSITION
	`

	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	rows, err := db.QueryContext(ctx, query, schemaName)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	var descriptors []TableDescriptor
	positions := make(map[string]int)

	for rows.Next() {
		var tableName string
		var column sql.NullString
		if err := rows.Scan(&tableName, &column); err != nil {
			return nil, fmt.Errorf("failed to scan table row: %w", err)
		}
		if skip[tableName] {
			continue
		}

		idx, seen := positions[tableName]
		if !seen {
			idx = len(descriptors)
			positions[tableName] = idx
			descriptors = append(descriptors, TableDescriptor{Name: tableName})
		}
		if column.Valid {
			descriptors[idx].PrimaryKey = append(descriptors[idx].PrimaryKey, column.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating table rows: %w", err)
	}

	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
	}

	return descriptors, nil
}
