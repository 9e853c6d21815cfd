package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mrp-backup/internal/errors"
	"mrp-backup/internal/logging"
	"mrp-backup/internal/schema"
)

const (
	defaultBatchSize = 500
	// MySQL limits a prepared statement to 65535 placeholders
	maxPlaceholders = 65000
)

// ReplaceError reports a failed replace and whether the transaction was rolled back
type ReplaceError struct {
	Table       string
	Err         error
	RollbackErr error
}

func (e *ReplaceError) Error() string {
	msg := fmt.Sprintf("replace failed at table %s: %v", e.Table, e.Err)
	if e.RollbackErr != nil {
		msg += fmt.Sprintf(" (rollback failed: %v)", e.RollbackErr)
	}
	return msg
}

func (e *ReplaceError) Unwrap() error {
	return e.Err
}

// RolledBack reports whether the live tables are known to be unchanged
func (e *ReplaceError) RolledBack() bool {
	return e.RollbackErr == nil
}

// Store reads and replaces the registered tables of the live store
type Store struct {
	db        *sql.DB
	registry  *schema.Registry
	logger    *logging.Logger
	batchSize int
}

// NewStore creates a store over the registered tables
func NewStore(db *sql.DB, registry *schema.Registry, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Store{
		db:        db,
		registry:  registry,
		logger:    logger,
		batchSize: defaultBatchSize,
	}
}

// SetBatchSize sets the number of rows per INSERT statement
func (s *Store) SetBatchSize(size int) {
	if size > 0 {
		s.batchSize = size
	}
}

// Registry returns the table registry the store operates on
func (s *Store) Registry() *schema.Registry {
	return s.registry
}

// Export reads every registered table inside one read-only REPEATABLE READ
// transaction, so all tables reflect the same point in time.
func (s *Store) Export(ctx context.Context) (*schema.Dataset, error) {
	startTime := time.Now()
	dataset := schema.NewDataset()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		s.logger.LogSnapshotExport(0, 0, time.Since(startTime), err)
		return nil, errors.WrapError(err, "failed to begin consistent read")
	}
	defer tx.Rollback()

	for _, descriptor := range s.registry.Descriptors() {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapError(err, "export interrupted")
		}

		table, err := s.exportTable(ctx, tx, descriptor)
		if err != nil {
			s.logger.LogSnapshotExport(len(dataset.Tables), dataset.TotalRows(), time.Since(startTime), err)
			return nil, err
		}
		dataset.AddTable(table)
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.WrapError(err, "failed to close consistent read")
	}

	s.logger.LogSnapshotExport(len(dataset.Tables), dataset.TotalRows(), time.Since(startTime), nil)
	return dataset, nil
}

func (s *Store) exportTable(ctx context.Context, tx *sql.Tx, descriptor schema.TableDescriptor) (*schema.Table, error) {
	query := "SELECT * FROM " + schema.QuoteIdentifier(descriptor.Name)
	if len(descriptor.PrimaryKey) > 0 {
		keys := make([]string, len(descriptor.PrimaryKey))
		for i, key := range descriptor.PrimaryKey {
			keys[i] = schema.QuoteIdentifier(key)
		}
		query += " ORDER BY " + strings.Join(keys, ", ")
	}

	startTime := time.Now()
	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		s.logger.LogSQLExecution(query, time.Since(startTime), 0, err)
		return nil, errors.WrapError(err, fmt.Sprintf("failed to read table %s", descriptor.Name)).(*errors.AppError).
			WithContext("table", descriptor.Name)
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("failed to read columns of %s", descriptor.Name))
	}

	table := schema.NewTable(descriptor)
	for _, ct := range columnTypes {
		table.Columns = append(table.Columns, schema.Column{Name: ct.Name(), DataType: ct.DatabaseTypeName()})
	}

	for rows.Next() {
		raw := make([]interface{}, len(columnTypes))
		dest := make([]interface{}, len(columnTypes))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.WrapError(err, fmt.Sprintf("failed to scan row of %s", descriptor.Name))
		}

		row := make([]interface{}, len(raw))
		for i, value := range raw {
			converted, err := convertValue(table.Columns[i].DataType, value)
			if err != nil {
				return nil, errors.NewAppError(errors.ErrorTypeSQL,
					fmt.Sprintf("failed to convert %s.%s", descriptor.Name, table.Columns[i].Name), err)
			}
			row[i] = converted
		}
		table.Rows = append(table.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapError(err, fmt.Sprintf("error iterating rows of %s", descriptor.Name))
	}

	s.logger.LogSQLExecution(query, time.Since(startTime), table.RowCount(), nil)
	return table, nil
}

// convertValue maps the driver's text-protocol bytes to typed values by column type.
// DATE, DATETIME and TIMESTAMP already arrive as time.Time with parseTime on.
func convertValue(dataType string, value interface{}) (interface{}, error) {
	b, ok := value.([]byte)
	if !ok {
		return value, nil
	}

	switch {
	case schema.IsBinaryType(dataType):
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case schema.IsIntegerType(dataType):
		if i, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return i, nil
		}
		return strconv.ParseUint(string(b), 10, 64)
	case schema.IsFloatType(dataType):
		return strconv.ParseFloat(string(b), 64)
	case schema.IsTemporalType(dataType):
		return schema.ParseTemporal(string(b))
	default:
		return string(b), nil
	}
}

// Replace swaps the contents of every table present in dataset inside a single
// transaction with foreign key checks suspended. Tables are processed in
// registry order; dataset tables the registry does not know are skipped.
// On failure the returned *ReplaceError tells whether the rollback succeeded.
func (s *Store) Replace(ctx context.Context, dataset *schema.Dataset) (map[string]int64, error) {
	if dataset == nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, "dataset is nil", nil)
	}

	startTime := time.Now()
	restored, err := s.replace(ctx, dataset)
	var inserted int64
	for _, n := range restored {
		inserted += n
	}
	s.logger.LogReplace(len(restored), inserted, time.Since(startTime), err)
	return restored, err
}

func (s *Store) replace(ctx context.Context, dataset *schema.Dataset) (map[string]int64, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, errors.WrapError(err, "failed to acquire connection")
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SET FOREIGN_KEY_CHECKS = 0"); err != nil {
		return nil, errors.WrapError(err, "failed to suspend foreign key checks")
	}
	defer func() {
		// The session goes back to the pool, so checks are restored even after cancellation
		if _, err := conn.ExecContext(context.Background(), "SET FOREIGN_KEY_CHECKS = 1"); err != nil {
			s.logger.WithField("error", err.Error()).Warn("Failed to re-enable foreign key checks")
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WrapError(err, "failed to begin replace transaction")
	}

	restored := make(map[string]int64)
	for _, descriptor := range s.registry.Descriptors() {
		table, ok := dataset.Table(descriptor.Name)
		if !ok {
			continue
		}

		if err := s.replaceTable(ctx, tx, table); err != nil {
			return nil, &ReplaceError{Table: descriptor.Name, Err: err, RollbackErr: rollback(tx)}
		}
		restored[descriptor.Name] = table.RowCount()
	}

	if err := tx.Commit(); err != nil {
		return nil, &ReplaceError{Table: "", Err: errors.WrapError(err, "failed to commit replace"), RollbackErr: rollback(tx)}
	}

	return restored, nil
}

func rollback(tx *sql.Tx) error {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		return err
	}
	return nil
}

func (s *Store) replaceTable(ctx context.Context, tx *sql.Tx, table *schema.Table) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, col := range table.Columns {
		if !schema.ValidIdentifier(col.Name) {
			return errors.NewAppError(errors.ErrorTypeValidation,
				fmt.Sprintf("invalid column name %q in table %s", col.Name, table.Name), nil)
		}
	}

	deleteSQL := "DELETE FROM " + schema.QuoteIdentifier(table.Name)
	startTime := time.Now()
	result, err := tx.ExecContext(ctx, deleteSQL)
	var deleted int64
	if result != nil {
		deleted, _ = result.RowsAffected()
	}
	s.logger.LogSQLExecution(deleteSQL, time.Since(startTime), deleted, err)
	if err != nil {
		return errors.WrapError(err, fmt.Sprintf("failed to clear table %s", table.Name))
	}

	if len(table.Rows) == 0 || len(table.Columns) == 0 {
		return nil
	}

	batchSize := s.batchSize
	if limit := maxPlaceholders / len(table.Columns); batchSize > limit {
		batchSize = limit
	}

	quoted := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		quoted[i] = schema.QuoteIdentifier(col.Name)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", schema.QuoteIdentifier(table.Name), strings.Join(quoted, ", "))
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(table.Columns)), ", ") + ")"

	for start := 0; start < len(table.Rows); start += batchSize {
		end := start + batchSize
		if end > len(table.Rows) {
			end = len(table.Rows)
		}
		batch := table.Rows[start:end]

		placeholders := make([]string, len(batch))
		args := make([]interface{}, 0, len(batch)*len(table.Columns))
		for i, row := range batch {
			placeholders[i] = rowPlaceholder
			args = append(args, row...)
		}

		insertSQL := prefix + strings.Join(placeholders, ", ")
		startTime := time.Now()
		_, err := tx.ExecContext(ctx, insertSQL, args...)
		s.logger.LogSQLExecution(insertSQL, time.Since(startTime), int64(len(batch)), err)
		if err != nil {
			return errors.WrapError(err, fmt.Sprintf("failed to insert into %s", table.Name))
		}
	}

	return nil
}
