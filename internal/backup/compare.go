package backup

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"mrp-backup/internal/schema"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// SideKind tells where one side of a comparison is read from
type SideKind string

const (
	SideSnapshot SideKind = "SNAPSHOT"
	SideLive     SideKind = "LIVE"
)

// CompareSide is one input of a comparison
type CompareSide struct {
	Kind     SideKind
	FileName string
}

// SnapshotSide reads a verified, decrypted snapshot
func SnapshotSide(fileName string) CompareSide {
	return CompareSide{Kind: SideSnapshot, FileName: fileName}
}

// LiveSide reads the live store in one consistent transaction
func LiveSide() CompareSide {
	return CompareSide{Kind: SideLive}
}

func (s CompareSide) String() string {
	if s.Kind == SideLive {
		return "live"
	}
	return s.FileName
}

// TableDiff counts row differences for one table. Added rows exist only on
// side B, deleted rows only on side A.
type TableDiff struct {
	Table          string   `json:"table" yaml:"table"`
	Added          int64    `json:"added" yaml:"added"`
	Modified       int64    `json:"modified" yaml:"modified"`
	Deleted        int64    `json:"deleted" yaml:"deleted"`
	RecordsA       int64    `json:"records_a" yaml:"records_a"`
	RecordsB       int64    `json:"records_b" yaml:"records_b"`
	ColumnsAdded   []string `json:"columns_added,omitempty" yaml:"columns_added,omitempty"`
	ColumnsRemoved []string `json:"columns_removed,omitempty" yaml:"columns_removed,omitempty"`
}

// HasChanges reports whether the table differs between the sides
func (d *TableDiff) HasChanges() bool {
	return d.Added > 0 || d.Modified > 0 || d.Deleted > 0 || len(d.ColumnsAdded) > 0 || len(d.ColumnsRemoved) > 0
}

// CompareSummary totals a comparison
type CompareSummary struct {
	TablesCompared int   `json:"tables_compared" yaml:"tables_compared"`
	TablesChanged  int   `json:"tables_changed" yaml:"tables_changed"`
	Added          int64 `json:"added" yaml:"added"`
	Modified       int64 `json:"modified" yaml:"modified"`
	Deleted        int64 `json:"deleted" yaml:"deleted"`
	Identical      bool  `json:"identical" yaml:"identical"`
}

// SideTotals describes one side of a comparison
type SideTotals struct {
	Source       string `json:"source" yaml:"source"`
	TotalRecords int64  `json:"total_records" yaml:"total_records"`
}

// CompareResult is the outcome of a comparison. Backup is side A and Current is side B.
type CompareResult struct {
	Summary     CompareSummary `json:"summary" yaml:"summary"`
	Differences []*TableDiff   `json:"differences" yaml:"differences"`
	Backup      SideTotals     `json:"backup" yaml:"backup"`
	Current     SideTotals     `json:"current" yaml:"current"`
	Duration    time.Duration  `json:"duration" yaml:"duration"`
}

// Table returns the diff for one table
func (r *CompareResult) Table(name string) (*TableDiff, bool) {
	for _, d := range r.Differences {
		if d.Table == name {
			return d, true
		}
	}
	return nil, false
}

// CompareEngine diffs snapshots and the live store. It takes no lock.
type CompareEngine struct {
	store     LiveStore
	validator *BackupValidator
	logger    *BackupLogger
}

// NewCompareEngine creates a compare engine
func NewCompareEngine(store LiveStore, validator *BackupValidator, logger *BackupLogger) *CompareEngine {
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	return &CompareEngine{store: store, validator: validator, logger: logger}
}

// Compare loads both sides concurrently and diffs every table present on either side
func (ce *CompareEngine) Compare(ctx context.Context, a, b CompareSide) (*CompareResult, error) {
	start := time.Now()

	var dataA, dataB *schema.Dataset
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dataA, err = ce.load(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		dataB, err = ce.load(gctx, b)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := DiffDatasets(dataA, dataB)
	result.Backup.Source = a.String()
	result.Current.Source = b.String()
	result.Duration = time.Since(start)

	ce.logger.Entry(ctx).WithFields(logrus.Fields{
		"side_a":         a.String(),
		"side_b":         b.String(),
		"tables_changed": result.Summary.TablesChanged,
		"added":          result.Summary.Added,
		"modified":       result.Summary.Modified,
		"deleted":        result.Summary.Deleted,
	}).Info("Comparison completed")
	return result, nil
}

func (ce *CompareEngine) load(ctx context.Context, side CompareSide) (*schema.Dataset, error) {
	switch side.Kind {
	case SideLive:
		dataset, err := ce.store.Export(ctx)
		if err != nil {
			return nil, NewDatabaseError("failed to read the live store", err)
		}
		return dataset, nil
	case SideSnapshot:
		_, dataset, err := ce.validator.Load(ctx, side.FileName)
		return dataset, err
	}
	return nil, NewValidationError(fmt.Sprintf("unknown compare side %q", side.Kind), nil)
}

// DiffDatasets compares two datasets table by table
func DiffDatasets(a, b *schema.Dataset) *CompareResult {
	result := &CompareResult{
		Differences: []*TableDiff{},
		Backup:      SideTotals{TotalRecords: a.TotalRows()},
		Current:     SideTotals{TotalRecords: b.TotalRows()},
	}

	names := make(map[string]struct{})
	for _, name := range a.TableNames() {
		names[name] = struct{}{}
	}
	for _, name := range b.TableNames() {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		tableA, _ := a.Table(name)
		tableB, _ := b.Table(name)
		diff := diffTable(name, tableA, tableB)

		result.Differences = append(result.Differences, diff)
		result.Summary.TablesCompared++
		result.Summary.Added += diff.Added
		result.Summary.Modified += diff.Modified
		result.Summary.Deleted += diff.Deleted
		if diff.HasChanges() {
			result.Summary.TablesChanged++
		}
	}
	result.Summary.Identical = result.Summary.TablesChanged == 0
	return result
}

func diffTable(name string, a, b *schema.Table) *TableDiff {
	diff := &TableDiff{Table: name}
	switch {
	case a == nil && b == nil:
		return diff
	case a == nil:
		diff.RecordsB = b.RowCount()
		diff.Added = diff.RecordsB
		return diff
	case b == nil:
		diff.RecordsA = a.RowCount()
		diff.Deleted = diff.RecordsA
		return diff
	}

	diff.RecordsA = a.RowCount()
	diff.RecordsB = b.RowCount()
	diff.ColumnsAdded, diff.ColumnsRemoved = columnChanges(a, b)

	keyA, errA := keyPairs(a, b)
	if errA != nil || len(keyA) == 0 {
		diffMultiset(diff, a, b)
		return diff
	}
	diffKeyed(diff, a, b, keyA)
	return diff
}

// columnPair maps one column name to its position on each side
type columnPair struct {
	name string
	a, b int
}

// keyPairs resolves the primary key on both sides; an empty result means the
// table has no usable key.
func keyPairs(a, b *schema.Table) ([]columnPair, error) {
	keys := a.PrimaryKey
	if len(keys) == 0 {
		keys = b.PrimaryKey
	}
	pairs := make([]columnPair, 0, len(keys))
	for _, key := range keys {
		ia, ib := a.ColumnIndex(key), b.ColumnIndex(key)
		if ia < 0 || ib < 0 {
			return nil, fmt.Errorf("key column %s missing from table %s", key, a.Name)
		}
		pairs = append(pairs, columnPair{name: key, a: ia, b: ib})
	}
	return pairs, nil
}

// commonColumns lists columns present on both sides, in side A order
func commonColumns(a, b *schema.Table, exclude []columnPair) []columnPair {
	skip := make(map[string]bool, len(exclude))
	for _, p := range exclude {
		skip[strings.ToLower(p.name)] = true
	}
	var pairs []columnPair
	for ia, col := range a.Columns {
		if skip[strings.ToLower(col.Name)] {
			continue
		}
		if ib := b.ColumnIndex(col.Name); ib >= 0 {
			pairs = append(pairs, columnPair{name: col.Name, a: ia, b: ib})
		}
	}
	return pairs
}

func columnChanges(a, b *schema.Table) (added, removed []string) {
	for _, col := range b.Columns {
		if a.ColumnIndex(col.Name) < 0 {
			added = append(added, col.Name)
		}
	}
	for _, col := range a.Columns {
		if b.ColumnIndex(col.Name) < 0 {
			removed = append(removed, col.Name)
		}
	}
	return added, removed
}

// rowKey normalizes the paired columns of a row from table t, using t's column types
func rowKey(t *schema.Table, row []interface{}, pairs []columnPair, sideA bool) string {
	values := make([]interface{}, len(pairs))
	types := make([]string, len(pairs))
	for i, p := range pairs {
		idx := p.b
		if sideA {
			idx = p.a
		}
		if idx < len(row) {
			values[i] = row[idx]
		}
		if idx < len(t.Columns) {
			types[i] = t.Columns[idx].DataType
		}
	}
	return schema.RowKey(types, values)
}

func diffKeyed(diff *TableDiff, a, b *schema.Table, keys []columnPair) {
	fields := commonColumns(a, b, keys)

	rowsA := make(map[string][]interface{}, len(a.Rows))
	for _, row := range a.Rows {
		rowsA[rowKey(a, row, keys, true)] = row
	}

	seen := make(map[string]bool, len(b.Rows))
	for _, rowB := range b.Rows {
		key := rowKey(b, rowB, keys, false)
		seen[key] = true
		rowA, ok := rowsA[key]
		if !ok {
			diff.Added++
			continue
		}
		if rowKey(a, rowA, fields, true) != rowKey(b, rowB, fields, false) {
			diff.Modified++
		}
	}
	for key := range rowsA {
		if !seen[key] {
			diff.Deleted++
		}
	}
}

// diffMultiset compares keyless tables by full normalized row with multiplicity
func diffMultiset(diff *TableDiff, a, b *schema.Table) {
	fields := commonColumns(a, b, nil)

	counts := make(map[string]int64, len(a.Rows))
	for _, row := range a.Rows {
		counts[rowKey(a, row, fields, true)]++
	}
	for _, row := range b.Rows {
		key := rowKey(b, row, fields, false)
		if counts[key] > 0 {
			counts[key]--
			continue
		}
		diff.Added++
	}
	for _, n := range counts {
		diff.Deleted += n
	}
}
