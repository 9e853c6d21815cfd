package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mrp-backup/internal/database"
	"mrp-backup/internal/logging"
	"mrp-backup/internal/schema"

	"github.com/stretchr/testify/require"
)

// memoryStore is an in-memory LiveStore
type memoryStore struct {
	mu      sync.Mutex
	data    *schema.Dataset
	exports int
	replace func(dataset *schema.Dataset) error
	export  func(ctx context.Context) error
	// unknown tables are skipped by Replace like tables missing from a registry
	unknown map[string]bool
}

func newMemoryStore(dataset *schema.Dataset) *memoryStore {
	return &memoryStore{data: cloneDataset(dataset)}
}

func (s *memoryStore) Export(ctx context.Context) (*schema.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exports++
	if s.export != nil {
		if err := s.export(ctx); err != nil {
			return nil, err
		}
	}
	return cloneDataset(s.data), nil
}

func (s *memoryStore) Replace(ctx context.Context, dataset *schema.Dataset) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replace != nil {
		if err := s.replace(dataset); err != nil {
			return nil, err
		}
	}
	restored := cloneDataset(dataset)
	for name := range s.unknown {
		delete(restored.Tables, name)
	}
	s.data = restored
	return restored.RowCounts(), nil
}

func (s *memoryStore) snapshot() *schema.Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDataset(s.data)
}

func (s *memoryStore) mutate(fn func(*schema.Dataset)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.data)
}

func cloneDataset(d *schema.Dataset) *schema.Dataset {
	out := schema.NewDataset()
	for name, t := range d.Tables {
		c := &schema.Table{
			Name:       t.Name,
			PrimaryKey: append([]string(nil), t.PrimaryKey...),
			Columns:    append([]schema.Column(nil), t.Columns...),
			Rows:       make([][]interface{}, len(t.Rows)),
		}
		for i, row := range t.Rows {
			c.Rows[i] = append([]interface{}(nil), row...)
		}
		out.Tables[name] = c
	}
	return out
}

// partsDataset builds the parts table with n rows plus a small suppliers table
func partsDataset(n int) *schema.Dataset {
	parts := &schema.Table{
		Name:       "parts",
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", DataType: "bigint"},
			{Name: "sku", DataType: "varchar(64)"},
			{Name: "quantity", DataType: "int"},
			{Name: "unit_cost", DataType: "decimal(10,2)"},
		},
	}
	for i := 1; i <= n; i++ {
		parts.Rows = append(parts.Rows, []interface{}{int64(i), fmt.Sprintf("PART-%04d", i), int64(i * 10), "4.50"})
	}

	suppliers := &schema.Table{
		Name:       "suppliers",
		PrimaryKey: []string{"id"},
		Columns: []schema.Column{
			{Name: "id", DataType: "bigint"},
			{Name: "name", DataType: "varchar(255)"},
		},
		Rows: [][]interface{}{
			{int64(1), "Acme Fasteners"},
			{int64(2), "Northwind Metals"},
		},
	}

	dataset := schema.NewDataset()
	dataset.AddTable(parts)
	dataset.AddTable(suppliers)
	return dataset
}

// memoryHistory is an in-memory HistoryStore
type memoryHistory struct {
	mu      sync.Mutex
	records []*database.HistoryRecord
	err     error
}

func (h *memoryHistory) Append(ctx context.Context, record *database.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	c := *record
	h.records = append(h.records, &c)
	return nil
}

func (h *memoryHistory) Finish(ctx context.Context, record *database.HistoryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, r := range h.records {
		if r.ID == record.ID {
			c := *record
			h.records[i] = &c
			return nil
		}
	}
	return errors.New("history record not found")
}

func (h *memoryHistory) Recent(ctx context.Context, limit int) ([]*database.HistoryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*database.HistoryRecord
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		c := *h.records[i]
		out = append(out, &c)
	}
	return out, nil
}

func (h *memoryHistory) all() []*database.HistoryRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*database.HistoryRecord(nil), h.records...)
}

// memorySettings is an in-memory SettingsRepository
type memorySettings struct {
	mu     sync.Mutex
	record *database.SettingsRecord
	saves  int
	err    error
}

func newMemorySettings(s *BackupSettings) *memorySettings {
	repo := &memorySettings{}
	if s != nil {
		repo.record = s.toRecord()
	}
	return repo
}

func (r *memorySettings) Load(ctx context.Context) (*database.SettingsRecord, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, false, r.err
	}
	if r.record == nil {
		return nil, false, nil
	}
	c := *r.record
	return &c, true, nil
}

func (r *memorySettings) Save(ctx context.Context, record *database.SettingsRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	record.UpdatedAt = time.Now().UTC()
	c := *record
	r.record = &c
	r.saves++
	return nil
}

// recordingNotifier captures every event it is given
type recordingNotifier struct {
	mu     sync.Mutex
	events []*Event
}

func (n *recordingNotifier) Notify(ctx context.Context, event *Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := *event
	n.events = append(n.events, &c)
}

func (n *recordingNotifier) Send(ctx context.Context, event *Event) error {
	n.Notify(ctx, event)
	return nil
}

func (n *recordingNotifier) GetType() string { return "recording" }

func (n *recordingNotifier) IsEnabled() bool { return true }

func (n *recordingNotifier) ofType(t EventType) []*Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// bufferLogger returns a verbose JSON logger writing into buf
func bufferLogger(t *testing.T, buf *bytes.Buffer) *logging.Logger {
	t.Helper()
	logger, err := logging.NewLogger(logging.Config{
		Level:  logging.LogLevelVerbose,
		Output: buf,
		Format: "json",
	})
	require.NoError(t, err)
	return logger
}

// quietSettings disables everything that would touch the network or prune files
func quietSettings() *BackupSettings {
	s := DefaultSettings()
	s.AutoBackupEnabled = false
	s.RetentionDays = 0
	s.MaxBackupCount = 0
	s.NotifyOnFailure = false
	s.DiskThresholdGb = 0
	return s
}

type testEngine struct {
	manager  *Manager
	store    *memoryStore
	history  *memoryHistory
	settings *memorySettings
	events   *recordingNotifier
	config   *BackupSystemConfig
}

// newTestEngine builds a Manager over in-memory collaborators in a temp directory
func newTestEngine(t *testing.T, dataset *schema.Dataset, settings *BackupSettings, modify ...func(*BackupSystemConfig)) *testEngine {
	t.Helper()
	if settings == nil {
		settings = quietSettings()
	}

	config := &BackupSystemConfig{Directory: t.TempDir()}
	config.Notifications.RateLimit = RateLimitConfig{MaxPerHour: 3600, Burst: 100}
	for _, fn := range modify {
		fn(config)
	}
	config.SetDefaults()

	engine := &testEngine{
		store:    newMemoryStore(dataset),
		history:  &memoryHistory{},
		settings: newMemorySettings(settings),
		events:   &recordingNotifier{},
		config:   config,
	}

	manager, err := NewManager(config, Dependencies{
		Store:    engine.store,
		History:  engine.history,
		Settings: engine.settings,
		Logger:   logging.NewDiscardLogger(),
		Channels: []NotificationChannel{engine.events},
	})
	require.NoError(t, err)
	engine.manager = manager
	return engine
}

func withExternalKey(key []byte) func(*BackupSystemConfig) {
	return func(c *BackupSystemConfig) {
		c.Encryption = EncryptionConfig{
			KeySource:    KeySourceExternal,
			KeyRetriever: func() ([]byte, error) { return key, nil },
		}
	}
}
