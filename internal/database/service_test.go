package database

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "mrp-backup/internal/errors"
	"mrp-backup/internal/logging"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestNewService_Options(t *testing.T) {
	service := NewService()
	if service.connectTimeout != defaultConnectTimeout {
		t.Errorf("Expected default timeout %v, got %v", defaultConnectTimeout, service.connectTimeout)
	}

	service = NewService(WithConnectTimeout(5*time.Second), WithRetry(apperrors.RetryConfig{MaxAttempts: 1, Multiplier: 1}))
	if service.connectTimeout != 5*time.Second {
		t.Errorf("Expected timeout 5s, got %v", service.connectTimeout)
	}
	if service.retryHandler == nil {
		t.Error("Expected retry handler to be set")
	}

	service = NewService(WithConnectTimeout(0))
	if service.connectTimeout != defaultConnectTimeout {
		t.Errorf("Expected zero timeout to be ignored, got %v", service.connectTimeout)
	}
}

func TestNewServiceWithLogger(t *testing.T) {
	logger := logging.NewDiscardLogger()
	service := NewServiceWithLogger(logger)
	if service.logger != logger {
		t.Error("Expected custom logger to be set")
	}
}

func TestConnect_EmptyConfig(t *testing.T) {
	service := NewServiceWithLogger(logging.NewDiscardLogger())

	_, err := service.Connect(context.Background(), DatabaseConfig{})
	if err == nil {
		t.Error("Expected error for empty config")
	}
}

func TestNilDatabaseHandling(t *testing.T) {
	service := NewServiceWithLogger(logging.NewDiscardLogger())
	ctx := context.Background()

	testCases := []struct {
		name     string
		testFunc func() error
	}{
		{
			name:     "Ping",
			testFunc: func() error { return service.Ping(ctx, nil) },
		},
		{
			name: "ServerInfo",
			testFunc: func() error {
				_, err := service.ServerInfo(ctx, nil)
				return err
			},
		},
		{
			name:     "EnsureSchema",
			testFunc: func() error { return service.EnsureSchema(ctx, nil) },
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.testFunc(); err == nil {
				t.Error("Expected error but got none")
			}
		})
	}

	if err := service.Close(nil); err != nil {
		t.Errorf("Expected no error for closing nil connection, got %v", err)
	}
}

func TestServerInfo(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT VERSION\(\), DATABASE\(\), @@session.time_zone`).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()", "DATABASE()", "@@session.time_zone"}).
			AddRow("8.0.36", "mrp", "+00:00"))

	service := NewServiceWithLogger(logging.NewDiscardLogger())
	info, err := service.ServerInfo(context.Background(), db)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Version != "8.0.36" || info.Schema != "mrp" || info.TimeZone != "+00:00" {
		t.Errorf("Unexpected server info: %+v", info)
	}
}

func TestServerInfo_NoSchemaSelected(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT VERSION\(\)`).
		WillReturnRows(sqlmock.NewRows([]string{"VERSION()", "DATABASE()", "@@session.time_zone"}).
			AddRow("8.0.36", nil, "SYSTEM"))

	service := NewServiceWithLogger(logging.NewDiscardLogger())
	info, err := service.ServerInfo(context.Background(), db)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if info.Schema != "" {
		t.Errorf("Expected empty schema, got %q", info.Schema)
	}
}

func TestExecStatements_SkipsBlankStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE b").WillReturnError(errors.New("boom"))

	service := NewServiceWithLogger(logging.NewDiscardLogger())
	err = service.execStatements(context.Background(), db, []string{"CREATE TABLE a (id INT)", "", "  \n", "CREATE TABLE b (id INT)"})
	if err == nil {
		t.Fatal("Expected error from second statement")
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("Expected AppError, got %T", err)
	}
	if appErr.Context["statement_index"] != 3 {
		t.Errorf("Expected statement_index 3, got %v", appErr.Context["statement_index"])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backup_history").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS backup_settings").WillReturnResult(sqlmock.NewResult(0, 0))

	service := NewServiceWithLogger(logging.NewDiscardLogger())
	if err := service.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unfulfilled expectations: %v", err)
	}
}

func BenchmarkDatabaseConfig_DSN(b *testing.B) {
	config := DatabaseConfig{
		Host:     "localhost",
		Port:     3306,
		Username: "root",
		Password: "password",
		Database: "mrp",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = config.DSN()
	}
}
