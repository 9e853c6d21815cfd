package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"mrp-backup/internal/errors"
	"mrp-backup/internal/logging"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
)

const defaultConnectTimeout = 30 * time.Second

// Service opens and bootstraps the connection to the live inventory/MRP store
type Service struct {
	connectTimeout time.Duration
	logger         *logging.Logger
	retryHandler   *errors.RetryHandler
}

// ServiceOption customizes a Service
type ServiceOption func(*Service)

// WithConnectTimeout bounds each connection attempt and server query
func WithConnectTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// WithRetry replaces the default connection retry policy
func WithRetry(config errors.RetryConfig) ServiceOption {
	return func(s *Service) {
		s.retryHandler = errors.NewRetryHandler(config)
	}
}

// NewService creates a service with the default timeout and retry policy
func NewService(opts ...ServiceOption) *Service {
	return NewServiceWithLogger(logging.NewDefaultLogger(), opts...)
}

// NewServiceWithLogger creates a service logging through logger
func NewServiceWithLogger(logger *logging.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		connectTimeout: defaultConnectTimeout,
		logger:         logger,
		retryHandler:   errors.NewDefaultRetryHandler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the pool and pings the server, retrying transient failures
func (s *Service) Connect(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, "invalid database configuration", err)
	}

	startTime := time.Now()
	s.logger.WithFields(map[string]interface{}{
		"host":     config.Host,
		"database": config.Database,
		"port":     config.Port,
	}).Info("Connecting to the inventory database")

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}

	var db *sql.DB
	err := s.retryHandler.Retry(ctx, func() error {
		var openErr error
		db, openErr = sql.Open("mysql", config.DSN())
		if openErr != nil {
			return errors.WrapError(openErr, "failed to open database connection")
		}

		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen / 2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if pingErr := s.Ping(ctx, db); pingErr != nil {
			db.Close()
			return pingErr
		}
		return nil
	})

	s.logger.LogDatabaseConnection(config.Host, config.Database, err == nil, time.Since(startTime), err)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Ping checks that the pool can reach the server
func (s *Service) Ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}
	return nil
}

// Close closes the pool. A nil pool is ignored.
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to close database connection")
		return errors.WrapError(err, "failed to close database connection")
	}
	s.logger.Debug("Database connection closed")
	return nil
}

// ServerInfo describes the server a snapshot is taken from
type ServerInfo struct {
	Version  string `json:"version" yaml:"version"`
	Schema   string `json:"schema" yaml:"schema"`
	TimeZone string `json:"time_zone" yaml:"time_zone"`
}

const serverInfoQuery = "SELECT VERSION(), DATABASE(), @@session.time_zone"

// ServerInfo reads the server version, current schema and session time zone
func (s *Service) ServerInfo(ctx context.Context, db *sql.DB) (*ServerInfo, error) {
	if db == nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	var (
		info   ServerInfo
		schema sql.NullString
	)
	startTime := time.Now()
	err := db.QueryRowContext(ctx, serverInfoQuery).Scan(&info.Version, &schema, &info.TimeZone)
	s.logger.LogSQLExecution(serverInfoQuery, time.Since(startTime), 1, err)
	if err != nil {
		return nil, errors.WrapError(err, "failed to read server information")
	}
	info.Schema = schema.String
	return &info, nil
}

// execStatements runs idempotent DDL one statement at a time. MySQL commits
// DDL implicitly, so no transaction is opened.
func (s *Service) execStatements(ctx context.Context, db *sql.DB, statements []string) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}

		startTime := time.Now()
		result, execErr := db.ExecContext(ctx, stmt)
		var rowsAffected int64
		if result != nil {
			rowsAffected, _ = result.RowsAffected()
		}
		s.logger.LogSQLExecution(stmt, time.Since(startTime), rowsAffected, execErr)

		if execErr != nil {
			wrapped := errors.WrapError(execErr, fmt.Sprintf("failed to execute bootstrap statement %d", i+1))
			if appErr, ok := wrapped.(*errors.AppError); ok {
				return appErr.WithContext("statement_index", i)
			}
			return wrapped
		}
	}
	return nil
}
