package cmd

import (
	"context"
	"database/sql"
	"fmt"

	"mrp-backup/internal/backup"
	"mrp-backup/internal/database"
	"mrp-backup/internal/display"
	"mrp-backup/internal/logging"
	"mrp-backup/internal/schema"

	"github.com/spf13/cobra"
)

// engine bundles what a command needs to talk to the backup engine
type engine struct {
	manager     *backup.Manager
	printer     *display.Printer
	logger      *logging.Logger
	autoApprove bool

	service *database.Service
	db      *sql.DB
	server  *database.ServerInfo
}

// openEngine connects to the live database, bootstraps the engine tables and
// builds the backup manager
func openEngine(cmd *cobra.Command) (*engine, error) {
	ctx := cmd.Context()

	cliConfig, err := dbLoader.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}

	logger, err := newLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	printer, err := newPrinter(cmd, !cliConfig.AutoApprove)
	if err != nil {
		return nil, err
	}

	backupConfig, err := backup.NewConfigLoader(cliConfig.BackupConfig).LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("backup configuration error: %w", err)
	}
	if backupConfig.AppVersion == "dev" && version != "dev" {
		backupConfig.AppVersion = version
	}

	service := database.NewServiceWithLogger(logger)
	db, err := service.Connect(ctx, cliConfig.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	e := &engine{
		printer:     printer,
		logger:      logger,
		autoApprove: cliConfig.AutoApprove,
		service:     service,
		db:          db,
	}

	if err := service.EnsureSchema(ctx, db); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create backup tables: %w", err)
	}

	if e.server, err = service.ServerInfo(ctx, db); err != nil {
		e.Close()
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"server_version": e.server.Version,
		"time_zone":      e.server.TimeZone,
	}).Debug("Connected to MySQL server")

	registry, err := tableRegistry(ctx, db, cliConfig.Database.Database, &backupConfig.Tables)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.manager, err = backup.NewManager(backupConfig, backup.Dependencies{
		Store:        database.NewStore(db, registry, logger),
		History:      database.NewHistoryRepository(db),
		Settings:     database.NewSettingsRepository(db),
		Logger:       logger,
		AuditLogFile: auditLogFile,
	})
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create backup manager: %w", err)
	}
	return e, nil
}

// tableRegistry returns the tables a snapshot covers: discovered from
// INFORMATION_SCHEMA when auto discovery is on, configured otherwise
func tableRegistry(ctx context.Context, db *sql.DB, schemaName string, tables *backup.TablesConfig) (*schema.Registry, error) {
	if !tables.AutoDiscover {
		return tables.Registry()
	}

	exclude := append([]string{database.HistoryTable, database.SettingsTable}, tables.Exclude...)
	descriptors, err := schema.NewExtractor().DiscoverTables(ctx, db, schemaName, exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tables: %w", err)
	}
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("no tables found in schema %s", schemaName)
	}
	return schema.NewRegistry(descriptors...)
}

// Close releases the database connection
func (e *engine) Close() {
	if e.db != nil {
		e.service.Close(e.db)
	}
}

// withEngine opens the engine, runs fn and closes it
func withEngine(fn func(cmd *cobra.Command, args []string, e *engine) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		done := e.logger.LogOperationStart(cmd.CommandPath(), map[string]interface{}{"args": args})
		err = fn(cmd, args, e)
		done(err)
		return err
	}
}
