package database

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
)

// DatabaseConfig holds the configuration parameters for the live store connection
type DatabaseConfig struct {
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Database     string        `mapstructure:"database" yaml:"database"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// CLIConfig holds the complete CLI configuration
type CLIConfig struct {
	Database     DatabaseConfig `mapstructure:"database" yaml:"database"`
	BackupConfig string         `mapstructure:"backup_config" yaml:"backup_config"`
	Verbose      bool           `mapstructure:"verbose" yaml:"verbose"`
	AutoApprove  bool           `mapstructure:"auto_approve" yaml:"auto_approve"`
}

// Validate checks if the database configuration has all required parameters
func (dc *DatabaseConfig) Validate() error {
	var errs []error

	if dc.Host == "" {
		errs = append(errs, errors.New("host is required"))
	}

	if dc.Port <= 0 || dc.Port > 65535 {
		errs = append(errs, errors.New("port must be between 1 and 65535"))
	}

	if dc.Username == "" {
		errs = append(errs, errors.New("username is required"))
	}

	if dc.Database == "" {
		errs = append(errs, errors.New("database name is required"))
	}

	if dc.Timeout <= 0 {
		dc.Timeout = 30 * time.Second
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %v", errs)
	}

	return nil
}

// DSN returns the Data Source Name for MySQL connection.
// Times are parsed into time.Time and interpreted as UTC so snapshots are zone independent.
func (dc *DatabaseConfig) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = dc.Username
	cfg.Passwd = dc.Password
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
	cfg.DBName = dc.Database
	cfg.Timeout = dc.Timeout
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN()
}

// Validate checks if the CLI configuration is valid
func (cc *CLIConfig) Validate() error {
	if err := cc.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// SetDefaults sets default values for the configuration
func (cc *CLIConfig) SetDefaults() {
	if cc.Database.Port == 0 {
		cc.Database.Port = 3306
	}
	if cc.Database.Timeout == 0 {
		cc.Database.Timeout = 30 * time.Second
	}
	if cc.Database.MaxOpenConns == 0 {
		cc.Database.MaxOpenConns = 10
	}
}
