package database

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigLoader handles loading the connection configuration from multiple sources
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{
		viper: viper.New(),
	}
}

// AddFlags adds database configuration flags to a cobra command
func (cl *ConfigLoader) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.String("db-host", "", "Database host")
	flags.Int("db-port", 3306, "Database port")
	flags.String("db-username", "", "Database username")
	flags.String("db-password", "", "Database password")
	flags.String("db-name", "", "Database name")
	flags.String("backup-config", "", "Backup engine configuration file (YAML)")
	flags.Bool("auto-approve", false, "Skip interactive confirmation")

	cl.viper.BindPFlag("database.host", flags.Lookup("db-host"))
	cl.viper.BindPFlag("database.port", flags.Lookup("db-port"))
	cl.viper.BindPFlag("database.username", flags.Lookup("db-username"))
	cl.viper.BindPFlag("database.password", flags.Lookup("db-password"))
	cl.viper.BindPFlag("database.database", flags.Lookup("db-name"))
	cl.viper.BindPFlag("backup_config", flags.Lookup("backup-config"))
	cl.viper.BindPFlag("auto_approve", flags.Lookup("auto-approve"))
}

// LoadConfig loads configuration from file, environment variables, and CLI flags
func (cl *ConfigLoader) LoadConfig(configFile string) (*CLIConfig, error) {
	if configFile != "" {
		cl.viper.SetConfigFile(configFile)
	} else {
		cl.viper.SetConfigName("mrp-backup")
		cl.viper.SetConfigType("yaml")
		cl.viper.AddConfigPath(".")
		cl.viper.AddConfigPath("$HOME/.config/mrp-backup")
		cl.viper.AddConfigPath("$HOME")
	}

	// MRP_BACKUP_DATABASE_HOST overrides database.host
	cl.viper.SetEnvPrefix("MRP_BACKUP")
	cl.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	cl.viper.AutomaticEnv()

	// Try to read config file (it's okay if it doesn't exist)
	if err := cl.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config CLIConfig
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// GetUsedConfigFile returns the path of the config file that was used
func (cl *ConfigLoader) GetUsedConfigFile() string {
	return cl.viper.ConfigFileUsed()
}
