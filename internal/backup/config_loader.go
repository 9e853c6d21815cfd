package backup

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigLoader handles loading and parsing backup configuration
type ConfigLoader struct {
	configPath string
}

// NewConfigLoader creates a new configuration loader
func NewConfigLoader(configPath string) *ConfigLoader {
	return &ConfigLoader{
		configPath: configPath,
	}
}

// LoadConfig reads the YAML file when present, applies BACKUP_* overrides,
// fills defaults and validates the result.
func (cl *ConfigLoader) LoadConfig() (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}

	if cl.configPath != "" {
		if err := cl.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	return finishConfig(config)
}

// loadFromFile loads configuration from a YAML file. A missing file is not an error.
func (cl *ConfigLoader) loadFromFile(config *BackupSystemConfig) error {
	data, err := os.ReadFile(cl.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", cl.configPath, err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// SaveConfig saves the backup configuration to a YAML file
func (cl *ConfigLoader) SaveConfig(config *BackupSystemConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("cannot save invalid configuration: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(cl.configPath), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	// the file may carry remote credentials
	if err := os.WriteFile(cl.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadConfigFromBytes loads configuration from YAML bytes
func LoadConfigFromBytes(data []byte) (*BackupSystemConfig, error) {
	config := &BackupSystemConfig{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return finishConfig(config)
}

func finishConfig(config *BackupSystemConfig) (*BackupSystemConfig, error) {
	config.LoadFromEnvironment()
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// GenerateDefaultConfigYAML returns a commented configuration file with the defaults
func GenerateDefaultConfigYAML() []byte {
	return []byte(`# mrp-backup engine configuration
# Policy such as frequency, retention and thresholds is stored in the
# backup_settings table and changed with "mrp-backup settings set".

# Local directory holding snapshots and their .sha256 sidecars
directory: ./backups

# Written into every snapshot header; a mismatch on restore is a warning
app_version: dev
schema_version: "1"

compression:
  # NONE, GZIP, LZ4 or ZSTD
  algorithm: ZSTD
  # 1-9 for GZIP and LZ4, 1-22 for ZSTD
  level: 3

encryption:
  # env, file, passphrase or external; leave empty to disable encryption
  key_source: ""
  # hex key (env) or passphrase (passphrase)
  key_env_var: BACKUP_ENCRYPTION_KEY
  # key_path: /etc/mrp-backup/backup.key

remote:
  object_prefix: mrp-backups
  timeout: 10m
  # s3:
  #   bucket: my-backup-bucket
  #   region: us-east-1
  #   access_key: ""
  #   secret_key: ""
  # gcs:
  #   bucket: my-backup-bucket
  #   credentials_path: /path/to/credentials.json
  # azure:
  #   account_name: ""
  #   account_key: ""
  #   container_name: backups
  # minio:
  #   endpoint: localhost:9000
  #   access_key: ""
  #   secret_key: ""
  #   bucket: backups
  #   use_ssl: false

notifications:
  timeout: 10s
  # slack:
  #   webhook_url: https://hooks.slack.com/services/...
  #   channel: "#ops"
  # file:
  #   path: ./backups/events.log
  #   format: json
  rate_limit:
    max_per_hour: 60
    burst: 5

scheduler:
  poll_interval: 1m
  timezone: Local
  operation_timeout: 30m

tables:
  # read table names and primary keys from information_schema
  auto_discover: false
  exclude: []
  # definitions:
  #   - name: parts
  #     primary_key: [id]

metrics:
  enabled: false
  namespace: mrp_backup
`)
}
