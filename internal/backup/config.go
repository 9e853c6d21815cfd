package backup

import (
	"os"
	"strconv"
	"strings"
	"time"

	"mrp-backup/internal/schema"
)

// Key sources for the encryption master secret
const (
	KeySourceEnv        = "env"
	KeySourceFile       = "file"
	KeySourcePassphrase = "passphrase"
	KeySourceExternal   = "external"
)

// BackupSystemConfig is the static configuration of the backup engine.
// Operator-tunable policy (frequency, retention, thresholds) lives in BackupSettings.
type BackupSystemConfig struct {
	Directory     string             `yaml:"directory"`
	AppVersion    string             `yaml:"app_version"`
	SchemaVersion string             `yaml:"schema_version"`
	Compression   CompressionConfig  `yaml:"compression"`
	Encryption    EncryptionConfig   `yaml:"encryption"`
	Remote        RemoteConfig       `yaml:"remote"`
	Notifications NotificationConfig `yaml:"notifications"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Tables        TablesConfig       `yaml:"tables"`
	Metrics       MetricsConfig      `yaml:"metrics"`
}

// CompressionConfig selects the payload codec
type CompressionConfig struct {
	Algorithm CompressionType `yaml:"algorithm"`
	Level     int             `yaml:"level"`
}

// EncryptionConfig names where the master secret comes from. The secret itself
// is never stored in configuration.
type EncryptionConfig struct {
	KeySource string `yaml:"key_source"`  // "env", "file", "passphrase", "external"
	KeyPath   string `yaml:"key_path"`    // Path to key file
	KeyEnvVar string `yaml:"key_env_var"` // Environment variable holding the hex key or passphrase

	// KeyRetriever overrides KeySource, e.g. for a secrets manager
	KeyRetriever func() ([]byte, error) `yaml:"-"`
}

// RemoteConfig holds credentials for every supported object store. The active
// provider is chosen by BackupSettings.CloudProvider.
type RemoteConfig struct {
	ObjectPrefix string        `yaml:"object_prefix"`
	Timeout      time.Duration `yaml:"timeout"`
	S3           S3Config      `yaml:"s3"`
	GCS          GCSConfig     `yaml:"gcs"`
	Azure        AzureConfig   `yaml:"azure"`
	MinIO        MinIOConfig   `yaml:"minio"`
}

// S3Config contains S3-specific configuration
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Endpoint  string `yaml:"endpoint,omitempty"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket          string `yaml:"bucket"`
	CredentialsPath string `yaml:"credentials_path"`
	ProjectID       string `yaml:"project_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName   string `yaml:"account_name"`
	AccountKey    string `yaml:"account_key"`
	ContainerName string `yaml:"container_name"`
}

// MinIOConfig contains configuration for an S3-compatible MinIO server
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// NotificationConfig configures the channels that exist besides the settings webhook
type NotificationConfig struct {
	Timeout   time.Duration     `yaml:"timeout"`
	Slack     SlackConfig       `yaml:"slack"`
	File      FileChannelConfig `yaml:"file"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
}

// SlackConfig contains Slack incoming-webhook settings
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
	Username   string `yaml:"username"`
}

// FileChannelConfig appends events to a local file
type FileChannelConfig struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"` // "json" or "text"
}

// RateLimitConfig bounds outgoing notifications
type RateLimitConfig struct {
	MaxPerHour int `yaml:"max_per_hour"`
	Burst      int `yaml:"burst"`
}

// SchedulerConfig configures the automatic backup loop
type SchedulerConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	Timezone         string        `yaml:"timezone"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// TablesConfig controls which tables a snapshot covers
type TablesConfig struct {
	AutoDiscover bool              `yaml:"auto_discover"`
	Exclude      []string          `yaml:"exclude"`
	Definitions  []TableDefinition `yaml:"definitions"`
}

// TableDefinition declares one table and its primary key
type TableDefinition struct {
	Name       string   `yaml:"name"`
	PrimaryKey []string `yaml:"primary_key"`
}

// MetricsConfig controls Prometheus instrumentation
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Validate validates the BackupSystemConfig
func (bsc *BackupSystemConfig) Validate() error {
	var errors ValidationErrors

	if strings.TrimSpace(bsc.Directory) == "" {
		errors.Add("directory", "backup directory is required", bsc.Directory)
	}

	sections := []interface{ Validate() error }{
		&bsc.Compression, &bsc.Encryption, &bsc.Remote, &bsc.Notifications, &bsc.Scheduler, &bsc.Tables,
	}
	for _, section := range sections {
		if err := section.Validate(); err != nil {
			if validationErrs, ok := err.(ValidationErrors); ok {
				errors = append(errors, validationErrs...)
			} else {
				errors.Add("config", err.Error(), nil)
			}
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for the backup system configuration
func (bsc *BackupSystemConfig) SetDefaults() {
	if bsc.Directory == "" {
		bsc.Directory = "./backups"
	}
	if bsc.AppVersion == "" {
		bsc.AppVersion = "dev"
	}
	if bsc.SchemaVersion == "" {
		bsc.SchemaVersion = "1"
	}
	bsc.Compression.SetDefaults()
	bsc.Remote.SetDefaults()
	bsc.Notifications.SetDefaults()
	bsc.Scheduler.SetDefaults()
	if bsc.Metrics.Namespace == "" {
		bsc.Metrics.Namespace = "mrp_backup"
	}
}

// LoadFromEnvironment loads configuration values from BACKUP_* environment variables
func (bsc *BackupSystemConfig) LoadFromEnvironment() {
	envString("BACKUP_DIRECTORY", &bsc.Directory)
	envString("BACKUP_APP_VERSION", &bsc.AppVersion)
	envString("BACKUP_SCHEMA_VERSION", &bsc.SchemaVersion)
	bsc.Compression.LoadFromEnvironment()
	bsc.Encryption.LoadFromEnvironment()
	bsc.Remote.LoadFromEnvironment()
	bsc.Notifications.LoadFromEnvironment()
	bsc.Scheduler.LoadFromEnvironment()
	envBool("BACKUP_TABLES_AUTO_DISCOVER", &bsc.Tables.AutoDiscover)
	envBool("BACKUP_METRICS_ENABLED", &bsc.Metrics.Enabled)
}

// Validate validates the CompressionConfig
func (cc *CompressionConfig) Validate() error {
	var errors ValidationErrors

	if !isValidCompressionType(cc.Algorithm) {
		errors.Add("compression.algorithm", "invalid compression algorithm", cc.Algorithm)
	}

	switch cc.Algorithm {
	case CompressionTypeGzip:
		if cc.Level < 1 || cc.Level > 9 {
			errors.Add("compression.level", "gzip compression level must be between 1 and 9", cc.Level)
		}
	case CompressionTypeLZ4:
		if cc.Level < 1 || cc.Level > 9 {
			errors.Add("compression.level", "lz4 compression level must be between 1 and 9", cc.Level)
		}
	case CompressionTypeZstd:
		if cc.Level < 1 || cc.Level > 22 {
			errors.Add("compression.level", "zstd compression level must be between 1 and 22", cc.Level)
		}
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for compression configuration
func (cc *CompressionConfig) SetDefaults() {
	if cc.Algorithm == "" {
		cc.Algorithm = CompressionTypeZstd
	}
	cc.Algorithm = CompressionType(strings.ToUpper(string(cc.Algorithm)))

	if cc.Level == 0 {
		switch cc.Algorithm {
		case CompressionTypeGzip:
			cc.Level = 6
		case CompressionTypeLZ4:
			cc.Level = 1
		case CompressionTypeZstd:
			cc.Level = 3
		}
	}
}

// LoadFromEnvironment loads compression configuration from environment variables
func (cc *CompressionConfig) LoadFromEnvironment() {
	if val := os.Getenv("BACKUP_COMPRESSION_ALGORITHM"); val != "" {
		cc.Algorithm = CompressionType(strings.ToUpper(val))
	}
	envInt("BACKUP_COMPRESSION_LEVEL", &cc.Level)
}

// Validate validates the EncryptionConfig. An empty key source means no key is available.
func (ec *EncryptionConfig) Validate() error {
	var errors ValidationErrors

	switch ec.KeySource {
	case "":
	case KeySourceEnv, KeySourcePassphrase:
		if ec.KeyEnvVar == "" {
			errors.Add("encryption.key_env_var", "key environment variable name is required", ec.KeyEnvVar)
		}
	case KeySourceFile:
		if ec.KeyPath == "" {
			errors.Add("encryption.key_path", "key file path is required for file key source", ec.KeyPath)
		}
	case KeySourceExternal:
		if ec.KeyRetriever == nil {
			errors.Add("encryption.key_source", "external key source requires a key retriever", ec.KeySource)
		}
	default:
		errors.Add("encryption.key_source", "invalid key source, must be 'env', 'file', 'passphrase' or 'external'", ec.KeySource)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// LoadFromEnvironment loads encryption configuration from environment variables
func (ec *EncryptionConfig) LoadFromEnvironment() {
	envString("BACKUP_ENCRYPTION_KEY_SOURCE", &ec.KeySource)
	envString("BACKUP_ENCRYPTION_KEY_PATH", &ec.KeyPath)
	envString("BACKUP_ENCRYPTION_KEY_ENV_VAR", &ec.KeyEnvVar)
	if ec.KeySource != "" && ec.KeySource != KeySourceFile && ec.KeyEnvVar == "" {
		ec.KeyEnvVar = "BACKUP_ENCRYPTION_KEY"
	}
}

// Validate checks the shared remote settings. Provider credentials are
// checked when an uploader is built for the selected provider.
func (rc *RemoteConfig) Validate() error {
	var errors ValidationErrors
	if rc.Timeout < 0 {
		errors.Add("remote.timeout", "remote timeout cannot be negative", rc.Timeout)
	}
	if strings.Contains(rc.ObjectPrefix, "..") {
		errors.Add("remote.object_prefix", "object prefix cannot contain '..'", rc.ObjectPrefix)
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// ValidateFor validates the credentials of one provider
func (rc *RemoteConfig) ValidateFor(provider CloudProvider) error {
	var errors ValidationErrors

	switch provider {
	case CloudProviderS3:
		if rc.S3.Bucket == "" {
			errors.Add("remote.s3.bucket", "S3 bucket name is required", rc.S3.Bucket)
		}
		if rc.S3.Region == "" {
			errors.Add("remote.s3.region", "S3 region is required", rc.S3.Region)
		}
	case CloudProviderGCS:
		if rc.GCS.Bucket == "" {
			errors.Add("remote.gcs.bucket", "GCS bucket name is required", rc.GCS.Bucket)
		}
	case CloudProviderAzure:
		if rc.Azure.AccountName == "" {
			errors.Add("remote.azure.account_name", "Azure account name is required", rc.Azure.AccountName)
		}
		if rc.Azure.AccountKey == "" {
			errors.Add("remote.azure.account_key", "Azure account key is required", nil)
		}
		if rc.Azure.ContainerName == "" {
			errors.Add("remote.azure.container_name", "Azure container name is required", rc.Azure.ContainerName)
		}
	case CloudProviderMinIO:
		if rc.MinIO.Endpoint == "" {
			errors.Add("remote.minio.endpoint", "MinIO endpoint is required", rc.MinIO.Endpoint)
		}
		if rc.MinIO.Bucket == "" {
			errors.Add("remote.minio.bucket", "MinIO bucket name is required", rc.MinIO.Bucket)
		}
	default:
		errors.Add("cloud_provider", "unsupported cloud provider", provider)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for remote storage configuration
func (rc *RemoteConfig) SetDefaults() {
	if rc.Timeout == 0 {
		rc.Timeout = 10 * time.Minute
	}
	if rc.S3.Region == "" {
		rc.S3.Region = "us-east-1"
	}
	if rc.GCS.CredentialsPath == "" {
		rc.GCS.CredentialsPath = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
}

// LoadFromEnvironment loads remote storage credentials from environment variables
func (rc *RemoteConfig) LoadFromEnvironment() {
	envString("BACKUP_REMOTE_OBJECT_PREFIX", &rc.ObjectPrefix)
	envDuration("BACKUP_REMOTE_TIMEOUT", &rc.Timeout)

	envString("BACKUP_S3_BUCKET", &rc.S3.Bucket)
	envString("BACKUP_S3_REGION", &rc.S3.Region)
	envString("BACKUP_S3_ACCESS_KEY", &rc.S3.AccessKey)
	envString("BACKUP_S3_SECRET_KEY", &rc.S3.SecretKey)
	envString("BACKUP_S3_ENDPOINT", &rc.S3.Endpoint)

	envString("BACKUP_GCS_BUCKET", &rc.GCS.Bucket)
	envString("BACKUP_GCS_CREDENTIALS_PATH", &rc.GCS.CredentialsPath)
	envString("BACKUP_GCS_PROJECT_ID", &rc.GCS.ProjectID)

	envString("BACKUP_AZURE_ACCOUNT_NAME", &rc.Azure.AccountName)
	envString("BACKUP_AZURE_ACCOUNT_KEY", &rc.Azure.AccountKey)
	envString("BACKUP_AZURE_CONTAINER_NAME", &rc.Azure.ContainerName)

	envString("BACKUP_MINIO_ENDPOINT", &rc.MinIO.Endpoint)
	envString("BACKUP_MINIO_ACCESS_KEY", &rc.MinIO.AccessKey)
	envString("BACKUP_MINIO_SECRET_KEY", &rc.MinIO.SecretKey)
	envString("BACKUP_MINIO_BUCKET", &rc.MinIO.Bucket)
	envBool("BACKUP_MINIO_USE_SSL", &rc.MinIO.UseSSL)
}

// Validate validates the NotificationConfig
func (nc *NotificationConfig) Validate() error {
	var errors ValidationErrors

	if nc.Slack.WebhookURL != "" && !isHTTPURL(nc.Slack.WebhookURL) {
		errors.Add("notifications.slack.webhook_url", "Slack webhook URL must be an http(s) URL", nc.Slack.WebhookURL)
	}
	switch nc.File.Format {
	case "", "json", "text":
	default:
		errors.Add("notifications.file.format", "file format must be 'json' or 'text'", nc.File.Format)
	}
	if nc.RateLimit.MaxPerHour < 0 {
		errors.Add("notifications.rate_limit.max_per_hour", "rate limit cannot be negative", nc.RateLimit.MaxPerHour)
	}
	if nc.RateLimit.Burst < 0 {
		errors.Add("notifications.rate_limit.burst", "burst cannot be negative", nc.RateLimit.Burst)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for notification configuration
func (nc *NotificationConfig) SetDefaults() {
	if nc.Timeout == 0 {
		nc.Timeout = 10 * time.Second
	}
	if nc.File.Format == "" {
		nc.File.Format = "json"
	}
	if nc.RateLimit.MaxPerHour == 0 {
		nc.RateLimit.MaxPerHour = 60
	}
	if nc.RateLimit.Burst == 0 {
		nc.RateLimit.Burst = 5
	}
}

// LoadFromEnvironment loads notification configuration from environment variables
func (nc *NotificationConfig) LoadFromEnvironment() {
	envString("BACKUP_SLACK_WEBHOOK_URL", &nc.Slack.WebhookURL)
	envString("BACKUP_SLACK_CHANNEL", &nc.Slack.Channel)
	envString("BACKUP_NOTIFICATION_FILE", &nc.File.Path)
	envInt("BACKUP_NOTIFICATION_MAX_PER_HOUR", &nc.RateLimit.MaxPerHour)
}

// Validate validates the SchedulerConfig
func (sc *SchedulerConfig) Validate() error {
	var errors ValidationErrors

	if sc.PollInterval <= 0 {
		errors.Add("scheduler.poll_interval", "poll interval must be positive", sc.PollInterval)
	}
	if sc.OperationTimeout <= 0 {
		errors.Add("scheduler.operation_timeout", "operation timeout must be positive", sc.OperationTimeout)
	}
	if _, err := time.LoadLocation(sc.Timezone); err != nil {
		errors.Add("scheduler.timezone", "unknown time zone", sc.Timezone)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// SetDefaults sets default values for scheduler configuration
func (sc *SchedulerConfig) SetDefaults() {
	if sc.PollInterval == 0 {
		sc.PollInterval = time.Minute
	}
	if sc.Timezone == "" {
		sc.Timezone = "Local"
	}
	if sc.OperationTimeout == 0 {
		sc.OperationTimeout = 30 * time.Minute
	}
}

// LoadFromEnvironment loads scheduler configuration from environment variables
func (sc *SchedulerConfig) LoadFromEnvironment() {
	envDuration("BACKUP_SCHEDULER_POLL_INTERVAL", &sc.PollInterval)
	envString("BACKUP_SCHEDULER_TIMEZONE", &sc.Timezone)
	envDuration("BACKUP_OPERATION_TIMEOUT", &sc.OperationTimeout)
}

// Location resolves the configured time zone
func (sc *SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(sc.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Validate validates the TablesConfig
func (tc *TablesConfig) Validate() error {
	var errors ValidationErrors
	seen := make(map[string]bool)
	for i, def := range tc.Definitions {
		descriptor := schema.TableDescriptor{Name: def.Name, PrimaryKey: def.PrimaryKey}
		if err := descriptor.Validate(); err != nil {
			errors.Add("tables.definitions["+strconv.Itoa(i)+"]", err.Error(), def.Name)
		}
		if seen[def.Name] {
			errors.Add("tables.definitions["+strconv.Itoa(i)+"]", "duplicate table", def.Name)
		}
		seen[def.Name] = true
	}
	if errors.HasErrors() {
		return errors
	}
	return nil
}

// Registry builds a table registry from explicit definitions, falling back to the built-in tables
func (tc *TablesConfig) Registry() (*schema.Registry, error) {
	if len(tc.Definitions) == 0 {
		return schema.DefaultRegistry(), nil
	}

	descriptors := make([]schema.TableDescriptor, len(tc.Definitions))
	for i, def := range tc.Definitions {
		descriptors[i] = schema.TableDescriptor{Name: def.Name, PrimaryKey: def.PrimaryKey}
	}
	return schema.NewRegistry(descriptors...)
}

// GetEncryptionKey returns the configured master secret
func (ec *EncryptionConfig) GetEncryptionKey() ([]byte, error) {
	return NewKeyManager(ec).MasterSecret()
}

func envString(key string, target *string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

func envInt(key string, target *int) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			*target = parsed
		}
	}
}

func envBool(key string, target *bool) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			*target = parsed
		}
	}
}

func envDuration(key string, target *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			*target = parsed
		}
	}
}
