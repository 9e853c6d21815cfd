package backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSystemConfig(t *testing.T) *BackupSystemConfig {
	t.Helper()
	config := &BackupSystemConfig{Directory: t.TempDir()}
	config.SetDefaults()
	return config
}

func TestBackupSystemConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*BackupSystemConfig)
		wantErr string
	}{
		{
			name:   "valid configuration",
			modify: func(*BackupSystemConfig) {},
		},
		{
			name:    "missing directory",
			modify:  func(c *BackupSystemConfig) { c.Directory = "  " },
			wantErr: "directory",
		},
		{
			name:    "invalid compression algorithm",
			modify:  func(c *BackupSystemConfig) { c.Compression.Algorithm = "BZIP2" },
			wantErr: "compression.algorithm",
		},
		{
			name:    "invalid key source",
			modify:  func(c *BackupSystemConfig) { c.Encryption.KeySource = "vault" },
			wantErr: "encryption.key_source",
		},
		{
			name:    "unknown time zone",
			modify:  func(c *BackupSystemConfig) { c.Scheduler.Timezone = "Mars/Olympus" },
			wantErr: "scheduler.timezone",
		},
		{
			name: "duplicate table definition",
			modify: func(c *BackupSystemConfig) {
				c.Tables.Definitions = []TableDefinition{
					{Name: "parts", PrimaryKey: []string{"id"}},
					{Name: "parts", PrimaryKey: []string{"id"}},
				}
			},
			wantErr: "tables.definitions[1]",
		},
		{
			name:    "invalid slack webhook",
			modify:  func(c *BackupSystemConfig) { c.Notifications.Slack.WebhookURL = "ftp://example.com" },
			wantErr: "notifications.slack.webhook_url",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validSystemConfig(t)
			tt.modify(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)

			var validationErrs ValidationErrors
			require.ErrorAs(t, err, &validationErrs)
			fields := make([]string, 0, len(validationErrs))
			for _, ve := range validationErrs {
				fields = append(fields, ve.Field)
			}
			assert.Contains(t, fields, tt.wantErr)
		})
	}
}

func TestBackupSystemConfig_SetDefaults(t *testing.T) {
	config := &BackupSystemConfig{}
	config.SetDefaults()

	assert.Equal(t, "./backups", config.Directory)
	assert.Equal(t, "dev", config.AppVersion)
	assert.Equal(t, "1", config.SchemaVersion)
	assert.Equal(t, CompressionTypeZstd, config.Compression.Algorithm)
	assert.Equal(t, 3, config.Compression.Level)
	assert.Equal(t, 10*time.Minute, config.Remote.Timeout)
	assert.Equal(t, "us-east-1", config.Remote.S3.Region)
	assert.Equal(t, 10*time.Second, config.Notifications.Timeout)
	assert.Equal(t, 60, config.Notifications.RateLimit.MaxPerHour)
	assert.Equal(t, time.Minute, config.Scheduler.PollInterval)
	assert.Equal(t, 30*time.Minute, config.Scheduler.OperationTimeout)
	assert.Equal(t, "mrp_backup", config.Metrics.Namespace)
	assert.NoError(t, config.Validate())
}

func TestCompressionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  CompressionConfig
		wantErr bool
	}{
		{"none", CompressionConfig{Algorithm: CompressionTypeNone}, false},
		{"gzip in range", CompressionConfig{Algorithm: CompressionTypeGzip, Level: 9}, false},
		{"gzip out of range", CompressionConfig{Algorithm: CompressionTypeGzip, Level: 10}, true},
		{"lz4 in range", CompressionConfig{Algorithm: CompressionTypeLZ4, Level: 1}, false},
		{"lz4 out of range", CompressionConfig{Algorithm: CompressionTypeLZ4, Level: 0}, true},
		{"zstd in range", CompressionConfig{Algorithm: CompressionTypeZstd, Level: 22}, false},
		{"zstd out of range", CompressionConfig{Algorithm: CompressionTypeZstd, Level: 23}, true},
		{"unknown algorithm", CompressionConfig{Algorithm: "SNAPPY", Level: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCompressionConfig_SetDefaults(t *testing.T) {
	tests := []struct {
		algorithm     CompressionType
		wantAlgorithm CompressionType
		wantLevel     int
	}{
		{"", CompressionTypeZstd, 3},
		{"gzip", CompressionTypeGzip, 6},
		{"LZ4", CompressionTypeLZ4, 1},
		{"none", CompressionTypeNone, 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.wantAlgorithm), func(t *testing.T) {
			config := CompressionConfig{Algorithm: tt.algorithm}
			config.SetDefaults()
			assert.Equal(t, tt.wantAlgorithm, config.Algorithm)
			assert.Equal(t, tt.wantLevel, config.Level)
		})
	}
}

func TestEncryptionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  EncryptionConfig
		wantErr bool
	}{
		{"disabled", EncryptionConfig{}, false},
		{"env with variable", EncryptionConfig{KeySource: KeySourceEnv, KeyEnvVar: "BACKUP_ENCRYPTION_KEY"}, false},
		{"env without variable", EncryptionConfig{KeySource: KeySourceEnv}, true},
		{"file with path", EncryptionConfig{KeySource: KeySourceFile, KeyPath: "/etc/backup.key"}, false},
		{"file without path", EncryptionConfig{KeySource: KeySourceFile}, true},
		{"passphrase", EncryptionConfig{KeySource: KeySourcePassphrase, KeyEnvVar: "BACKUP_PASSPHRASE"}, false},
		{"external without retriever", EncryptionConfig{KeySource: KeySourceExternal}, true},
		{
			"external with retriever",
			EncryptionConfig{KeySource: KeySourceExternal, KeyRetriever: func() ([]byte, error) { return nil, nil }},
			false,
		},
		{"unknown source", EncryptionConfig{KeySource: "kms"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEncryptionConfig_LoadFromEnvironment(t *testing.T) {
	t.Setenv("BACKUP_ENCRYPTION_KEY_SOURCE", KeySourcePassphrase)

	config := EncryptionConfig{}
	config.LoadFromEnvironment()

	assert.Equal(t, KeySourcePassphrase, config.KeySource)
	assert.Equal(t, "BACKUP_ENCRYPTION_KEY", config.KeyEnvVar)
}

func TestRemoteConfig_ValidateFor(t *testing.T) {
	config := RemoteConfig{
		S3:    S3Config{Bucket: "backups", Region: "eu-west-1"},
		GCS:   GCSConfig{},
		Azure: AzureConfig{AccountName: "acct", ContainerName: "backups"},
		MinIO: MinIOConfig{Endpoint: "localhost:9000", Bucket: "backups"},
	}

	tests := []struct {
		provider CloudProvider
		wantErr  bool
	}{
		{CloudProviderS3, false},
		{CloudProviderGCS, true},
		{CloudProviderAzure, true},
		{CloudProviderMinIO, false},
		{CloudProvider("DROPBOX"), true},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			err := config.ValidateFor(tt.provider)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRemoteConfig_LoadFromEnvironment(t *testing.T) {
	t.Setenv("BACKUP_S3_BUCKET", "env-bucket")
	t.Setenv("BACKUP_S3_REGION", "ap-south-1")
	t.Setenv("BACKUP_MINIO_USE_SSL", "true")
	t.Setenv("BACKUP_REMOTE_TIMEOUT", "90s")

	config := RemoteConfig{}
	config.LoadFromEnvironment()

	assert.Equal(t, "env-bucket", config.S3.Bucket)
	assert.Equal(t, "ap-south-1", config.S3.Region)
	assert.True(t, config.MinIO.UseSSL)
	assert.Equal(t, 90*time.Second, config.Timeout)
}

func TestSchedulerConfig_Location(t *testing.T) {
	config := SchedulerConfig{Timezone: "UTC"}
	loc := config.Location()
	assert.Equal(t, time.UTC, loc)

	config.Timezone = "Nowhere/Special"
	assert.Equal(t, time.Local, config.Location())
}

func TestTablesConfig_Registry(t *testing.T) {
	t.Run("defaults when no definitions", func(t *testing.T) {
		config := TablesConfig{}
		registry, err := config.Registry()
		require.NoError(t, err)

		_, ok := registry.Lookup("parts")
		assert.True(t, ok)
	})

	t.Run("explicit definitions", func(t *testing.T) {
		config := TablesConfig{Definitions: []TableDefinition{
			{Name: "suppliers", PrimaryKey: []string{"id"}},
			{Name: "stock_movements", PrimaryKey: []string{"part_id", "moved_at"}},
		}}
		registry, err := config.Registry()
		require.NoError(t, err)

		assert.Equal(t, 2, registry.Len())
		descriptor, ok := registry.Lookup("stock_movements")
		require.True(t, ok)
		assert.Equal(t, []string{"part_id", "moved_at"}, descriptor.PrimaryKey)
	})
}
