package backup

import (
	"context"
	"fmt"
	"os"
)

// PreflightResult reports whether the engine is ready to run with the
// current configuration and settings
type PreflightResult struct {
	Ready           bool     `json:"ready" yaml:"ready"`
	ConfigValid     bool     `json:"config_valid" yaml:"config_valid"`
	StorageReady    bool     `json:"storage_ready" yaml:"storage_ready"`
	PermissionsOK   bool     `json:"permissions_ok" yaml:"permissions_ok"`
	EncryptionReady bool     `json:"encryption_ready" yaml:"encryption_ready"`
	RemoteReady     bool     `json:"remote_ready" yaml:"remote_ready"`
	Warnings        []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Errors          []string `json:"errors,omitempty" yaml:"errors,omitempty"`
	Recommendations []string `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// Preflight runs the readiness checks
type Preflight struct {
	config    *BackupSystemConfig
	uploaders UploaderFactory
}

// NewPreflight creates a checker. uploaders may be nil, in which case the
// remote uploader is built from config.
func NewPreflight(config *BackupSystemConfig, uploaders UploaderFactory) *Preflight {
	if uploaders == nil {
		remote := config.Remote
		uploaders = func(ctx context.Context, provider CloudProvider) (RemoteUploader, error) {
			return NewRemoteUploader(ctx, provider, remote)
		}
	}
	return &Preflight{config: config, uploaders: uploaders}
}

// Run checks configuration, the backup directory, encryption and remote
// storage. Disabled features count as ready. Only configuration and
// directory problems make the engine not ready; the others cause the
// matching post-snapshot step to fail.
func (p *Preflight) Run(ctx context.Context, settings *BackupSettings) *PreflightResult {
	result := &PreflightResult{
		ConfigValid:     true,
		StorageReady:    true,
		PermissionsOK:   true,
		EncryptionReady: true,
		RemoteReady:     true,
	}

	if err := p.config.Validate(); err != nil {
		result.ConfigValid = false
		result.Errors = append(result.Errors, fmt.Sprintf("configuration: %v", err))
	}

	if err := p.checkDirectory(); err != nil {
		result.StorageReady = false
		result.PermissionsOK = false
		result.Errors = append(result.Errors, err.Error())
	}

	if settings.EncryptionEnabled {
		if _, err := NewKeyManager(&p.config.Encryption).MasterSecret(); err != nil {
			result.EncryptionReady = false
			result.Errors = append(result.Errors, fmt.Sprintf("encryption is enabled but no key is available: %v", err))
		}
	}

	if settings.CloudBackupEnabled {
		if _, err := p.uploaders(ctx, settings.CloudProvider); err != nil {
			result.RemoteReady = false
			result.Warnings = append(result.Warnings, fmt.Sprintf("cloud backup to %s will fail: %v", settings.CloudProvider, err))
		}
	}

	p.recommend(settings, result)

	result.Ready = result.ConfigValid && result.StorageReady && result.EncryptionReady
	return result
}

// checkDirectory creates the backup directory and proves it is writable
func (p *Preflight) checkDirectory() error {
	dir := p.config.Directory
	if err := os.MkdirAll(dir, defaultDirPerms); err != nil {
		return fmt.Errorf("cannot create backup directory %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("cannot access backup directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("backup path is not a directory: %s", dir)
	}

	scratch, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return fmt.Errorf("backup directory %s is not writable: %w", dir, err)
	}
	scratch.Close()
	os.Remove(scratch.Name())
	return nil
}

func (p *Preflight) recommend(settings *BackupSettings, result *PreflightResult) {
	if !settings.EncryptionEnabled {
		result.Recommendations = append(result.Recommendations,
			"Enable encryption if backups leave this machine")
	}
	if !settings.AutoBackupEnabled {
		result.Recommendations = append(result.Recommendations,
			"Automatic backups are disabled; run 'settings set --auto-backup' and 'serve'")
	}
	if settings.RetentionDays == 0 && settings.MaxBackupCount == 0 {
		result.Recommendations = append(result.Recommendations,
			"No retention rule is set; backups accumulate until deleted by hand")
	}
	if p.config.Compression.Algorithm == CompressionTypeNone {
		result.Recommendations = append(result.Recommendations,
			"Compression is disabled; ZSTD usually shrinks snapshots considerably")
	}
}
