package cmd

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"mrp-backup/internal/backup"
	"mrp-backup/internal/database"
	"mrp-backup/internal/display"
)

const timeLayout = "2006-01-02 15:04:05"

func renderSnapshots(p *display.Printer, snapshots []*backup.Snapshot) error {
	if p.Structured() {
		return p.Encode(snapshots)
	}
	if len(snapshots) == 0 {
		p.Info("No backups found")
		return nil
	}

	table := p.NewTable().
		SetHeaders("File", "Kind", "Created", "Size", "Records", "Encrypted", "Checksum").
		AlignRight(3, 4)
	for _, s := range snapshots {
		records := "-"
		if s.Metadata != nil {
			records = strconv.FormatInt(s.Metadata.TotalRecords, 10)
		}
		checksum := "ok"
		if !s.ChecksumValid {
			checksum = "MISMATCH"
		}
		table.AddRow(
			s.FileName,
			string(s.Kind),
			s.CreatedAt.Local().Format(timeLayout),
			display.HumanBytes(s.Size),
			records,
			yesNo(s.Encrypted),
			checksum,
		)
	}
	table.RenderTo(p.Writer())
	return nil
}

func renderSnapshotResult(p *display.Printer, r *backup.SnapshotResult) error {
	if p.Structured() {
		return p.Encode(r)
	}
	p.Success(fmt.Sprintf("Backup created: %s (%s, %d records, %s)",
		r.FileName, display.HumanBytes(r.Size), r.TotalRecords, r.Duration.Round(time.Millisecond)))
	return nil
}

func renderVerification(p *display.Printer, r *backup.VerificationResult) error {
	if p.Structured() {
		return p.Encode(r)
	}
	p.Header("Verification of " + r.FileName)
	pairs := [][2]string{
		{"Checksum", passFail(r.ChecksumValid)},
		{"Expected", r.Expected},
		{"Actual", r.Actual},
		{"Decryptable", passFail(r.Decryptable)},
	}
	if r.Metadata != nil {
		pairs = append(pairs,
			[2]string{"Kind", string(r.Metadata.Kind)},
			[2]string{"Created", r.Metadata.CreatedAt.Local().Format(timeLayout)},
			[2]string{"App version", r.Metadata.AppVersion},
			[2]string{"Records", strconv.FormatInt(r.Metadata.TotalRecords, 10)},
		)
	}
	p.KeyValues(pairs)
	for _, e := range r.Errors {
		p.Error(e)
	}
	if r.Valid {
		p.Success("Backup is valid")
	}
	return nil
}

func renderRestore(p *display.Printer, r *backup.RestoreResult) error {
	if p.Structured() {
		return p.Encode(r)
	}
	for _, w := range r.Warnings {
		p.Warning(w)
	}

	table := p.NewTable().SetHeaders("Table", "Rows").AlignRight(1)
	for _, name := range sortedKeys(r.RestoredTables) {
		table.AddRow(name, strconv.FormatInt(r.RestoredTables[name], 10))
	}
	table.RenderTo(p.Writer())

	p.Success(fmt.Sprintf("Restored %d records from %s in %s",
		r.TotalRestored, r.FileName, r.Duration.Round(time.Millisecond)))
	p.Info("Previous state saved as " + r.PreRestoreFile)
	return nil
}

func renderCompare(p *display.Printer, r *backup.CompareResult) error {
	if p.Structured() {
		return p.Encode(r)
	}
	p.Header(fmt.Sprintf("%s (A) vs %s (B)", r.Backup.Source, r.Current.Source))

	table := p.NewTable().
		SetHeaders("Table", "Records A", "Records B", "Added", "Modified", "Deleted").
		AlignRight(1, 2, 3, 4, 5)
	for _, d := range r.Differences {
		name := d.Table
		if d.HasChanges() {
			name += " *"
		}
		table.AddRow(name,
			strconv.FormatInt(d.RecordsA, 10),
			strconv.FormatInt(d.RecordsB, 10),
			strconv.FormatInt(d.Added, 10),
			strconv.FormatInt(d.Modified, 10),
			strconv.FormatInt(d.Deleted, 10),
		)
	}
	table.RenderTo(p.Writer())

	for _, d := range r.Differences {
		if len(d.ColumnsAdded) > 0 {
			p.Warning(fmt.Sprintf("%s: columns only in B: %s", d.Table, strings.Join(d.ColumnsAdded, ", ")))
		}
		if len(d.ColumnsRemoved) > 0 {
			p.Warning(fmt.Sprintf("%s: columns only in A: %s", d.Table, strings.Join(d.ColumnsRemoved, ", ")))
		}
	}

	s := r.Summary
	if s.Identical {
		p.Success(fmt.Sprintf("Identical: %d tables, %d records", s.TablesCompared, r.Current.TotalRecords))
		return nil
	}
	p.Info(fmt.Sprintf("%d of %d tables changed: %d added, %d modified, %d deleted",
		s.TablesChanged, s.TablesCompared, s.Added, s.Modified, s.Deleted))
	return nil
}

func renderSettings(p *display.Printer, s *backup.BackupSettings) error {
	if p.Structured() {
		return p.Encode(s)
	}
	webhook := s.WebhookURL
	if webhook == "" {
		webhook = "-"
	}
	updated := "never"
	if !s.UpdatedAt.IsZero() {
		updated = s.UpdatedAt.Local().Format(timeLayout)
	}

	p.Header("Backup settings")
	p.KeyValues([][2]string{
		{"Automatic backups", yesNo(s.AutoBackupEnabled)},
		{"Frequency", string(s.Frequency)},
		{"Time of day", s.TimeOfDay},
		{"Day of week", time.Weekday(s.DayOfWeek).String()},
		{"Retention days", strconv.Itoa(s.RetentionDays)},
		{"Max backups", strconv.Itoa(s.MaxBackupCount)},
		{"Cloud backup", yesNo(s.CloudBackupEnabled)},
		{"Cloud provider", string(s.CloudProvider)},
		{"Encryption", yesNo(s.EncryptionEnabled)},
		{"Notify on success", yesNo(s.NotifyOnSuccess)},
		{"Notify on failure", yesNo(s.NotifyOnFailure)},
		{"Webhook URL", webhook},
		{"Disk threshold", strconv.FormatFloat(s.DiskThresholdGb, 'f', -1, 64) + " GiB"},
		{"Updated", updated},
	})
	return nil
}

func renderDiskUsage(p *display.Printer, u *backup.DiskUsage, dir string) error {
	if p.Structured() {
		return p.Encode(u)
	}
	p.Header("Backup storage")
	p.KeyValues([][2]string{
		{"Directory", dir},
		{"Backups", strconv.Itoa(u.BackupCount)},
		{"Total size", display.HumanBytes(u.TotalBytes)},
		{"Threshold", display.HumanBytes(u.ThresholdBytes)},
		{"Usage", fmt.Sprintf("%.1f%%", u.UsagePercent)},
		{"Oldest", orDash(u.OldestBackup)},
		{"Newest", orDash(u.NewestBackup)},
	})
	if u.IsOverThreshold {
		p.Warning("Backup storage is over the configured threshold")
	}
	return nil
}

func renderHistory(p *display.Printer, entries []*backup.HistoryEntry) error {
	if p.Structured() {
		return p.Encode(entries)
	}
	if len(entries) == 0 {
		p.Info("No backup history")
		return nil
	}

	table := p.NewTable().
		SetHeaders("Started", "Kind", "Status", "File", "Size", "Duration", "Error").
		AlignRight(4, 5)
	for _, e := range entries {
		table.AddRow(
			e.CreatedAt.Local().Format(timeLayout),
			e.Kind,
			e.Status,
			orDash(e.FileName),
			display.HumanBytes(e.SizeBytes),
			(time.Duration(e.DurationMs) * time.Millisecond).String(),
			e.ErrorMessage,
		)
	}
	table.RenderTo(p.Writer())

	for _, e := range entries {
		if e.Status == database.StatusPending {
			p.Info("A backup started at " + e.CreatedAt.Local().Format(timeLayout) + " has not finished")
			break
		}
	}
	return nil
}

func renderPreflight(p *display.Printer, server *database.ServerInfo, r *backup.PreflightResult) error {
	if p.Structured() {
		return p.Encode(struct {
			Server *database.ServerInfo    `json:"server" yaml:"server"`
			Check  *backup.PreflightResult `json:"check" yaml:"check"`
		}{server, r})
	}
	p.Header("Backup engine check")
	p.KeyValues([][2]string{
		{"MySQL server", server.Version + " (" + server.Schema + ", time zone " + server.TimeZone + ")"},
		{"Configuration", passFail(r.ConfigValid)},
		{"Backup directory", passFail(r.StorageReady)},
		{"Write permission", passFail(r.PermissionsOK)},
		{"Encryption key", passFail(r.EncryptionReady)},
		{"Cloud storage", passFail(r.RemoteReady)},
	})
	for _, e := range r.Errors {
		p.Error(e)
	}
	for _, w := range r.Warnings {
		p.Warning(w)
	}
	for _, rec := range r.Recommendations {
		p.Info(rec)
	}
	if r.Ready {
		p.Success("Ready to take backups")
	}
	return nil
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func passFail(b bool) string {
	if b {
		return "pass"
	}
	return "FAIL"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
