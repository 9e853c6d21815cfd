package backup

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const maxDescriptionLength = 500

var (
	timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)
	whitespace       = regexp.MustCompile(`\s+`)
)

// ValidateSettings checks every field of a settings value
func ValidateSettings(s *BackupSettings) error {
	var errors ValidationErrors

	if !IsValidFrequency(s.Frequency) {
		errors.Add("frequency", "frequency must be HOURLY, DAILY or WEEKLY", s.Frequency)
	}
	if !timeOfDayPattern.MatchString(s.TimeOfDay) {
		errors.Add("timeOfDay", "time of day must be HH:MM in 24-hour format", s.TimeOfDay)
	}
	if s.DayOfWeek < 0 || s.DayOfWeek > 6 {
		errors.Add("dayOfWeek", "day of week must be between 0 (Sunday) and 6", s.DayOfWeek)
	}
	if s.RetentionDays < 0 {
		errors.Add("retentionDays", "retention days cannot be negative", s.RetentionDays)
	}
	if s.MaxBackupCount < 0 {
		errors.Add("maxBackupCount", "max backup count cannot be negative", s.MaxBackupCount)
	}
	if s.DiskThresholdGb < 0 {
		errors.Add("diskThresholdGb", "disk threshold cannot be negative", s.DiskThresholdGb)
	}
	if s.CloudBackupEnabled && !IsValidCloudProvider(s.CloudProvider) {
		errors.Add("cloudProvider", "cloud provider must be S3, GCS, AZURE or MINIO", s.CloudProvider)
	}
	if s.WebhookURL != "" && !isHTTPURL(s.WebhookURL) {
		errors.Add("webhookUrl", "webhook URL must be an absolute http(s) URL", s.WebhookURL)
	}

	if errors.HasErrors() {
		return errors
	}
	return nil
}

// IsValidFrequency checks if a frequency is supported
func IsValidFrequency(f Frequency) bool {
	switch f {
	case FrequencyHourly, FrequencyDaily, FrequencyWeekly:
		return true
	default:
		return false
	}
}

// IsValidCloudProvider checks if a cloud provider is supported
func IsValidCloudProvider(p CloudProvider) bool {
	switch p {
	case CloudProviderS3, CloudProviderGCS, CloudProviderAzure, CloudProviderMinIO:
		return true
	default:
		return false
	}
}

// parseTimeOfDay splits a validated "HH:MM" value
func parseTimeOfDay(value string) (hour, minute int, err error) {
	if !timeOfDayPattern.MatchString(value) {
		return 0, 0, NewValidationError(fmt.Sprintf("invalid time of day %q", value), nil)
	}
	fmt.Sscanf(value, "%d:%d", &hour, &minute)
	return hour, minute, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// SanitizeDescription collapses whitespace and truncates long descriptions
func SanitizeDescription(description string) string {
	description = whitespace.ReplaceAllString(strings.TrimSpace(description), " ")
	if len(description) > maxDescriptionLength {
		description = description[:maxDescriptionLength-3] + "..."
	}
	return description
}
