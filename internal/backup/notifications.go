package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// EventType names an engine event delivered to notification channels
type EventType string

const (
	EventBackupSuccess         EventType = "BACKUP_SUCCESS"
	EventBackupFailure         EventType = "BACKUP_FAILURE"
	EventDiskThresholdExceeded EventType = "DISK_THRESHOLD_EXCEEDED"
	EventRestoreSuccess        EventType = "RESTORE_SUCCESS"
	EventRestoreFailure        EventType = "RESTORE_FAILURE"
	EventRemoteUploadFailure   EventType = "REMOTE_UPLOAD_FAILURE"
)

// Event is the structured payload posted to every channel
type Event struct {
	Type       EventType `json:"type"`
	FileName   string    `json:"fileName,omitempty"`
	Size       int64     `json:"size,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// IsFailure reports whether the event describes something that went wrong
func (e *Event) IsFailure() bool {
	switch e.Type {
	case EventBackupSuccess, EventRestoreSuccess:
		return false
	}
	return true
}

// NotificationChannel delivers events to one destination
type NotificationChannel interface {
	Send(ctx context.Context, event *Event) error
	GetType() string
	IsEnabled() bool
}

// NotificationDispatcher fans an event out to every enabled channel. Delivery
// failures are logged and never returned to the caller.
type NotificationDispatcher struct {
	logger   *BackupLogger
	metrics  *MetricsCollector
	channels []NotificationChannel
	limiter  *rate.Limiter
	timeout  time.Duration
}

// NewNotificationDispatcher creates a dispatcher. webhookURL is resolved on every
// delivery so a settings change takes effect without a restart.
func NewNotificationDispatcher(config NotificationConfig, webhookURL func(ctx context.Context) string, logger *BackupLogger, metrics *MetricsCollector) *NotificationDispatcher {
	if logger == nil {
		logger = newDefaultBackupLogger(nil)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	nd := &NotificationDispatcher{
		logger:  logger,
		metrics: metrics,
		limiter: newNotificationLimiter(config.RateLimit),
		timeout: timeout,
	}
	if webhookURL != nil {
		nd.channels = append(nd.channels, NewWebhookChannel(webhookURL, client))
	}
	if config.Slack.WebhookURL != "" {
		nd.channels = append(nd.channels, NewSlackChannel(config.Slack, client))
	}
	if config.File.Path != "" {
		nd.channels = append(nd.channels, NewFileChannel(config.File))
	}
	return nd
}

func newNotificationLimiter(config RateLimitConfig) *rate.Limiter {
	if config.MaxPerHour <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := config.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(float64(config.MaxPerHour)/3600), burst)
}

// AddChannel registers an extra channel
func (nd *NotificationDispatcher) AddChannel(channel NotificationChannel) {
	nd.channels = append(nd.channels, channel)
}

// Notify delivers event to every enabled channel. Events beyond the rate
// limit are dropped, except DISK_THRESHOLD_EXCEEDED.
func (nd *NotificationDispatcher) Notify(ctx context.Context, event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	entry := nd.logger.Entry(ctx).WithField("event_type", string(event.Type))

	// threshold alerts fire once per crossing and are never dropped
	if event.Type != EventDiskThresholdExceeded && !nd.limiter.Allow() {
		entry.Warn("Notification rate limit exceeded, dropping event")
		nd.metrics.RecordNotification("all", "rate_limited")
		return
	}

	// a cancelled operation still reports its failure
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), nd.timeout)
	defer cancel()

	for _, channel := range nd.channels {
		if !channel.IsEnabled() {
			continue
		}
		if err := channel.Send(sendCtx, event); err != nil {
			derr := NewNotificationDeliveryError(fmt.Sprintf("failed to deliver %s via %s", event.Type, channel.GetType()), err).
				WithContext("channel", channel.GetType())
			entry.WithFields(logrus.Fields{
				"channel": channel.GetType(),
				"error":   derr.Error(),
			}).Warn("Failed to send notification")
			nd.metrics.RecordNotification(channel.GetType(), "failure")
			continue
		}
		entry.WithField("channel", channel.GetType()).Debug("Notification sent")
		nd.metrics.RecordNotification(channel.GetType(), "success")
	}
}

// WebhookChannel posts the raw event JSON to the settings webhook
type WebhookChannel struct {
	url    func(ctx context.Context) string
	client *http.Client
}

// NewWebhookChannel creates a webhook channel
func NewWebhookChannel(url func(ctx context.Context) string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookChannel{url: url, client: client}
}

// Send posts the event
func (wc *WebhookChannel) Send(ctx context.Context, event *Event) error {
	url := wc.url(ctx)
	if url == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}
	return postJSON(ctx, wc.client, url, payload)
}

// GetType returns the channel type
func (wc *WebhookChannel) GetType() string {
	return "webhook"
}

// IsEnabled checks if the channel is enabled
func (wc *WebhookChannel) IsEnabled() bool {
	return wc.url != nil
}

// SlackChannel posts a formatted message to a Slack incoming webhook
type SlackChannel struct {
	config SlackConfig
	client *http.Client
}

// NewSlackChannel creates a new Slack notification channel
func NewSlackChannel(config SlackConfig, client *http.Client) *SlackChannel {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackChannel{config: config, client: client}
}

// Send sends a Slack notification
func (sc *SlackChannel) Send(ctx context.Context, event *Event) error {
	color, emoji := "#36a64f", ":white_check_mark:"
	if event.IsFailure() {
		color, emoji = "#ff0000", ":rotating_light:"
	}

	fields := []map[string]interface{}{
		{"title": "Event", "value": string(event.Type), "short": true},
	}
	if event.FileName != "" {
		fields = append(fields, map[string]interface{}{"title": "File", "value": event.FileName, "short": true})
	}
	if event.Size > 0 {
		fields = append(fields, map[string]interface{}{"title": "Size", "value": formatBytes(event.Size), "short": true})
	}
	if event.DurationMs > 0 {
		fields = append(fields, map[string]interface{}{"title": "Duration", "value": fmt.Sprintf("%dms", event.DurationMs), "short": true})
	}

	attachment := map[string]interface{}{
		"color":  color,
		"title":  eventTitle(event.Type),
		"ts":     event.Timestamp.Unix(),
		"fields": fields,
	}
	if event.Error != "" {
		attachment["text"] = event.Error
	}

	payload := map[string]interface{}{
		"text":        fmt.Sprintf("%s %s", emoji, eventTitle(event.Type)),
		"attachments": []map[string]interface{}{attachment},
	}
	if sc.config.Channel != "" {
		payload["channel"] = sc.config.Channel
	}
	if sc.config.Username != "" {
		payload["username"] = sc.config.Username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal Slack payload: %w", err)
	}
	return postJSON(ctx, sc.client, sc.config.WebhookURL, body)
}

// GetType returns the channel type
func (sc *SlackChannel) GetType() string {
	return "slack"
}

// IsEnabled checks if the channel is enabled
func (sc *SlackChannel) IsEnabled() bool {
	return sc.config.WebhookURL != ""
}

// FileChannel appends events to a local file, one per line
type FileChannel struct {
	config FileChannelConfig
}

// NewFileChannel creates a new file notification channel
func NewFileChannel(config FileChannelConfig) *FileChannel {
	return &FileChannel{config: config}
}

// Send writes a notification to a file
func (fc *FileChannel) Send(ctx context.Context, event *Event) error {
	var line string
	switch fc.config.Format {
	case "text":
		line = fmt.Sprintf("[%s] %s", event.Timestamp.Format(time.RFC3339), event.Type)
		if event.FileName != "" {
			line += " file=" + event.FileName
		}
		if event.Error != "" {
			line += " error=" + event.Error
		}
		line += "\n"
	default:
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal notification to JSON: %w", err)
		}
		line = string(data) + "\n"
	}

	file, err := os.OpenFile(fc.config.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return fmt.Errorf("failed to open notification file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(line); err != nil {
		return fmt.Errorf("failed to write notification to file: %w", err)
	}
	return nil
}

// GetType returns the channel type
func (fc *FileChannel) GetType() string {
	return "file"
}

// IsEnabled checks if the channel is enabled
func (fc *FileChannel) IsEnabled() bool {
	return fc.config.Path != ""
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("endpoint returned error status: %d", resp.StatusCode)
	}
	return nil
}

func eventTitle(t EventType) string {
	switch t {
	case EventBackupSuccess:
		return "Backup completed"
	case EventBackupFailure:
		return "Backup failed"
	case EventDiskThresholdExceeded:
		return "Backup storage over threshold"
	case EventRestoreSuccess:
		return "Restore completed"
	case EventRestoreFailure:
		return "Restore failed"
	case EventRemoteUploadFailure:
		return "Remote upload failed"
	}
	return string(t)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
