package backup

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BackupMetrics is a point-in-time summary of engine activity
type BackupMetrics struct {
	BackupsSucceeded  int64     `json:"backups_succeeded" yaml:"backups_succeeded"`
	BackupsFailed     int64     `json:"backups_failed" yaml:"backups_failed"`
	RestoresSucceeded int64     `json:"restores_succeeded" yaml:"restores_succeeded"`
	RestoresFailed    int64     `json:"restores_failed" yaml:"restores_failed"`
	UploadsFailed     int64     `json:"uploads_failed" yaml:"uploads_failed"`
	LastBackupTime    time.Time `json:"last_backup_time,omitempty" yaml:"last_backup_time,omitempty"`
	LastBackupSize    int64     `json:"last_backup_size" yaml:"last_backup_size"`
}

// MetricsCollector records engine activity as Prometheus metrics on its own registry
type MetricsCollector struct {
	registry *prometheus.Registry

	backupsTotal         *prometheus.CounterVec
	backupDuration       prometheus.Histogram
	backupSize           prometheus.Gauge
	backupRecords        prometheus.Gauge
	lastSuccess          prometheus.Gauge
	restoresTotal        *prometheus.CounterVec
	restoreDuration      prometheus.Histogram
	uploadsTotal         *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
	retentionDeleted     prometheus.Counter
	storageBytes         prometheus.Gauge
	storageCount         prometheus.Gauge
	storageOverThreshold prometheus.Gauge

	mu      sync.Mutex
	summary BackupMetrics
}

// NewMetricsCollector creates a collector whose metric names start with namespace
func NewMetricsCollector(namespace string) *MetricsCollector {
	if namespace == "" {
		namespace = "mrp_backup"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &MetricsCollector{
		registry: reg,
		backupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots attempted, by kind and result",
		}, []string{"kind", "result"}),
		backupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Time to produce a snapshot",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		backupSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_size_bytes",
			Help:      "Size of the most recent snapshot",
		}),
		backupRecords: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_records",
			Help:      "Total records in the most recent snapshot",
		}),
		lastSuccess: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the most recent successful snapshot",
		}),
		restoresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restores_total",
			Help:      "Restores attempted, by result",
		}, []string{"result"}),
		restoreDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restore_duration_seconds",
			Help:      "Time to complete a restore",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		uploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remote_uploads_total",
			Help:      "Remote uploads attempted, by provider and result",
		}, []string{"provider", "result"}),
		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications attempted, by channel and result",
		}, []string{"channel", "result"}),
		retentionDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retention_deleted_total",
			Help:      "Snapshots deleted by retention",
		}),
		storageBytes: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_bytes",
			Help:      "Total size of local snapshots",
		}),
		storageCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_snapshots",
			Help:      "Number of local snapshots",
		}),
		storageOverThreshold: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_over_threshold",
			Help:      "1 while local snapshot usage exceeds the disk threshold",
		}),
	}
}

// Registry exposes the underlying registry
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the metrics in the Prometheus text format
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

// RecordBackupOperation records one snapshot attempt
func (mc *MetricsCollector) RecordBackupOperation(kind Kind, result *SnapshotResult, duration time.Duration, err error) {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err != nil {
		mc.backupsTotal.WithLabelValues(string(kind), "failure").Inc()
		mc.summary.BackupsFailed++
		return
	}

	mc.backupsTotal.WithLabelValues(string(kind), "success").Inc()
	mc.backupDuration.Observe(duration.Seconds())
	mc.summary.BackupsSucceeded++
	mc.summary.LastBackupTime = time.Now()
	mc.lastSuccess.Set(float64(mc.summary.LastBackupTime.Unix()))
	if result != nil {
		mc.backupSize.Set(float64(result.Size))
		mc.backupRecords.Set(float64(result.TotalRecords))
		mc.summary.LastBackupSize = result.Size
	}
}

// RecordRestoreOperation records one restore attempt
func (mc *MetricsCollector) RecordRestoreOperation(duration time.Duration, err error) {
	if mc == nil {
		return
	}
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if err != nil {
		mc.restoresTotal.WithLabelValues("failure").Inc()
		mc.summary.RestoresFailed++
		return
	}
	mc.restoresTotal.WithLabelValues("success").Inc()
	mc.restoreDuration.Observe(duration.Seconds())
	mc.summary.RestoresSucceeded++
}

// RecordUpload records one remote upload attempt
func (mc *MetricsCollector) RecordUpload(provider CloudProvider, err error) {
	if mc == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
		mc.mu.Lock()
		mc.summary.UploadsFailed++
		mc.mu.Unlock()
	}
	mc.uploadsTotal.WithLabelValues(string(provider), result).Inc()
}

// RecordNotification records one delivery attempt on a channel
func (mc *MetricsCollector) RecordNotification(channel string, result string) {
	if mc == nil {
		return
	}
	mc.notificationsTotal.WithLabelValues(channel, result).Inc()
}

// RecordRetention records snapshots removed by a retention pass
func (mc *MetricsCollector) RecordRetention(result *RetentionResult) {
	if mc == nil || result == nil {
		return
	}
	mc.retentionDeleted.Add(float64(len(result.Deleted)))
}

// RecordStorageUsage publishes the latest disk usage
func (mc *MetricsCollector) RecordStorageUsage(usage *DiskUsage) {
	if mc == nil || usage == nil {
		return
	}
	mc.storageBytes.Set(float64(usage.TotalBytes))
	mc.storageCount.Set(float64(usage.BackupCount))
	if usage.IsOverThreshold {
		mc.storageOverThreshold.Set(1)
	} else {
		mc.storageOverThreshold.Set(0)
	}
}

// GetMetrics returns a copy of the running summary
func (mc *MetricsCollector) GetMetrics() BackupMetrics {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return mc.summary
}
