package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mrp-backup/internal/backup"

	"github.com/spf13/cobra"
)

var (
	metricsAddr     string
	shutdownTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the automatic backup scheduler",
	Long: `Run the backup scheduler until interrupted.

The scheduler wakes when the next backup is due according to the stored
settings and re-reads them on every wake. With --metrics-addr an HTTP
endpoint serves Prometheus metrics on /metrics and the scheduler state on
/healthz.

Examples:
  mrp-backup serve
  mrp-backup serve --metrics-addr :9090`,
	Args: cobra.NoArgs,
	RunE: withEngine(runServe),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for /metrics and /healthz (disabled when empty)")
	serveCmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "time allowed for the HTTP server to drain on shutdown")
}

// schedulerEndpoint is what the HTTP endpoint reads from the manager
type schedulerEndpoint interface {
	MetricsHandler() http.Handler
	Metrics() *backup.MetricsCollector
	SchedulerStatus() backup.SchedulerStatus
}

// healthResponse is the /healthz body. Activity is present when metrics are enabled.
type healthResponse struct {
	backup.SchedulerStatus
	Activity *backup.BackupMetrics `json:"activity,omitempty"`
}

func newServeMux(m schedulerEndpoint) *http.ServeMux {
	mux := http.NewServeMux()
	if h := m.MetricsHandler(); h != nil {
		mux.Handle("/metrics", h)
	}
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{SchedulerStatus: m.SchedulerStatus()}
		if mc := m.Metrics(); mc != nil {
			summary := mc.GetMetrics()
			resp.Activity = &summary
		}
		w.Header().Set("Content-Type", "application/json")
		if resp.State == backup.SchedulerFailed {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func runServe(cmd *cobra.Command, args []string, e *engine) error {
	ctx := cmd.Context()

	e.manager.StartScheduler(ctx)
	defer e.manager.StopScheduler()

	next, enabled, err := e.manager.NextScheduledRun(ctx, time.Now())
	switch {
	case err != nil:
		e.printer.Warning("Could not compute the next backup: " + err.Error())
	case enabled:
		e.printer.Info("Next automatic backup at " + next.Local().Format(timeLayout))
	default:
		e.printer.Info("Automatic backups are disabled; the scheduler waits for settings to change")
	}

	var server *http.Server
	serverErr := make(chan error, 1)
	if metricsAddr != "" {
		server = &http.Server{
			Addr:              metricsAddr,
			Handler:           newServeMux(e.manager),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
		e.logger.WithField("addr", metricsAddr).Info("HTTP endpoint listening")
	}

	select {
	case <-ctx.Done():
		e.printer.Info("Shutting down")
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			e.logger.WithField("error", err.Error()).Warn("HTTP endpoint did not shut down cleanly")
		}
	}
	return nil
}
