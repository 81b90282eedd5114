// exporter exports every report in a workspace through the reporting API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"reportexporter/internal/batch"
	"reportexporter/internal/config"
	"reportexporter/internal/export"
	"reportexporter/internal/health"
	"reportexporter/internal/notify"
	"reportexporter/internal/observability"
	"reportexporter/internal/powerbi"
	"reportexporter/pkg/backoff"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Export run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Environment first, flags override.
	cfg := config.Load()

	pflag.StringVar(&cfg.WorkspaceID, "workspace", cfg.WorkspaceID, "workspace (group) ID to export")
	pflag.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "directory for exported files")
	pflag.StringVar(&cfg.Format, "format", cfg.Format, "export format (PDF or PNG)")
	pflag.StringSliceVar(&cfg.PageNames, "pages", cfg.PageNames, "report pages to export (default: all)")
	pflag.StringVar(&cfg.URLFilter, "url-filter", cfg.URLFilter, "filter applied at export time")
	pflag.DurationVar(&cfg.PollTimeout, "poll-timeout", cfg.PollTimeout, "wall-clock bound for polling one export")
	pflag.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "submissions per report before giving up")
	pflag.IntVar(&cfg.Workers, "workers", cfg.Workers, "concurrent exports")
	pflag.Parse()

	if cfg.AccessToken == "" {
		return errors.New("access token is required (PBI_ACCESS_TOKEN or PBI_TOKEN_FILE)")
	}
	if cfg.WorkspaceID == "" {
		return errors.New("workspace ID is required (--workspace or PBI_WORKSPACE_ID)")
	}
	format, err := export.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	client := powerbi.NewClient(powerbi.Config{
		BaseURL:     cfg.BaseURL,
		AccessToken: cfg.AccessToken,
		HTTPTimeout: cfg.HTTPTimeout,
		Metrics:     metrics,
	})

	// Readiness probes the workspace listing, the cheapest authenticated call.
	checker := health.NewChecker(health.ReadyFunc(func(ctx context.Context) error {
		_, err := client.Reports(ctx, cfg.WorkspaceID)
		return err
	}))

	var opsServer *http.Server
	if cfg.MetricsPort != "" {
		opsServer = startOpsServer(cfg.MetricsPort, metricsHandler, checker)
	}

	orchestrator := export.New(client, export.Config{
		PollTimeout:  cfg.PollTimeout,
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.MaxAttempts,
		Metrics:      metrics,
	})

	var notifier notify.Notifier
	if cfg.CallbackURL != "" {
		notifier = notify.NewWebhook(notify.Config{
			URL:     cfg.CallbackURL,
			Secret:  cfg.CallbackKey,
			Backoff: backoff.Policy{},
			Metrics: metrics,
		})
		slog.Info("Completion notifications enabled", "url", cfg.CallbackURL)
	}

	runner := batch.New(client, orchestrator, batch.Config{
		WorkspaceID: cfg.WorkspaceID,
		Format:      format,
		PageNames:   cfg.PageNames,
		URLFilter:   cfg.URLFilter,
		OutputDir:   cfg.OutputDir,
		Workers:     cfg.Workers,
		Notifier:    notifier,
		Metrics:     metrics,
	})

	stats, err := runner.Run(ctx)

	checker.SetShuttingDown()
	if opsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := opsServer.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			slog.Error("Ops server shutdown error", "error", serr)
		}
		cancel()
	}
	if err != nil {
		return err
	}

	slog.Info("Done",
		"reports", stats.Reports,
		"exported", stats.Exported,
		"failed", stats.Failed,
		"skipped", stats.Skipped)
	if stats.Failed > 0 {
		return fmt.Errorf("%d of %d reports failed", stats.Failed, stats.Reports)
	}
	return nil
}

// startOpsServer serves metrics and health probes while the run is active.
func startOpsServer(port string, metricsHandler http.Handler, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		writeProbe(w, checker.Readiness(r.Context()))
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("Starting ops server", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops server failed", "error", err)
		}
	}()
	return srv
}

func writeProbe(w http.ResponseWriter, resp *health.Response) {
	w.Header().Set("Content-Type", "application/json")
	if !resp.IsHealthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	fmt.Fprintf(w, `{"status":%q}`, resp.Status)
}
