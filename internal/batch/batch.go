// Package batch exports every report in a workspace using a bounded pool
// of workers, with a circuit breaker guarding the reporting service.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"reportexporter/internal/apperrors"
	"reportexporter/internal/artifact"
	"reportexporter/internal/export"
	"reportexporter/internal/notify"
	"reportexporter/internal/observability"
	"reportexporter/internal/powerbi"
	"reportexporter/pkg/circuitbreaker"
)

// Exporter runs one report export to completion.
type Exporter interface {
	Export(ctx context.Context, req export.Request) (*artifact.Artifact, error)
}

// Lister enumerates the reports in a workspace.
type Lister interface {
	Reports(ctx context.Context, workspaceID string) ([]powerbi.Report, error)
}

// Config holds configuration for a batch run. Zero values use defaults.
type Config struct {
	WorkspaceID string
	Format      export.Format
	PageNames   []string
	URLFilter   string
	OutputDir   string
	Workers     int // concurrent exports (default: 4)

	Breaker  circuitbreaker.Config
	Notifier notify.Notifier // optional completion webhook
	Metrics  *observability.Metrics
}

// Stats summarizes a completed batch run.
type Stats struct {
	Reports  int64 // reports found in the workspace
	Exported int64 // exported and saved
	Failed   int64 // export or save failed
	Skipped  int64 // skipped because the circuit was open
}

// Runner exports all reports in a workspace.
type Runner struct {
	lister   Lister
	exporter Exporter
	cfg      Config
	breaker  *circuitbreaker.Breaker
	logger   *slog.Logger
}

// New creates a batch runner.
func New(lister Lister, exporter Exporter, cfg Config) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Runner{
		lister:   lister,
		exporter: exporter,
		cfg:      cfg,
		breaker:  circuitbreaker.New(cfg.Breaker),
		logger:   slog.With("component", "batch"),
	}
}

// Run lists the workspace and exports every report, saving artifacts into
// the output directory. Individual report failures are counted, not fatal;
// the returned error covers only the listing call.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	reports, err := r.lister.Reports(ctx, r.cfg.WorkspaceID)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	stats.Reports = int64(len(reports))
	r.logger.Info("Starting batch run",
		"workspaceId", r.cfg.WorkspaceID, "reports", len(reports), "workers", r.cfg.Workers)

	queue := make(chan powerbi.Report)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rep := range queue {
				r.export(ctx, rep, &stats)
			}
		}()
	}

	for _, rep := range reports {
		if ctx.Err() != nil {
			atomic.AddInt64(&stats.Skipped, 1)
			continue
		}
		queue <- rep
	}
	close(queue)
	wg.Wait()

	r.logger.Info("Batch run complete",
		"exported", atomic.LoadInt64(&stats.Exported),
		"failed", atomic.LoadInt64(&stats.Failed),
		"skipped", atomic.LoadInt64(&stats.Skipped))
	return Stats{
		Reports:  stats.Reports,
		Exported: atomic.LoadInt64(&stats.Exported),
		Failed:   atomic.LoadInt64(&stats.Failed),
		Skipped:  atomic.LoadInt64(&stats.Skipped),
	}, nil
}

func (r *Runner) export(ctx context.Context, rep powerbi.Report, stats *Stats) {
	logger := r.logger.With("reportId", rep.ID, "reportName", rep.Name)

	if !r.breaker.Allow() {
		logger.Warn("Skipping report, circuit to reporting service is open")
		atomic.AddInt64(&stats.Skipped, 1)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordBatchSkipped(ctx)
		}
		return
	}

	req := export.Request{
		ReportID:    rep.ID,
		WorkspaceID: r.cfg.WorkspaceID,
		Format:      r.cfg.Format,
		PageNames:   r.cfg.PageNames,
		URLFilter:   r.cfg.URLFilter,
	}

	art, err := r.exporter.Export(ctx, req)
	// Only connectivity faults trip the breaker; a report that fails on the
	// service side says nothing about the service being reachable.
	if errors.Is(err, apperrors.ErrTransport) {
		r.breaker.Record(err)
	} else {
		r.breaker.Record(nil)
	}
	if err != nil {
		logger.Error("Export failed", "error", err)
		atomic.AddInt64(&stats.Failed, 1)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordBatchFailed(ctx)
		}
		r.notify(ctx, rep, "", 0, err)
		return
	}

	path, err := artifact.Save(r.cfg.OutputDir, art)
	if err != nil {
		logger.Error("Saving artifact failed", "error", err)
		atomic.AddInt64(&stats.Failed, 1)
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.RecordBatchFailed(ctx)
		}
		r.notify(ctx, rep, "", 0, err)
		return
	}

	logger.Info("Report exported", "path", path, "bytes", len(art.Content))
	atomic.AddInt64(&stats.Exported, 1)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.RecordBatchExported(ctx)
	}
	r.notify(ctx, rep, art.Name, len(art.Content), nil)
}

// notify delivers a completion event when a notifier is configured.
// Delivery failures are logged, never propagated into the run.
func (r *Runner) notify(ctx context.Context, rep powerbi.Report, filename string, size int, exportErr error) {
	if r.cfg.Notifier == nil {
		return
	}

	event := &notify.Event{
		Type:       notify.TypeExportSucceeded,
		ReportID:   rep.ID,
		ReportName: rep.Name,
		Status:     "Succeeded",
		Filename:   filename,
		Bytes:      size,
	}
	if exportErr != nil {
		event.Type = notify.TypeExportFailed
		event.Status = "Failed"
		event.Error = exportErr.Error()
	}

	if err := r.cfg.Notifier.ExportComplete(ctx, event); err != nil {
		r.logger.Warn("Completion notification failed", "reportId", rep.ID, "error", err)
	}
}
