// Package export implements the export lifecycle state machine: submission,
// bounded-time polling for a terminal status, retry on server-directed
// failures, and artifact retrieval.
package export

import (
	"context"
	"log/slog"
	"time"

	"reportexporter/internal/apperrors"
	"reportexporter/internal/artifact"
	"reportexporter/internal/observability"
)

// Defaults for orchestration knobs.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
	DefaultMaxAttempts  = 3
)

// Config holds configuration for an Orchestrator. Zero values use defaults.
type Config struct {
	PollTimeout  time.Duration // Wall-clock bound for one poll sub-loop
	PollInterval time.Duration // Suspension between status polls
	MaxAttempts  int           // Submissions before giving up
	Clock        Clock         // Injectable for tests; nil uses real time
	Metrics      *observability.Metrics
}

// Orchestrator drives one export to completion at a time: submit, poll until
// a terminal status or the window elapses, interpret the outcome, retry when
// the service directs it to, and fetch the artifact.
//
// An Orchestrator holds no per-export state, so one instance may serve many
// concurrent Export calls; each invocation owns its own job ID and snapshot.
type Orchestrator struct {
	api          API
	pollTimeout  time.Duration
	pollInterval time.Duration
	maxAttempts  int
	clock        Clock
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// New creates a new export orchestrator over the given client.
func New(api API, cfg Config) *Orchestrator {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	return &Orchestrator{
		api:          api,
		pollTimeout:  cfg.PollTimeout,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		clock:        cfg.Clock,
		metrics:      cfg.Metrics,
		logger:       slog.With("component", "orchestrator"),
	}
}

// outcome classifies the result of one attempt's poll sub-loop.
type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeFailedRetryable
	outcomeFailedTerminal
	outcomeTimedOut
)

// classify maps a poll sub-loop result to an outcome. A nil snapshot means
// the polling window elapsed with no terminal status observed.
func classify(st *Status) outcome {
	switch {
	case st == nil:
		return outcomeTimedOut
	case st.State == StateSucceeded:
		return outcomeSucceeded
	case st.RetryAfter > 0:
		return outcomeFailedRetryable
	default:
		return outcomeFailedTerminal
	}
}

// Export runs one report export to completion and returns the artifact.
//
// On failure the error is one of the apperrors sentinels: a client fault
// propagated from the final attempt (ErrTransport, ErrAuth, ErrAPI),
// ErrTimedOut when no terminal status arrived within the polling window,
// ErrExportFailed when the service reported failure with no retry directive,
// or ErrRetriesExhausted when every attempt was consumed cleanly.
func (o *Orchestrator) Export(ctx context.Context, req Request) (*artifact.Artifact, error) {
	logger := o.logger.With("reportId", req.ReportID, "format", string(req.Format))
	start := o.clock.Now()
	if o.metrics != nil {
		o.metrics.RecordExportStarted(ctx, string(req.Format))
	}

	art, err := o.run(ctx, req, logger)

	if o.metrics != nil {
		elapsed := o.clock.Now().Sub(start).Seconds()
		o.metrics.RecordExportCompleted(ctx, string(req.Format), err == nil, elapsed)
	}
	return art, err
}

func (o *Orchestrator) run(ctx context.Context, req Request, logger *slog.Logger) (*artifact.Artifact, error) {
	for attempt := 1; attempt <= o.maxAttempts; attempt++ {
		final := attempt == o.maxAttempts
		if o.metrics != nil {
			o.metrics.RecordAttempt(ctx, string(req.Format))
		}

		exportID, err := o.api.Submit(ctx, req)
		if err != nil {
			if final {
				return nil, err
			}
			// No delay before re-submission on a submission-level fault.
			logger.Warn("Submission failed, retrying", "attempt", attempt, "error", err)
			continue
		}
		alog := logger.With("exportId", exportID, "attempt", attempt)
		alog.Info("Export submitted")

		st, err := o.poll(ctx, req, exportID)
		if err != nil {
			if final {
				return nil, err
			}
			alog.Warn("Status polling failed, retrying", "error", err)
			continue
		}

		switch classify(st) {
		case outcomeTimedOut:
			// Terminal for the whole operation: remaining attempts are
			// not consumed.
			alog.Warn("No terminal status within polling window", "window", o.pollTimeout)
			return nil, apperrors.TimedOut(req.ReportID, o.pollTimeout)

		case outcomeFailedTerminal:
			alog.Warn("Export failed with no retry directive")
			return nil, apperrors.ExportFailed(req.ReportID)

		case outcomeFailedRetryable:
			alog.Info("Export failed, honoring server retry delay", "retryAfter", st.RetryAfter)
			if err := o.clock.Sleep(ctx, st.RetryAfter); err != nil {
				return nil, err
			}
			continue

		case outcomeSucceeded:
			data, err := o.api.Download(ctx, st.ResourceLocation)
			if err != nil {
				if final {
					return nil, err
				}
				alog.Warn("Artifact download failed, retrying", "error", err)
				continue
			}
			name := artifact.Filename(st.ReportName, st.FileExtension)
			alog.Info("Export succeeded", "filename", name, "bytes", len(data))
			return &artifact.Artifact{Name: name, Content: data}, nil
		}
	}

	return nil, apperrors.RetriesExhausted(req.ReportID, o.maxAttempts)
}

// poll fetches status snapshots until one is terminal or the polling window
// elapses. Elapsed time is re-checked before every fetch, and caller
// cancellation is honored at each iteration boundary; both yield a nil
// snapshot, which the attempt loop treats as timed out. A non-nil error is a
// client fault and aborts the attempt.
func (o *Orchestrator) poll(ctx context.Context, req Request, exportID string) (*Status, error) {
	deadline := o.clock.Now().Add(o.pollTimeout)
	for o.clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, nil
		}

		st, err := o.api.Status(ctx, req, exportID)
		if err != nil {
			return nil, err
		}
		if o.metrics != nil {
			o.metrics.RecordPoll(ctx)
		}
		if st.State.Terminal() {
			return st, nil
		}

		if err := o.clock.Sleep(ctx, o.pollInterval); err != nil {
			return nil, nil
		}
	}
	return nil, nil
}
