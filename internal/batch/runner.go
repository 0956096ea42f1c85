// Package batch orchestrates one ingestion run over a dump directory.
package batch

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/cca-esindex/internal/dispatcher"
	"github.com/JakeFAU/cca-esindex/internal/ingest"
	"github.com/JakeFAU/cca-esindex/internal/progress"
	"github.com/JakeFAU/cca-esindex/internal/queue/memory"
	"github.com/JakeFAU/cca-esindex/internal/telemetry"
	"github.com/JakeFAU/cca-esindex/internal/walker"
	"github.com/JakeFAU/cca-esindex/internal/worker"
)

const defaultWorkers = 4

// Config carries the run-level constants.
type Config struct {
	Root    string
	Team    string
	Crawler string
	Index   string
	DocType string
	// Workers bounds concurrency; 1 reproduces enumeration-order reporting.
	Workers       int
	ArchivePrefix string
	// Topic receives the run summary when a Publisher is configured.
	Topic string
}

// Dependencies are the collaborators of a run. Builder, Submitter, Clock,
// and IDs are required; the rest are optional.
type Dependencies struct {
	Builder   worker.Builder
	Submitter ingest.Submitter
	Throttle  ingest.Throttle
	Archive   ingest.BlobStore
	Hasher    ingest.Hasher
	Clock     ingest.Clock
	IDs       ingest.IDGenerator
	Emitter   progress.Emitter
	Ledger    ingest.RunStore
	Publisher ingest.Publisher
	Reporter  *Reporter
}

// Runner walks, dispatches, and collects one batch.
type Runner struct {
	cfg    Config
	deps   Dependencies
	logger *zap.Logger
}

// NewRunner validates the configuration and dependencies.
func NewRunner(cfg Config, deps Dependencies, logger *zap.Logger) (*Runner, error) {
	var errs []error
	if cfg.Root == "" {
		errs = append(errs, errors.New("root directory is required"))
	}
	if deps.Builder == nil {
		errs = append(errs, errors.New("builder is required"))
	}
	if deps.Submitter == nil {
		errs = append(errs, errors.New("submitter is required"))
	}
	if deps.Clock == nil {
		errs = append(errs, errors.New("clock is required"))
	}
	if deps.IDs == nil {
		errs = append(errs, errors.New("id generator is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logger}, nil
}

// Run processes every file under the root. The only error it returns is
// fatal (the root could not be enumerated, or no run ID could be allocated);
// per-file failures are recorded in the Outcome.
func (r *Runner) Run(ctx context.Context) (ingest.Outcome, error) {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return ingest.Outcome{}, fmt.Errorf("allocate run id: %w", err)
	}
	logger := r.logger.With(zap.String("run_id", runID))

	// The run span parents every record span and travels with the summary.
	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "ingest.run")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.run_id", runID),
		attribute.String("ingest.root", r.cfg.Root),
		attribute.String("ingest.index", r.cfg.Index),
	)

	files, err := walker.Walk(r.cfg.Root, logger)
	if err != nil {
		logger.Error("enumerate dump directory", zap.String("root", r.cfg.Root), zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "directory unreadable")
		return ingest.Outcome{}, err
	}
	span.SetAttributes(attribute.Int("ingest.files", len(files)))

	outcome := ingest.Outcome{
		RunID:      runID,
		Root:       r.cfg.Root,
		Enumerated: len(files),
		Succeeded:  []string{},
		Failed:     []ingest.Failure{},
		StartedAt:  r.deps.Clock.Now(),
	}
	r.deps.Reporter.Start(len(files))
	logger.Info("batch started", zap.String("root", r.cfg.Root), zap.Int("files", len(files)), zap.Int("workers", r.cfg.Workers))
	r.emit(progress.Event{RunID: progress.ParseRunID(runID), TS: outcome.StartedAt, Stage: progress.StageRunStart, Note: r.cfg.Root})

	for res := range r.dispatch(ctx, runID, files, logger) {
		if res.Err == nil {
			outcome.Succeeded = append(outcome.Succeeded, res.Path)
			continue
		}
		outcome.Failed = append(outcome.Failed, ingest.Failure{
			Path:   res.Path,
			Stage:  ingest.StageOf(res.Err),
			Reason: res.Err.Error(),
			Err:    res.Err,
		})
	}
	outcome.FinishedAt = r.deps.Clock.Now()

	r.emit(progress.Event{
		RunID: progress.ParseRunID(runID),
		TS:    outcome.FinishedAt,
		Stage: progress.StageRunDone,
		Dur:   max(outcome.FinishedAt.Sub(outcome.StartedAt), 0),
	})
	span.SetAttributes(
		attribute.Int("ingest.succeeded", len(outcome.Succeeded)),
		attribute.Int("ingest.failed", len(outcome.Failed)),
	)
	r.deps.Reporter.Finish(outcome)
	r.recordSideChannels(ctx, outcome, logger)
	return outcome, nil
}

// dispatch runs the worker pool and returns the result stream, closed once
// every file has produced a result.
func (r *Runner) dispatch(ctx context.Context, runID string, files []string, logger *zap.Logger) <-chan worker.Result {
	results := make(chan worker.Result, r.cfg.Workers)
	queue := memory.NewQueue[string](len(files))

	runners := make([]dispatcher.Runner, 0, r.cfg.Workers)
	for i := 0; i < r.cfg.Workers; i++ {
		runners = append(runners, worker.New(
			queue,
			r.deps.Builder,
			r.deps.Submitter,
			r.deps.Throttle,
			r.deps.Archive,
			r.deps.Hasher,
			r.deps.Clock,
			r.deps.Emitter,
			results,
			worker.Config{RunID: runID, ThrottleKey: r.cfg.Index, ArchivePrefix: r.cfg.ArchivePrefix},
			logger.With(zap.Int("worker", i)),
		))
	}
	d := dispatcher.New[string](queue, runners)
	// The queue holds every path, so Submit never blocks.
	if err := d.Submit(context.WithoutCancel(ctx), files); err != nil {
		logger.Error("enqueue files", zap.Error(err))
	}

	go func() {
		d.Run(ctx)
		close(results)
	}()
	return results
}

func (r *Runner) recordSideChannels(ctx context.Context, outcome ingest.Outcome, logger *zap.Logger) {
	summary := r.Summary(outcome)
	sideCtx := context.WithoutCancel(ctx)
	if r.deps.Ledger != nil {
		if err := r.deps.Ledger.RecordRun(sideCtx, summary); err != nil {
			logger.Warn("record run in ledger", zap.Error(err))
		}
	}
	if r.deps.Publisher != nil && r.cfg.Topic != "" {
		id, err := r.deps.Publisher.Publish(sideCtx, r.cfg.Topic, summary)
		if err != nil {
			logger.Warn("publish run summary", zap.String("topic", r.cfg.Topic), zap.Error(err))
		} else {
			logger.Debug("run summary published", zap.String("topic", r.cfg.Topic), zap.String("message_id", id))
		}
	}
}

// Summary condenses outcome into the ledger and notification form.
func (r *Runner) Summary(outcome ingest.Outcome) ingest.RunSummary {
	return ingest.RunSummary{
		RunID:      outcome.RunID,
		Team:       r.cfg.Team,
		Crawler:    r.cfg.Crawler,
		Root:       outcome.Root,
		Index:      r.cfg.Index,
		DocType:    r.cfg.DocType,
		Enumerated: outcome.Enumerated,
		Succeeded:  len(outcome.Succeeded),
		Failed:     len(outcome.Failed),
		StartedAt:  outcome.StartedAt,
		FinishedAt: outcome.FinishedAt,
		Failures:   outcome.Failed,
	}
}

func (r *Runner) emit(evt progress.Event) {
	r.deps.Emitter.Emit(evt)
}
