// Package worker runs the per-file ingestion pipeline: read, decode, build,
// submit. Each file ends in exactly one Result.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
	"github.com/JakeFAU/cca-esindex/internal/metrics"
	"github.com/JakeFAU/cca-esindex/internal/progress"
	"github.com/JakeFAU/cca-esindex/internal/record"
	"github.com/JakeFAU/cca-esindex/internal/telemetry"
)

const archiveContentType = "application/cbor"

// Queue yields file paths until it is closed and drained.
type Queue interface {
	Dequeue(ctx context.Context) (string, error)
}

// Builder maps a decoded record onto an index document.
type Builder interface {
	Build(ctx context.Context, rec ingest.CrawlRecord) (ingest.IndexDocument, error)
}

// Result is the terminal state of one file. Err is nil on success and
// otherwise carries its stage (see ingest.StageOf).
type Result struct {
	Path       string
	URL        string
	Ack        ingest.Ack
	Err        error
	ArchiveURI string
	Duration   time.Duration
}

// Config controls Worker behavior.
type Config struct {
	RunID string
	// ThrottleKey selects the token bucket, normally the index name.
	ThrottleKey string
	// ArchivePrefix is the object prefix for failed-record copies.
	ArchivePrefix string
}

// Worker drains the queue, processing one file at a time.
type Worker struct {
	queue     Queue
	builder   Builder
	submitter ingest.Submitter
	throttle  ingest.Throttle
	archive   ingest.BlobStore
	hasher    ingest.Hasher
	clock     ingest.Clock
	emitter   progress.Emitter
	results   chan<- Result
	cfg       Config
	runID     [16]byte
	logger    *zap.Logger
}

// New constructs a Worker. throttle, archive, and emitter are optional.
func New(
	queue Queue,
	builder Builder,
	submitter ingest.Submitter,
	throttle ingest.Throttle,
	archive ingest.BlobStore,
	hasher ingest.Hasher,
	clock ingest.Clock,
	emitter progress.Emitter,
	results chan<- Result,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "failed"
	}
	return &Worker{
		queue:     queue,
		builder:   builder,
		submitter: submitter,
		throttle:  throttle,
		archive:   archive,
		hasher:    hasher,
		clock:     clock,
		emitter:   emitter,
		results:   results,
		cfg:       cfg,
		runID:     progress.ParseRunID(cfg.RunID),
		logger:    logger,
	}
}

// Run consumes paths until the queue is closed and drained. Cancellation of
// ctx does not stop the loop: remaining paths are still dequeued and reported
// as canceled so every path yields a Result.
func (w *Worker) Run(ctx context.Context) {
	drainCtx := context.WithoutCancel(ctx)
	for {
		filePath, err := w.queue.Dequeue(drainCtx)
		if err != nil {
			w.logger.Debug("worker stopping", zap.Error(err))
			return
		}
		w.results <- w.Process(ctx, filePath)
	}
}

// Process runs the pipeline for one file.
func (w *Worker) Process(ctx context.Context, filePath string) Result {
	if err := ctx.Err(); err != nil {
		res := Result{Path: filePath, Err: &ingest.CanceledError{Err: err}}
		w.report(res, 0)
		return res
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	ctx, span := otel.Tracer(telemetry.TracerName).Start(ctx, "ingest.record")
	span.SetAttributes(attribute.String("ingest.path", filePath))
	defer span.End()

	start := time.Now()
	data, res := w.run(ctx, filePath)
	res.Duration = time.Since(start)

	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, string(ingest.StageOf(res.Err)))
		res.ArchiveURI = w.archiveFailure(ctx, res, data)
	}
	span.SetAttributes(attribute.String("ingest.url", res.URL))
	w.report(res, int64(len(data)))
	return res
}

func (w *Worker) run(ctx context.Context, filePath string) ([]byte, Result) {
	res := Result{Path: filePath}

	data, err := os.ReadFile(filePath)
	if err != nil {
		res.Err = &ingest.DecodeError{Err: fmt.Errorf("read %s: %w", filePath, err)}
		return nil, res
	}

	rec, err := record.Decode(data)
	if err != nil {
		res.Err = ingest.WrapStage(ingest.StageDecoding, err)
		return data, res
	}
	res.URL = rec.URL

	doc, err := w.builder.Build(ctx, rec)
	if err != nil {
		res.Err = ingest.WrapStage(ingest.StageBuilding, err)
		return data, res
	}
	w.logger.Debug("document built",
		zap.String("path", filePath),
		zap.String("url", doc.URL),
		zap.Int64("timestamp", doc.Timestamp),
		zap.String("content_type", doc.ContentType),
		zap.Int("raw_bytes", len(doc.RawContent)),
		zap.Int("content_chars", len(doc.CrawlData.Content)),
	)

	if w.throttle != nil {
		if err := w.throttle.Wait(ctx, w.cfg.ThrottleKey); err != nil {
			res.Err = ingest.WrapStage(ingest.StageSubmitting, err)
			return data, res
		}
	}
	ack, err := w.submitter.Submit(ctx, doc)
	if err != nil {
		res.Err = ingest.WrapStage(ingest.StageSubmitting, err)
		return data, res
	}
	res.Ack = ack
	return data, res
}

// archiveFailure copies the raw input of a failed file to the blob store. The
// copy is best effort; a failure here never changes the file's Result.
func (w *Worker) archiveFailure(ctx context.Context, res Result, data []byte) string {
	if w.archive == nil || w.hasher == nil || data == nil {
		return ""
	}
	var canceled *ingest.CanceledError
	if errors.As(res.Err, &canceled) {
		return ""
	}
	digest, err := w.hasher.Hash(data)
	if err != nil {
		w.logger.Warn("hash failed record", zap.String("path", res.Path), zap.Error(err))
		return ""
	}
	objectPath := path.Join(strings.Trim(w.cfg.ArchivePrefix, "/"), w.cfg.RunID, string(ingest.StageOf(res.Err)), digest+".cbor")
	uri, err := w.archive.PutObject(context.WithoutCancel(ctx), objectPath, archiveContentType, bytes.NewReader(data))
	if err != nil {
		w.logger.Warn("archive failed record", zap.String("path", res.Path), zap.String("object", objectPath), zap.Error(err))
		return ""
	}
	return uri
}

func (w *Worker) report(res Result, size int64) {
	evt := progress.Event{
		RunID: w.runID,
		TS:    w.now(),
		Path:  res.Path,
		URL:   res.URL,
		Bytes: size,
		Dur:   res.Duration,
	}
	if res.Err == nil {
		evt.Stage = progress.StageRecordDone
		w.logger.Debug("record indexed",
			zap.String("path", res.Path),
			zap.String("url", res.URL),
			zap.String("doc_id", res.Ack.ID),
			zap.String("result", res.Ack.Result),
		)
	} else {
		evt.Stage = progress.StageRecordFailed
		evt.FailedStage = string(ingest.StageOf(res.Err))
		evt.Note = res.Err.Error()
		w.logger.Debug("record failed",
			zap.String("path", res.Path),
			zap.String("stage", evt.FailedStage),
			zap.Error(res.Err),
		)
	}
	w.emitter.Emit(evt)
}

func (w *Worker) now() time.Time {
	if w.clock == nil {
		return time.Now().UTC()
	}
	return w.clock.Now()
}
