package batch

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

// Reporter prints the human summary of a run and mirrors it to the log.
// Per-file failure reasons are printed only when verbose is set. A nil
// Reporter is silent.
type Reporter struct {
	out     io.Writer
	verbose bool
	logger  *zap.Logger
}

// NewReporter returns a Reporter writing to out.
func NewReporter(out io.Writer, verbose bool, logger *zap.Logger) *Reporter {
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{out: out, verbose: verbose, logger: logger}
}

// Start announces how many files were enumerated.
func (r *Reporter) Start(files int) {
	if r == nil {
		return
	}
	_, _ = fmt.Fprintf(r.out, "Processing [%d] files.\n", files)
}

// Finish prints the counts and, in verbose mode, each failure in the order it occurred.
func (r *Reporter) Finish(outcome ingest.Outcome) {
	if r == nil {
		return
	}
	_, _ = fmt.Fprintf(r.out, "Processed %d CBOR files successfully.\n", len(outcome.Succeeded))
	_, _ = fmt.Fprintf(r.out, "Failed files: %d\n", len(outcome.Failed))
	if r.verbose {
		for _, failure := range outcome.Failed {
			_, _ = fmt.Fprintf(r.out, "File: %s failed because %s\n", failure.Path, failure.Reason)
		}
	}

	r.logger.Info("batch complete",
		zap.String("run_id", outcome.RunID),
		zap.Int("enumerated", outcome.Enumerated),
		zap.Int("succeeded", len(outcome.Succeeded)),
		zap.Int("failed", len(outcome.Failed)),
		zap.Duration("elapsed", outcome.FinishedAt.Sub(outcome.StartedAt)),
	)
	byStage := map[ingest.Stage]int{}
	for _, failure := range outcome.Failed {
		byStage[failure.Stage]++
	}
	for stage, count := range byStage {
		r.logger.Debug("failures by stage", zap.String("stage", string(stage)), zap.Int("count", count))
	}
}
