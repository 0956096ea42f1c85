package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/cca-esindex/internal/api"
	"github.com/JakeFAU/cca-esindex/internal/batch"
	"github.com/JakeFAU/cca-esindex/internal/clock/system"
	"github.com/JakeFAU/cca-esindex/internal/config"
	"github.com/JakeFAU/cca-esindex/internal/document"
	"github.com/JakeFAU/cca-esindex/internal/extract/local"
	"github.com/JakeFAU/cca-esindex/internal/extract/tika"
	"github.com/JakeFAU/cca-esindex/internal/hash/sha256"
	"github.com/JakeFAU/cca-esindex/internal/id/uuid"
	"github.com/JakeFAU/cca-esindex/internal/index/elastic"
	indexmemory "github.com/JakeFAU/cca-esindex/internal/index/memory"
	"github.com/JakeFAU/cca-esindex/internal/ingest"
	"github.com/JakeFAU/cca-esindex/internal/logging"
	"github.com/JakeFAU/cca-esindex/internal/policy/ratelimit"
	"github.com/JakeFAU/cca-esindex/internal/progress"
	"github.com/JakeFAU/cca-esindex/internal/progress/sinks"
	"github.com/JakeFAU/cca-esindex/internal/publisher/pubsub"
	"github.com/JakeFAU/cca-esindex/internal/storage/gcs"
	localstorage "github.com/JakeFAU/cca-esindex/internal/storage/local"
	memorystorage "github.com/JakeFAU/cca-esindex/internal/storage/memory"
	"github.com/JakeFAU/cca-esindex/internal/storage/postgres"
	"github.com/JakeFAU/cca-esindex/internal/telemetry"
)

const (
	serviceName     = "ccaindex"
	shutdownTimeout = 10 * time.Second
)

// closers runs cleanup in reverse registration order.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

// run assembles the components for cfg and executes one batch.
func run(parent context.Context, cfg config.Config, stdout io.Writer) error {
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Verbose:     cfg.Run.Verbose,
	})
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup closers
	defer cleanup.run()

	tp, err := telemetry.InitTracerProvider(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("tracer init: %w", err)
	}
	cleanup.add(func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	})

	extractor, err := newExtractor(cfg.Extractor)
	if err != nil {
		return err
	}
	builder, err := document.NewBuilder(cfg.Run.Team, cfg.Run.CrawlerID, extractor)
	if err != nil {
		return fmt.Errorf("document builder: %w", err)
	}
	submitter, err := newSubmitter(cfg)
	if err != nil {
		return err
	}

	deps := batch.Dependencies{
		Builder:   builder,
		Submitter: submitter,
		Hasher:    sha256.New(),
		Clock:     system.New(),
		IDs:       uuid.New(),
		Reporter:  batch.NewReporter(stdout, cfg.Run.Verbose, logger.Named("report")),
	}
	if cfg.Index.RateLimitPerSecond > 0 {
		deps.Throttle = ratelimit.New(ratelimit.Config{
			PerSecond: cfg.Index.RateLimitPerSecond,
			Burst:     cfg.Index.Burst,
		})
	}
	if err := wireSideChannels(ctx, cfg, &deps, &cleanup, logger); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return err
	}
	status := sinks.NewStatusSink()
	hub := progress.NewHub(
		progress.Config{Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress"), zapcore.DebugLevel),
		promSink,
		status,
	)
	deps.Emitter = hub

	if cfg.Metrics.Addr != "" {
		listenCtx, stopListener := context.WithCancel(ctx)
		done := make(chan struct{})
		server := api.NewServer(status, logger.Named("api"), reg)
		go func() {
			defer close(done)
			logger.Info("metrics listener started", zap.String("addr", cfg.Metrics.Addr))
			if err := server.Serve(listenCtx, cfg.Metrics.Addr); err != nil {
				logger.Warn("metrics listener stopped", zap.Error(err))
			}
		}()
		cleanup.add(func() {
			stopListener()
			<-done
		})
	}
	// Registered after the listener so the final events reach the status sink
	// before the listener goes away.
	cleanup.add(func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	})

	runner, err := batch.NewRunner(batch.Config{
		Root:          cfg.Run.DataDir,
		Team:          cfg.Run.Team,
		Crawler:       cfg.Run.CrawlerID,
		Index:         cfg.Index.Name,
		DocType:       cfg.Index.DocType,
		Workers:       cfg.Run.Workers,
		ArchivePrefix: cfg.Archive.Prefix,
		Topic:         cfg.PubSub.TopicName,
	}, deps, logger.Named("batch"))
	if err != nil {
		return fmt.Errorf("batch runner: %w", err)
	}

	if _, err := runner.Run(ctx); err != nil {
		return err
	}
	return nil
}

func newExtractor(cfg config.ExtractorConfig) (ingest.Extractor, error) {
	switch cfg.Kind {
	case config.ExtractorLocal:
		return local.New(), nil
	case config.ExtractorTika:
		client, err := tika.New(tika.Config{URL: cfg.TikaURL, Timeout: cfg.Timeout()})
		if err != nil {
			return nil, fmt.Errorf("tika extractor: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", cfg.Kind)
	}
}

func newSubmitter(cfg config.Config) (ingest.Submitter, error) {
	if cfg.Run.DryRun {
		return indexmemory.New(), nil
	}
	submitter, err := elastic.New(elastic.Config{
		URL:     cfg.Index.URL,
		Index:   cfg.Index.Name,
		DocType: cfg.Index.DocType,
		Timeout: cfg.Index.Timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("index submitter: %w", err)
	}
	return submitter, nil
}

// wireSideChannels attaches the archive, ledger, and publisher selected by cfg.
// A dry run keeps everything in process.
func wireSideChannels(
	ctx context.Context,
	cfg config.Config,
	deps *batch.Dependencies,
	cleanup *closers,
	logger *zap.Logger,
) error {
	archiveKind := cfg.Archive.Kind
	if cfg.Run.DryRun && archiveKind != config.ArchiveNone {
		archiveKind = config.ArchiveMemory
	}
	switch archiveKind {
	case config.ArchiveNone:
	case config.ArchiveMemory:
		deps.Archive = memorystorage.NewBlobStore()
	case config.ArchiveLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local archive: %w", err)
		}
		deps.Archive = store
	case config.ArchiveGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs archive: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Archive.GCSBucket})
		if err != nil {
			return errors.Join(fmt.Errorf("gcs archive: %w", err), client.Close())
		}
		cleanup.add(func() {
			if err := store.Close(); err != nil {
				logger.Warn("gcs archive close failed", zap.Error(err))
			}
		})
		deps.Archive = store
	default:
		return fmt.Errorf("unknown archive %q", cfg.Archive.Kind)
	}

	if cfg.Run.DryRun {
		return nil
	}

	if cfg.Ledger.DSN != "" {
		ledger, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:           cfg.Ledger.DSN,
			RunsTable:     cfg.Ledger.RunsTable,
			FailuresTable: cfg.Ledger.FailuresTable,
		})
		if err != nil {
			return fmt.Errorf("run ledger: %w", err)
		}
		cleanup.add(ledger.Close)
		if err := ledger.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("run ledger schema: %w", err)
		}
		deps.Ledger = ledger
	}

	if cfg.PubSub.Enabled() {
		publisher, err := pubsub.New(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("summary publisher: %w", err)
		}
		cleanup.add(func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("pubsub close failed", zap.Error(err))
			}
		})
		deps.Publisher = publisher
	}
	return nil
}
