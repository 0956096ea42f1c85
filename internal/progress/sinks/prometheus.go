package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/cca-esindex/internal/progress"
)

// PrometheusSink exports run and record progress via Prometheus.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsCompleted  prometheus.Counter
	runsActive     prometheus.Gauge
	runDuration    prometheus.Histogram
	records        *prometheus.CounterVec
	recordBytes    prometheus.Counter
	recordDuration *prometheus.HistogramVec
}

// NewPrometheusSink registers the collectors against reg.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccaindex_runs_started_total",
			Help: "Total batch runs started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccaindex_runs_completed_total",
			Help: "Total batch runs completed.",
		}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ccaindex_runs_active",
			Help: "Batch runs currently in progress.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ccaindex_run_duration_seconds",
			Help:    "Wall time per completed batch run.",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ccaindex_records_total",
			Help: "Processed records partitioned by result and failed stage.",
		}, []string{"result", "stage"}),
		recordBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ccaindex_record_bytes_total",
			Help: "Bytes read from input files.",
		}),
		recordDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ccaindex_record_duration_seconds",
			Help:    "Per-record pipeline latency partitioned by result.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 30},
		}, []string{"result"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.records,
		s.recordBytes,
		s.recordDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			s.runsActive.Inc()
		case progress.StageRunDone:
			s.runsCompleted.Inc()
			s.runsActive.Dec()
			s.runDuration.Observe(evt.Dur.Seconds())
		case progress.StageRecordDone:
			s.observeRecord(evt, "success", "")
		case progress.StageRecordFailed:
			s.observeRecord(evt, "failure", evt.FailedStage)
		}
	}
	return nil
}

func (s *PrometheusSink) observeRecord(evt progress.Event, result, stage string) {
	s.records.WithLabelValues(result, stage).Inc()
	if evt.Bytes > 0 {
		s.recordBytes.Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		s.recordDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// Close implements progress.Sink.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
