package sinks

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/cca-esindex/internal/progress"
)

// RunState enumerates the lifecycle of the observed run.
type RunState string

// Run states reported by StatusSink.
const (
	RunIdle    RunState = "idle"
	RunRunning RunState = "running"
	RunDone    RunState = "done"
)

// RunStatus is a point-in-time view of the current run.
type RunStatus struct {
	RunID      string         `json:"run_id,omitempty"`
	State      RunState       `json:"state"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Succeeded  int64          `json:"succeeded"`
	Failed     int64          `json:"failed"`
	Bytes      int64          `json:"bytes"`
	ByStage    map[string]int `json:"failed_by_stage"`
	LastPath   string         `json:"last_path,omitempty"`
}

// StatusSink folds events into a RunStatus for the status endpoint.
type StatusSink struct {
	mu     sync.RWMutex
	status RunStatus
}

// NewStatusSink returns an idle StatusSink.
func NewStatusSink() *StatusSink {
	return &StatusSink{status: RunStatus{State: RunIdle, ByStage: map[string]int{}}}
}

// Consume applies each event in order.
func (s *StatusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			ts := evt.TS
			s.status = RunStatus{
				RunID:     evt.RunUUID().String(),
				State:     RunRunning,
				StartedAt: &ts,
				ByStage:   map[string]int{},
			}
		case progress.StageRecordDone:
			s.status.Succeeded++
			s.status.Bytes += evt.Bytes
			s.status.LastPath = evt.Path
		case progress.StageRecordFailed:
			s.status.Failed++
			s.status.Bytes += evt.Bytes
			s.status.ByStage[evt.FailedStage]++
			s.status.LastPath = evt.Path
		case progress.StageRunDone:
			ts := evt.TS
			s.status.State = RunDone
			s.status.FinishedAt = &ts
		}
	}
	return nil
}

// Status returns a copy of the current status.
func (s *StatusSink) Status() RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.status
	out.ByStage = make(map[string]int, len(s.status.ByStage))
	for k, v := range s.status.ByStage {
		out.ByStage[k] = v
	}
	return out
}

// Close implements progress.Sink.
func (s *StatusSink) Close(context.Context) error {
	return nil
}
