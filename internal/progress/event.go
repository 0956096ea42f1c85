// Package progress defines the events emitted while a batch run ingests files.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageRecordDone   Stage = "RECORD_DONE"
	StageRecordFailed Stage = "RECORD_FAILED"
	StageRunDone      Stage = "RUN_DONE"
)

// Event captures one milestone of a batch run.
type Event struct {
	// RunID identifies the batch run in 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Path is the input file for record events.
	Path string
	// URL is the crawled URL when the record decoded far enough to have one.
	URL string
	// Bytes is the size of the input file.
	Bytes int64
	// FailedStage names the pipeline stage of a RECORD_FAILED event.
	FailedStage string
	// Dur is the record latency, or the run wall time for RUN_DONE.
	Dur time.Duration
	// Note carries short context such as the failure reason.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageRecordDone:
		if e.Path == "" {
			return errors.New("record done requires path")
		}
	case StageRecordFailed:
		if e.Path == "" {
			return errors.New("record failed requires path")
		}
		if e.FailedStage == "" {
			return errors.New("record failed requires failed stage")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// ParseRunID converts a textual run ID into the Event form. Unparseable IDs
// map to the zero value, which Validate rejects.
func ParseRunID(id string) [16]byte {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return [16]byte{}
	}
	return UUIDToBytes(parsed)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
