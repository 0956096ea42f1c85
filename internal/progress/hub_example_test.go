package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type failureCountingSink struct {
	failed int
}

func (s *failureCountingSink) Consume(_ context.Context, batch []Event) error {
	for _, evt := range batch {
		if evt.Stage == StageRecordFailed {
			s.failed++
		}
	}
	return nil
}

func (s *failureCountingSink) Close(context.Context) error {
	return nil
}

// ExampleHub_Emit demonstrates emitting record events and flushing via Close.
func ExampleHub_Emit() {
	sink := &failureCountingSink{}
	hub := NewHub(Config{MaxBatchEvents: 8, MaxBatchWait: time.Second}, sink)

	runID := UUIDToBytes(uuid.MustParse("00000000-0000-0000-0000-000000000001"))
	hub.Emit(Event{RunID: runID, TS: time.Unix(0, 0), Stage: StageRecordDone, Path: "a.cbor"})
	hub.Emit(Event{RunID: runID, TS: time.Unix(0, 0), Stage: StageRecordFailed, Path: "b.cbor", FailedStage: "decode"})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("failed records: %d\n", sink.failed)
	// Output:
	// failed records: 1
}
