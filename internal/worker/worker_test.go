package worker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/cca-esindex/internal/document"
	"github.com/JakeFAU/cca-esindex/internal/hash/sha256"
	"github.com/JakeFAU/cca-esindex/internal/index/memory"
	"github.com/JakeFAU/cca-esindex/internal/ingest"
	"github.com/JakeFAU/cca-esindex/internal/progress"
	queuemem "github.com/JakeFAU/cca-esindex/internal/queue/memory"
	storemem "github.com/JakeFAU/cca-esindex/internal/storage/memory"
)

const testRunID = "0190b6c2-8a6e-7c3a-9b1d-2f3e4a5b6c7d"

type upperExtractor struct{}

func (upperExtractor) Extract(_ context.Context, content []byte, _ string) (string, error) {
	return strings.ToUpper(string(content)), nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, evt)
}

func (e *recordingEmitter) Events() []progress.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Event(nil), e.events...)
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type failingThrottle struct{ err error }

func (f failingThrottle) Wait(context.Context, string) error { return f.err }

func writeRecord(t *testing.T, dir, name, url, body string) string {
	t.Helper()
	inner, err := json.Marshal(map[string]any{
		"url":      url,
		"imported": 1700000000000,
		"response": map[string]any{
			"headers": [][]string{{"Content-Type", "text/plain"}},
			"body":    body,
		},
	})
	require.NoError(t, err)
	data, err := cbor.Marshal(string(inner))
	require.NoError(t, err)
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

type harness struct {
	worker    *Worker
	submitter *memory.Submitter
	archive   *storemem.BlobStore
	emitter   *recordingEmitter
}

func newHarness(t *testing.T, throttle ingest.Throttle) *harness {
	t.Helper()
	builder, err := document.NewBuilder("blue", "c1", upperExtractor{})
	require.NoError(t, err)
	h := &harness{
		submitter: memory.New(),
		archive:   storemem.NewBlobStore(),
		emitter:   &recordingEmitter{},
	}
	h.worker = New(
		nil,
		builder,
		h.submitter,
		throttle,
		h.archive,
		sha256.New(),
		fixedClock{now: time.Unix(100, 0).UTC()},
		h.emitter,
		nil,
		Config{RunID: testRunID, ThrottleKey: "pages", ArchivePrefix: "dlq"},
		zap.NewNop(),
	)
	return h
}

func TestProcessSuccess(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	p := writeRecord(t, t.TempDir(), "a.cbor", "http://a.example", "hello")

	res := h.worker.Process(context.Background(), p)
	require.NoError(t, res.Err)
	require.Equal(t, "http://a.example", res.URL)
	require.Equal(t, "memory-1", res.Ack.ID)

	docs := h.submitter.Documents()
	require.Len(t, docs, 1)
	require.Equal(t, "HELLO", docs[0].CrawlData.Content)
	require.Equal(t, "text/plain", docs[0].ContentType)
	require.Equal(t, int64(1700000000000), docs[0].Timestamp)

	events := h.emitter.Events()
	require.Len(t, events, 1)
	require.Equal(t, progress.StageRecordDone, events[0].Stage)
	require.Equal(t, progress.ParseRunID(testRunID), events[0].RunID)
	require.NoError(t, events[0].Validate())
	require.Empty(t, h.archive.Paths())
}

func TestProcessDecodeFailureIsArchived(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	p := filepath.Join(t.TempDir(), "junk.cbor")
	require.NoError(t, os.WriteFile(p, []byte("not cbor at all"), 0o600))

	res := h.worker.Process(context.Background(), p)
	require.Equal(t, ingest.StageDecoding, ingest.StageOf(res.Err))
	require.Empty(t, h.submitter.Documents())

	digest, err := sha256.New().Hash([]byte("not cbor at all"))
	require.NoError(t, err)
	want := "dlq/" + testRunID + "/decode/" + digest + ".cbor"
	require.Equal(t, []string{want}, h.archive.Paths())
	require.Equal(t, "memory://"+want, res.ArchiveURI)

	events := h.emitter.Events()
	require.Len(t, events, 1)
	require.Equal(t, progress.StageRecordFailed, events[0].Stage)
	require.Equal(t, "decode", events[0].FailedStage)
}

func TestProcessMissingFileIsDecodeFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	res := h.worker.Process(context.Background(), filepath.Join(t.TempDir(), "gone.cbor"))
	require.Equal(t, ingest.StageDecoding, ingest.StageOf(res.Err))
	require.ErrorIs(t, res.Err, os.ErrNotExist)
	require.Empty(t, h.archive.Paths())
}

func TestProcessBuildFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	p := writeRecord(t, t.TempDir(), "blank.cbor", "http://blank.example", "   ")

	res := h.worker.Process(context.Background(), p)
	require.Equal(t, ingest.StageBuilding, ingest.StageOf(res.Err))
	require.ErrorIs(t, res.Err, document.ErrNoContent)
	require.Equal(t, "http://blank.example", res.URL)
}

func TestProcessSubmitFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.submitter.Reject = func(ingest.IndexDocument) error { return errors.New("index down") }
	p := writeRecord(t, t.TempDir(), "a.cbor", "http://a.example", "hello")

	res := h.worker.Process(context.Background(), p)
	require.Equal(t, ingest.StageSubmitting, ingest.StageOf(res.Err))
	require.ErrorContains(t, res.Err, "index down")
	require.Len(t, h.archive.Paths(), 1)
}

func TestProcessThrottleFailureIsSubmitFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, failingThrottle{err: context.DeadlineExceeded})
	p := writeRecord(t, t.TempDir(), "a.cbor", "http://a.example", "hello")

	res := h.worker.Process(context.Background(), p)
	require.Equal(t, ingest.StageSubmitting, ingest.StageOf(res.Err))
	require.Empty(t, h.submitter.Documents())
}

func TestProcessCanceledContext(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	p := writeRecord(t, t.TempDir(), "a.cbor", "http://a.example", "hello")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.worker.Process(ctx, p)
	require.Equal(t, ingest.StageCanceled, ingest.StageOf(res.Err))
	require.Empty(t, h.submitter.Documents())
	require.Empty(t, h.archive.Paths())
}

func TestRunDrainsQueueAfterCancel(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	q := queuemem.NewQueue[string](3)
	for _, name := range []string{"a.cbor", "b.cbor", "c.cbor"} {
		require.NoError(t, q.Enqueue(context.Background(), writeRecord(t, dir, name, "http://"+name, "x")))
	}
	q.Close()

	h := newHarness(t, nil)
	results := make(chan Result, 3)
	h.worker.queue = q
	h.worker.results = results

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.worker.Run(ctx)
	close(results)

	count := 0
	for res := range results {
		count++
		require.Equal(t, ingest.StageCanceled, ingest.StageOf(res.Err))
	}
	require.Equal(t, 3, count)
}
