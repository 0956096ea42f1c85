package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOf(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want Stage
	}{
		{"decode", &DecodeError{Err: cause}, StageDecoding},
		{"build", &BuildError{Err: cause}, StageBuilding},
		{"submit", &SubmitError{Err: cause}, StageSubmitting},
		{"canceled", &CanceledError{Err: cause}, StageCanceled},
		{"wrapped submit", fmt.Errorf("worker: %w", &SubmitError{Err: cause}), StageSubmitting},
		{"untagged", cause, StagePending},
		{"nil", nil, StagePending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StageOf(tt.err))
		})
	}
}

func TestWrapStageKeepsExistingStage(t *testing.T) {
	t.Parallel()

	cause := errors.New("bad cbor")
	decodeErr := &DecodeError{Err: cause}

	require.Same(t, decodeErr, WrapStage(StageSubmitting, decodeErr))
	require.NoError(t, WrapStage(StageBuilding, nil))

	wrapped := WrapStage(StageSubmitting, cause)
	var submitErr *SubmitError
	require.ErrorAs(t, wrapped, &submitErr)
	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, "submit: bad cbor", wrapped.Error())
}

func TestDirectoryUnreadableErrorUnwraps(t *testing.T) {
	t.Parallel()

	err := &DirectoryUnreadableError{Root: "/missing", Err: os.ErrNotExist}
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Contains(t, err.Error(), "/missing")
}

func TestIndexDocumentMarshalJSON(t *testing.T) {
	t.Parallel()

	doc := IndexDocument{
		URL:         "https://example.com/",
		Timestamp:   1428633845000,
		Team:        "JPL",
		Crawler:     "Nutch 1.11-SNAPSHOT",
		RawContent:  []byte("<html>hi</html>"),
		ContentType: "text/html",
		CrawlData:   CrawlData{Content: "hi"},
	}

	data, err := json.Marshal(doc)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "https://example.com/", got["url"])
	assert.InDelta(t, 1428633845000, got["timestamp"], 0)
	assert.Equal(t, "JPL", got["team"])
	assert.Equal(t, "Nutch 1.11-SNAPSHOT", got["crawler"])
	assert.Equal(t, "<html>hi</html>", got["raw_content"])
	assert.Equal(t, "text/html", got["content_type"])

	crawlData, ok := got["crawl_data"].(map[string]any)
	require.True(t, ok, "crawl_data should be an object: %v", got["crawl_data"])
	assert.Equal(t, "hi", crawlData["content"])
	assert.Equal(t, []any{}, crawlData["images"])
	assert.Equal(t, []any{}, crawlData["videos"])
}

func TestOutcomeProcessed(t *testing.T) {
	t.Parallel()

	out := Outcome{
		Enumerated: 3,
		Succeeded:  []string{"a", "b"},
		Failed:     []Failure{{Path: "c", Stage: StageDecoding, Reason: "decode: eof"}},
	}
	require.Equal(t, out.Enumerated, out.Processed())
}
