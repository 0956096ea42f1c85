package ingest

import (
	"context"
	"io"
	"time"
)

// Extractor turns raw page bytes into text.
type Extractor interface {
	Extract(ctx context.Context, content []byte, contentType string) (string, error)
}

// Submitter writes one document to the index service.
type Submitter interface {
	Submit(ctx context.Context, doc IndexDocument) (Ack, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes run notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RunStore persists the ledger of completed runs.
type RunStore interface {
	RecordRun(ctx context.Context, summary RunSummary) error
}

// Throttle delays submissions to protect the index service.
type Throttle interface {
	Wait(ctx context.Context, key string) error
}

// Hasher computes digests for archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
