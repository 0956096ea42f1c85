// Package memory keeps submitted documents in process. It backs dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/cca-esindex/internal/ingest"
)

// Submitter stores every accepted document.
type Submitter struct {
	mu   sync.RWMutex
	docs []ingest.IndexDocument
	// Reject, when set, decides per document whether to fail the submission.
	Reject func(doc ingest.IndexDocument) error
}

// New returns an empty memory Submitter.
func New() *Submitter {
	return &Submitter{}
}

// Submit records doc and returns a sequential ID.
func (s *Submitter) Submit(ctx context.Context, doc ingest.IndexDocument) (ingest.Ack, error) {
	if err := ctx.Err(); err != nil {
		return ingest.Ack{}, fmt.Errorf("submit: %w", err)
	}
	if s.Reject != nil {
		if err := s.Reject(doc); err != nil {
			return ingest.Ack{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return ingest.Ack{ID: fmt.Sprintf("memory-%d", len(s.docs)), Result: "created", Created: true}, nil
}

// Documents returns a copy of the accepted documents in submission order.
func (s *Submitter) Documents() []ingest.IndexDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ingest.IndexDocument, len(s.docs))
	copy(out, s.docs)
	return out
}
