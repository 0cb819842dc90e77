// Package entropy provides a queue-backed entropy source for development and
// tests. It issues correlation IDs immediately and lets the caller drain the
// queue to simulate out-of-band fulfillments in any order.
package entropy

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"relicforge/pkg/domain"
)

// Request is a recorded entropy request awaiting fulfillment.
type Request struct {
	CorrelationID string
	Kind          domain.EntropyKind
}

// QueueSource implements the engine's entropy collaborator by minting random
// correlation IDs and queueing the requests. Production deployments replace
// it with an adapter for a verifiable randomness provider.
type QueueSource struct {
	mu      sync.Mutex
	pending []Request
}

// NewQueueSource returns an empty queue source.
func NewQueueSource() *QueueSource {
	return &QueueSource{}
}

// Request issues a fresh correlation ID and records the pending request.
func (q *QueueSource) Request(_ context.Context, kind domain.EntropyKind) (string, error) {
	cid, err := newCorrelationID()
	if err != nil {
		return "", err
	}
	q.mu.Lock()
	q.pending = append(q.pending, Request{CorrelationID: cid, Kind: kind})
	q.mu.Unlock()
	return cid, nil
}

// Drain removes and returns all recorded requests in issue order.
func (q *QueueSource) Drain() []Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of requests awaiting fulfillment.
func (q *QueueSource) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func newCorrelationID() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("generate correlation id: %w", err)
	}
	return hex.EncodeToString(buf[:]), nil
}
