package store

import (
	"context"
	"errors"
	"sync"
)

// ErrClaimNotAcquired is returned when another worker already holds the claim
var ErrClaimNotAcquired = errors.New("claim not acquired")

// Claim is held while one worker routes one submission
type Claim interface {
	Release(ctx context.Context) error
}

// Claimer hands out at-most-once claims on submissions
type Claimer interface {
	Claim(ctx context.Context, submissionID string) (Claim, error)
}

type noopClaim struct{}

func (noopClaim) Release(context.Context) error { return nil }

// NoopClaimer always grants the claim. It is enough for a single instance.
type NoopClaimer struct{}

func (NoopClaimer) Claim(context.Context, string) (Claim, error) { return noopClaim{}, nil }

// MemoryClaimer serializes claims inside one process
type MemoryClaimer struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{held: make(map[string]struct{})}
}

func (c *MemoryClaimer) Claim(_ context.Context, submissionID string) (Claim, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.held[submissionID]; ok {
		return nil, ErrClaimNotAcquired
	}
	c.held[submissionID] = struct{}{}
	return &memoryClaim{claimer: c, id: submissionID}, nil
}

type memoryClaim struct {
	claimer *MemoryClaimer
	id      string
}

func (m *memoryClaim) Release(context.Context) error {
	m.claimer.mu.Lock()
	defer m.claimer.mu.Unlock()
	delete(m.claimer.held, m.id)
	return nil
}
