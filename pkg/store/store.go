// Package store defines the ports the routing engine reads from and writes to, and
// in-memory implementations of them.
package store

import (
	"context"
	"errors"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

// Collection names used by the engine
const (
	CollectionInbox         = "feedback_inbox"
	CollectionNotifications = "notifications"
	CollectionReviewQueue   = "review_queue"
	CollectionManualMatches = "manual_matches"
	CollectionLedger        = "unregistered_ledger"
	CollectionStats         = "routing_stats"

	// ReviewQueueKey is the single list the review queue appends to
	ReviewQueueKey = "pending"
	// StatsKey holds the latest persisted stats snapshot
	StatsKey = "current"
)

// Store is a document store over named collections. Values are JSON encoded.
// Set replaces the document under a key; Append adds to the list under a key and
// never rewrites earlier items.
type Store interface {
	// Get decodes the document into dest. It reports false when the key is absent.
	Get(ctx context.Context, collection, key string, dest any) (bool, error)
	Set(ctx context.Context, collection, key string, value any) error
	Append(ctx context.Context, collection, key string, value any) error
	// Items decodes every appended item, oldest first, into dest, which must point to a slice.
	Items(ctx context.Context, collection, key string, dest any) error
	// Keys lists keys in a collection that start with prefix, sorted ascending.
	Keys(ctx context.Context, collection, prefix string) ([]string, error)
}

// ErrAlreadyProcessed is returned by MarkProcessed when the submission was already marked
var ErrAlreadyProcessed = errors.New("submission already processed")

// PendingQueue is the intake queue of submissions waiting to be routed
type PendingQueue interface {
	ListPending(ctx context.Context, limit int) ([]models.Submission, error)
	// MarkProcessed returns ErrAlreadyProcessed when another worker got there first.
	MarkProcessed(ctx context.Context, id string) error
	IsProcessed(ctx context.Context, id string) (bool, error)
	Get(ctx context.Context, id string) (*models.Submission, error)
}

// Directory is the read-only source of registered candidates
type Directory interface {
	// ListCandidates lists candidates in category, or every candidate when category is empty.
	ListCandidates(ctx context.Context, category models.Category) ([]models.Candidate, error)
	// GetCandidate returns nil when no candidate has the id.
	GetCandidate(ctx context.Context, id string) (*models.Candidate, error)
}

// Notifier delivers notifications to the outside world
type Notifier interface {
	Notify(ctx context.Context, notification *models.Notification) error
}

// NoopNotifier drops notifications. The store copy is still written by the dispatcher.
type NoopNotifier struct{}

func (NoopNotifier) Notify(context.Context, *models.Notification) error { return nil }
