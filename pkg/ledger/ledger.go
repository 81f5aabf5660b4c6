// Package ledger aggregates feedback about entities that are not in the directory, keyed
// by category and folded target name, so operators can invite them to register.
package ledger

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/matching"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

// ErrNoTargetName is returned for submissions that name nobody
var ErrNoTargetName = errors.New("submission has no target name")

var constituentNamespace = uuid.MustParse("8f1d6c4e-2b7a-4c1e-9a53-3e0f5d9b7c21")

// Key returns the ledger key for a category and target name
func Key(category models.Category, name string) string {
	return string(category) + ":" + matching.Fold(name)
}

// FoldEntry folds a submission into a ledger entry. A nil entry starts a new one.
// A submission already among the constituents leaves the entry unchanged.
func FoldEntry(entry *models.LedgerEntry, sub *models.Submission) models.LedgerEntry {
	key := Key(sub.Category, sub.TargetName)
	constituent := models.NewFeedbackEntry(uuid.NewSHA1(constituentNamespace, []byte(key+"|"+sub.ID)).String(), sub)

	if entry == nil {
		return models.LedgerEntry{
			Key:           key,
			Name:          strings.TrimSpace(sub.TargetName),
			Category:      sub.Category,
			Facility:      strings.TrimSpace(sub.TargetFacility),
			Constituents:  []models.FeedbackEntry{constituent},
			AverageRating: float64(sub.Rating),
			Count:         1,
			FirstSeenAt:   sub.SubmittedAt,
		}
	}

	out := *entry
	for _, c := range entry.Constituents {
		if c.SubmissionID == sub.ID {
			return out
		}
	}

	out.Constituents = append(append(make([]models.FeedbackEntry, 0, len(entry.Constituents)+1), entry.Constituents...), constituent)
	out.Count = len(out.Constituents)
	out.AverageRating = average(out.Constituents)
	if out.Facility == "" {
		out.Facility = strings.TrimSpace(sub.TargetFacility)
	}
	return out
}

func average(entries []models.FeedbackEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	sum := 0
	for _, e := range entries {
		sum += e.Rating
	}
	return math.Round(float64(sum)/float64(len(entries))*10) / 10
}

// Ledger persists ledger entries in a store
type Ledger struct {
	store  store.Store
	logger ectologger.Logger
}

func New(s store.Store, logger ectologger.Logger) *Ledger {
	return &Ledger{store: s, logger: logger}
}

// Fold records a submission against its unregistered target
func (l *Ledger) Fold(ctx context.Context, sub *models.Submission) (*models.LedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.Fold")
	defer span.End()

	if strings.TrimSpace(sub.TargetName) == "" {
		return nil, ErrNoTargetName
	}

	key := Key(sub.Category, sub.TargetName)
	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"submission_id": sub.ID,
		"ledger_key":    key,
	})

	var existing models.LedgerEntry
	found, err := l.store.Get(ctx, store.CollectionLedger, key, &existing)
	if err != nil {
		log.WithError(err).Error("Failed to load ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load ledger entry")
	}

	var current *models.LedgerEntry
	if found {
		current = &existing
	}
	entry := FoldEntry(current, sub)

	if err := l.store.Set(ctx, store.CollectionLedger, key, entry); err != nil {
		log.WithError(err).Error("Failed to save ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save ledger entry")
	}

	log.WithFields(map[string]any{
		"count":          entry.Count,
		"average_rating": entry.AverageRating,
	}).Debug("Folded submission into ledger")

	return &entry, nil
}

// Get returns the entry under key, or nil when there is none
func (l *Ledger) Get(ctx context.Context, key string) (*models.LedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.Get")
	defer span.End()

	var entry models.LedgerEntry
	found, err := l.store.Get(ctx, store.CollectionLedger, key, &entry)
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("ledger_key", key).Error("Failed to load ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load ledger entry")
	}
	if !found {
		return nil, nil
	}
	return &entry, nil
}

// ListByCategory lists entries sorted by key. An empty category lists every entry.
func (l *Ledger) ListByCategory(ctx context.Context, category models.Category) ([]models.LedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.ListByCategory")
	defer span.End()

	prefix := ""
	if category != "" {
		prefix = string(category) + ":"
	}

	keys, err := l.store.Keys(ctx, store.CollectionLedger, prefix)
	if err != nil {
		l.logger.WithContext(ctx).WithError(err).Error("Failed to list ledger keys")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list ledger entries")
	}

	entries := make([]models.LedgerEntry, 0, len(keys))
	for _, key := range keys {
		entry, err := l.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			entries = append(entries, *entry)
		}
	}
	return entries, nil
}

// MarkInvitationSent flags an entry once its entity has been invited to register
func (l *Ledger) MarkInvitationSent(ctx context.Context, key string) (*models.LedgerEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "ledger.Ledger.MarkInvitationSent")
	defer span.End()

	entry, err := l.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "ledger entry %s not found", key)
	}
	if entry.InvitationSent {
		return entry, nil
	}

	entry.InvitationSent = true
	if err := l.store.Set(ctx, store.CollectionLedger, key, entry); err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("ledger_key", key).Error("Failed to save ledger entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save ledger entry")
	}

	l.logger.WithContext(ctx).WithField("ledger_key", key).Info("Marked ledger invitation sent")
	return entry, nil
}
