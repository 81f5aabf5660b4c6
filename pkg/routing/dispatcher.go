// Package routing writes a resolved submission to wherever its outcome sends it.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/ledger"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/metrics"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/stats"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

const notificationTitle = "New feedback received"

var routingNamespace = uuid.MustParse("4c9e2f7a-6d1b-4f3e-8a0c-7b5d2e9f1a64")

// routingID derives a stable id for one routing write, so a retried dispatch finds its earlier writes
func routingID(kind string, parts ...string) string {
	return uuid.NewSHA1(routingNamespace, []byte(kind+"|"+strings.Join(parts, "|"))).String()
}

// Dispatcher routes match results. Dispatch only writes to the store and may be retried;
// Settle publishes and counts a dispatch once it has committed. Settle is the only writer
// of the stats accumulator.
type Dispatcher struct {
	store    store.Store
	ledger   *ledger.Ledger
	stats    *stats.Accumulator
	notifier store.Notifier
	logger   ectologger.Logger
	now      func() time.Time
}

func NewDispatcher(
	s store.Store,
	l *ledger.Ledger,
	acc *stats.Accumulator,
	notifier store.Notifier,
	logger ectologger.Logger,
) *Dispatcher {
	if notifier == nil {
		notifier = store.NoopNotifier{}
	}
	return &Dispatcher{
		store:    s,
		ledger:   l,
		stats:    acc,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Dispatch performs the writes for the result's outcome
func (d *Dispatcher) Dispatch(ctx context.Context, sub *models.Submission, result *models.MatchResult) (*models.RoutedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "routing.Dispatcher.Dispatch")
	defer span.End()

	switch result.Outcome {
	case models.OutcomeMatched:
		if result.Best == nil {
			return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "matched result for %s has no candidate", sub.ID)
		}
		return d.DispatchMatch(ctx, sub, &result.Best.Candidate, result.Best.Confidence)
	case models.OutcomeManualReview:
		return d.dispatchReview(ctx, sub, result)
	case models.OutcomeUnmatched:
		return d.dispatchUnmatched(ctx, sub)
	default:
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "unknown outcome %q", result.Outcome)
	}
}

// DispatchMatch delivers a submission to a candidate's inbox and stores the notification
func (d *Dispatcher) DispatchMatch(ctx context.Context, sub *models.Submission, cand *models.Candidate, confidence float64) (*models.RoutedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "routing.Dispatcher.DispatchMatch")
	defer span.End()

	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"submission_id": sub.ID,
		"target_id":     cand.ID,
		"confidence":    confidence,
	})

	entry := models.NewFeedbackEntry(routingID(store.CollectionInbox, sub.ID, cand.ID), sub)
	entry.TargetID = cand.ID
	entry.TargetCategory = cand.Category
	entry.Confidence = confidence

	if err := d.appendOnce(ctx, store.CollectionInbox, cand.ID, entry.ID, entry); err != nil {
		log.WithError(err).Error("Failed to append feedback to inbox")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to deliver feedback")
	}

	notification := d.notification(sub, cand.ID)
	if err := d.appendOnce(ctx, store.CollectionNotifications, cand.ID, notification.ID, notification); err != nil {
		log.WithError(err).Warn("Failed to store notification")
	}

	log.Info("Routed feedback to inbox")

	return &models.RoutedRecord{
		SubmissionID: sub.ID,
		Outcome:      models.OutcomeMatched,
		Inbox:        &entry,
		Notification: notification,
	}, nil
}

// Settle publishes the record's notification and counts its outcome. Call it once, after
// the writes from Dispatch have committed.
func (d *Dispatcher) Settle(ctx context.Context, sub *models.Submission, record *models.RoutedRecord) {
	ctx, span := tracing.StartSpan(ctx, "routing.Dispatcher.Settle")
	defer span.End()

	if record.Notification != nil {
		if err := d.notifier.Notify(ctx, record.Notification); err != nil {
			metrics.RecordNotification("failed")
			d.logger.WithContext(ctx).WithError(err).WithField("submission_id", sub.ID).Warn("Failed to publish notification")
		} else {
			metrics.RecordNotification("published")
		}
	}

	if record.Outcome == models.OutcomeMatched {
		d.stats.RecordMatched(sub.Category)
	} else {
		d.stats.RecordUnmatched(sub.Category)
	}
}

// appendOnce appends value under key unless an item with id is already there
func (d *Dispatcher) appendOnce(ctx context.Context, collection, key, id string, value any) error {
	var existing []struct {
		ID string `json:"id"`
	}
	if err := d.store.Items(ctx, collection, key, &existing); err != nil {
		return err
	}
	for _, item := range existing {
		if item.ID == id {
			d.logger.WithContext(ctx).WithFields(map[string]any{
				"collection": collection,
				"id":         id,
			}).Debug("Item already written; skipping append")
			return nil
		}
	}
	return d.store.Append(ctx, collection, key, value)
}

func (d *Dispatcher) notification(sub *models.Submission, targetID string) *models.Notification {
	return &models.Notification{
		ID:        routingID(store.CollectionNotifications, sub.ID, targetID),
		TargetID:  targetID,
		Type:      models.NotificationTypeFeedbackReceived,
		Title:     notificationTitle,
		Message:   fmt.Sprintf("You received a %d-star rating from %s", sub.Rating, sub.SubmitterDisplay()),
		Timestamp: d.now().UTC(),
	}
}

func (d *Dispatcher) dispatchReview(ctx context.Context, sub *models.Submission, result *models.MatchResult) (*models.RoutedRecord, error) {
	log := d.logger.WithContext(ctx).WithFields(map[string]any{
		"submission_id":   sub.ID,
		"candidate_count": len(result.Candidates),
	})

	entry, err := d.foldLedger(ctx, sub)
	if err != nil {
		return nil, err
	}

	review := models.ReviewEntry{
		ID:           routingID(store.CollectionReviewQueue, sub.ID),
		SubmissionID: sub.ID,
		Submission:   *sub,
		Candidates: ectolinq.Map(result.Candidates, func(c models.ScoredCandidate) models.ReviewCandidate {
			return models.ReviewCandidate{
				ID:         c.Candidate.ID,
				Name:       c.Candidate.Name,
				Email:      c.Candidate.Email,
				Category:   c.Candidate.Category,
				Confidence: c.Confidence,
			}
		}),
		FlaggedAt:         d.now().UTC(),
		NeedsManualReview: true,
	}

	if err := d.appendOnce(ctx, store.CollectionReviewQueue, store.ReviewQueueKey, review.ID, review); err != nil {
		log.WithError(err).Error("Failed to append review entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to queue submission for review")
	}

	log.WithField("top_candidate", ectolinq.First(review.Candidates).ID).Info("Queued feedback for manual review")

	return &models.RoutedRecord{
		SubmissionID: sub.ID,
		Outcome:      models.OutcomeManualReview,
		Review:       &review,
		Ledger:       entry,
	}, nil
}

func (d *Dispatcher) dispatchUnmatched(ctx context.Context, sub *models.Submission) (*models.RoutedRecord, error) {
	entry, err := d.foldLedger(ctx, sub)
	if err != nil {
		return nil, err
	}

	d.logger.WithContext(ctx).WithField("submission_id", sub.ID).Info("Recorded unmatched feedback")

	return &models.RoutedRecord{
		SubmissionID: sub.ID,
		Outcome:      models.OutcomeUnmatched,
		Ledger:       entry,
	}, nil
}

// foldLedger returns a nil entry for submissions that name nobody
func (d *Dispatcher) foldLedger(ctx context.Context, sub *models.Submission) (*models.LedgerEntry, error) {
	entry, err := d.ledger.Fold(ctx, sub)
	if errors.Is(err, ledger.ErrNoTargetName) {
		d.logger.WithContext(ctx).WithField("submission_id", sub.ID).Warn("Submission has no target name; skipping ledger")
		return nil, nil
	}
	return entry, err
}
