// Package admin implements the operator surface over the routing engine: reading stats,
// the review queue and the ledger, and resolving review entries by hand.
package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/ledger"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/metrics"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/routing"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/stats"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

const manualClaimPrefix = "manual:"

type Service struct {
	store      store.Store
	queue      store.PendingQueue
	directory  store.Directory
	ledger     *ledger.Ledger
	stats      *stats.Accumulator
	dispatcher *routing.Dispatcher
	claimer    store.Claimer
	logger     ectologger.Logger
	now        func() time.Time
}

func NewService(
	s store.Store,
	queue store.PendingQueue,
	directory store.Directory,
	l *ledger.Ledger,
	acc *stats.Accumulator,
	dispatcher *routing.Dispatcher,
	claimer store.Claimer,
	logger ectologger.Logger,
) *Service {
	if claimer == nil {
		claimer = store.NewMemoryClaimer()
	}
	return &Service{
		store:      s,
		queue:      queue,
		directory:  directory,
		ledger:     l,
		stats:      acc,
		dispatcher: dispatcher,
		claimer:    claimer,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *Service) Stats() models.RoutingStats {
	return s.stats.Snapshot()
}

// ReviewQueue lists review entries oldest first. Resolved entries carry their resolution
// and are hidden unless includeResolved is set.
func (s *Service) ReviewQueue(ctx context.Context, includeResolved bool) ([]models.ReviewEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "admin.Service.ReviewQueue")
	defer span.End()

	var entries []models.ReviewEntry
	if err := s.store.Items(ctx, store.CollectionReviewQueue, store.ReviewQueueKey, &entries); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read review queue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read review queue")
	}

	out := make([]models.ReviewEntry, 0, len(entries))
	for _, entry := range entries {
		resolution, err := s.resolution(ctx, entry.SubmissionID)
		if err != nil {
			return nil, err
		}
		if resolution != nil {
			if !includeResolved {
				continue
			}
			entry.Resolution = resolution
			entry.NeedsManualReview = false
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Service) Ledger(ctx context.Context, category models.Category) ([]models.LedgerEntry, error) {
	return s.ledger.ListByCategory(ctx, category)
}

func (s *Service) MarkInvitationSent(ctx context.Context, key string) (*models.LedgerEntry, error) {
	return s.ledger.MarkInvitationSent(ctx, key)
}

// ManuallyMatch routes a submission to the target an operator picked. The submission comes
// from the review queue, or from the pending queue once it has been routed without a match.
func (s *Service) ManuallyMatch(ctx context.Context, submissionID string, req models.ManualMatchRequest, resolvedBy string) (*models.RoutedRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "admin.Service.ManuallyMatch")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"submission_id": submissionID,
		"target_id":     req.TargetID,
	})

	if err := req.Validate(); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	claim, err := s.claimer.Claim(ctx, manualClaimPrefix+submissionID)
	if err != nil {
		if errors.Is(err, store.ErrClaimNotAcquired) {
			return nil, httperror.NewHTTPErrorf(http.StatusConflict, "submission %s is being resolved", submissionID)
		}
		log.WithError(err).Error("Failed to claim review entry")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to claim review entry")
	}
	defer func() {
		if err := claim.Release(ctx); err != nil {
			log.WithError(err).Warn("Failed to release review claim")
		}
	}()

	entry, err := s.findReviewEntry(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		if entry, err = s.unmatchedEntry(ctx, submissionID); err != nil {
			return nil, err
		}
	}

	existing, err := s.resolution(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "submission %s was already matched to %s", submissionID, existing.TargetID)
	}

	cand, err := s.directory.GetCandidate(ctx, req.TargetID)
	if err != nil {
		log.WithError(err).Error("Failed to look up target")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up target")
	}
	if cand == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "target %s does not exist", req.TargetID)
	}
	if cand.Category != req.TargetCategory {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "target %s is a %s, not a %s", req.TargetID, cand.Category, req.TargetCategory)
	}

	confidence := 1.0
	for _, c := range entry.Candidates {
		if c.ID == cand.ID {
			confidence = c.Confidence
			break
		}
	}

	record, err := s.dispatcher.DispatchMatch(ctx, &entry.Submission, cand, confidence)
	if err != nil {
		return nil, err
	}

	resolution := models.ManualMatch{
		SubmissionID:   submissionID,
		TargetID:       cand.ID,
		TargetCategory: cand.Category,
		ResolvedBy:     resolvedBy,
		ResolvedAt:     s.now().UTC(),
	}
	if err := s.store.Set(ctx, store.CollectionManualMatches, submissionID, resolution); err != nil {
		log.WithError(err).Error("Failed to record manual match")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record manual match")
	}

	s.dispatcher.Settle(ctx, &entry.Submission, record)
	metrics.RecordManualMatch(string(cand.Category))
	log.WithField("resolved_by", resolvedBy).Info("Manually matched submission")

	return record, nil
}

func (s *Service) findReviewEntry(ctx context.Context, submissionID string) (*models.ReviewEntry, error) {
	var entries []models.ReviewEntry
	if err := s.store.Items(ctx, store.CollectionReviewQueue, store.ReviewQueueKey, &entries); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read review queue")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read review queue")
	}

	for i := range entries {
		if entries[i].SubmissionID == submissionID {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// unmatchedEntry wraps a routed submission that never reached the review queue
func (s *Service) unmatchedEntry(ctx context.Context, submissionID string) (*models.ReviewEntry, error) {
	sub, err := s.queue.Get(ctx, submissionID)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("submission_id", submissionID).Error("Failed to load submission")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load submission")
	}
	if sub == nil {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "submission %s not found", submissionID)
	}
	if !sub.IsProcessed() {
		return nil, httperror.NewHTTPErrorf(http.StatusConflict, "submission %s has not been routed yet", submissionID)
	}
	return &models.ReviewEntry{SubmissionID: sub.ID, Submission: *sub}, nil
}

func (s *Service) resolution(ctx context.Context, submissionID string) (*models.ManualMatch, error) {
	var match models.ManualMatch
	found, err := s.store.Get(ctx, store.CollectionManualMatches, submissionID, &match)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to read manual match")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read manual match")
	}
	if !found {
		return nil, nil
	}
	return &match, nil
}
