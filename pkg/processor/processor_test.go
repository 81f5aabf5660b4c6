package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/ledger"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/matching"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/routing"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/stats"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
)

var submittedAt = time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)

func candidates() []models.Candidate {
	return []models.Candidate{
		{
			ID:          "cand-adunni",
			Name:        "Dr. Adunni Olatunji",
			Email:       "adunni.olatunji@email.com",
			Category:    models.CategoryProfessional,
			Affiliation: "Lagos University Teaching Hospital",
		},
		{
			ID:       "cand-chidi",
			Name:     "Chidi Okafor",
			Email:    "chidi@tutors.ng",
			Category: models.CategoryTutor,
		},
	}
}

func matchedSubmission(id string) models.Submission {
	return models.Submission{
		ID:             id,
		SubmitterName:  "Tunde",
		Category:       models.CategoryProfessional,
		TargetName:     "Dr. Adunni Olatunji",
		TargetEmail:    "adunni.olatunji@email.com",
		TargetFacility: "Lagos University Teaching Hospital",
		Rating:         5,
		SubmittedAt:    submittedAt,
		Provenance:     "professional_feedback_form",
	}
}

func unknownSubmission(id string, rating int) models.Submission {
	return models.Submission{
		ID:          id,
		Category:    models.CategoryProfessional,
		TargetName:  "Nurse Unknown",
		Rating:      rating,
		SubmittedAt: submittedAt,
	}
}

type harness struct {
	queue     *store.MemoryQueue
	directory store.Directory
	store     *store.MemoryStore
	stats     *stats.Accumulator
	logger    ectologger.Logger
}

func newHarness(subs ...models.Submission) *harness {
	return &harness{
		queue:     store.NewMemoryQueue(subs...),
		directory: store.NewMemoryDirectory(candidates()...),
		store:     store.NewMemoryStore(),
		stats:     stats.NewAccumulator(),
		logger:    ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}),
	}
}

func (h *harness) processor(config Config, opts ...Option) *Processor {
	d := routing.NewDispatcher(h.store, ledger.New(h.store, h.logger), h.stats, nil, h.logger)
	return New(h.queue, h.directory, matching.NewResolver(matching.DefaultConfig()), d, h.store, h.stats, config, h.logger, opts...)
}

func TestRunOnce_RoutesEachOutcome(t *testing.T) {
	ctx := context.Background()
	review := models.Submission{
		ID:          "sub-review",
		Category:    models.CategoryGeneral,
		TargetName:  "Dr. Adunni Olatunji",
		TargetEmail: "wrong@email.com",
		Rating:      3,
		SubmittedAt: submittedAt,
	}
	h := newHarness(matchedSubmission("sub-match"), review, unknownSubmission("sub-unknown", 4))

	result, err := h.processor(Config{}).RunOnce(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, result.TickID)
	assert.Equal(t, 3, result.Processed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, map[models.Outcome]int{
		models.OutcomeMatched:      1,
		models.OutcomeManualReview: 1,
		models.OutcomeUnmatched:    1,
	}, result.ByOutcome)

	pending, err := h.queue.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	var persisted models.RoutingStats
	found, err := h.store.Get(ctx, store.CollectionStats, store.StatsKey, &persisted)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), persisted.Matched)
	assert.Equal(t, int64(2), persisted.Unmatched)
}

func TestRunOnce_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(matchedSubmission("sub-1"))
	p := h.processor(Config{})

	first, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Processed)
	writes := h.store.Writes()

	sub, err := h.queue.Get(ctx, "sub-1")
	require.NoError(t, err)
	_, err = p.Process(ctx, sub)
	assert.ErrorIs(t, err, store.ErrAlreadyProcessed)

	h.queue.Enqueue(matchedSubmission("sub-1"))
	second, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, second.Processed)

	var inbox []models.FeedbackEntry
	require.NoError(t, h.store.Items(ctx, store.CollectionInbox, "cand-adunni", &inbox))
	assert.Len(t, inbox, 1)
	assert.Equal(t, int64(1), h.stats.Snapshot().Matched)
	assert.Equal(t, writes+1, h.store.Writes(), "only the stats snapshot is rewritten")
}

func TestProcess_SkipsProcessedSubmission(t *testing.T) {
	h := newHarness()
	processedAt := submittedAt.Add(time.Minute)
	sub := matchedSubmission("sub-1")
	sub.ProcessedAt = &processedAt

	_, err := h.processor(Config{}).Process(context.Background(), &sub)
	assert.ErrorIs(t, err, store.ErrAlreadyProcessed)
	assert.Zero(t, h.store.Writes())
}

func TestRunOnce_LedgerScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(unknownSubmission("s1", 4), unknownSubmission("s2", 2))
	p := h.processor(Config{})

	_, err := p.RunOnce(ctx)
	require.NoError(t, err)

	entries, err := ledger.New(h.store, h.logger).ListByCategory(ctx, models.CategoryProfessional)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Count)
	assert.Equal(t, 3.0, entries[0].AverageRating)
	assert.Equal(t, int64(2), h.stats.Snapshot().ByCategory[models.CategoryProfessional].Unmatched)
}

func TestRunOnce_FailureIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(matchedSubmission("sub-bad"), matchedSubmission("sub-good"))
	h.directory = &flakyDirectory{Directory: h.directory, fail: 1}
	p := h.processor(Config{})

	result, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Processed)

	bad, err := h.queue.IsProcessed(ctx, "sub-bad")
	require.NoError(t, err)
	assert.False(t, bad, "failed submission stays pending")

	result, err = p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Failed)
}

func TestRunOnce_ClaimHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	h := newHarness(matchedSubmission("sub-1"), matchedSubmission("sub-2"))
	claimer := store.NewMemoryClaimer()
	held, err := claimer.Claim(ctx, "sub-1")
	require.NoError(t, err)

	result, err := h.processor(Config{}, WithClaimer(claimer)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Processed)

	require.NoError(t, held.Release(ctx))
	_, err = claimer.Claim(ctx, "sub-2")
	assert.NoError(t, err, "claims are released after processing")
}

func TestRunOnce_FilterByCategory(t *testing.T) {
	ctx := context.Background()
	sub := matchedSubmission("sub-1")
	sub.Category = models.CategoryTutor
	h := newHarness(sub)

	result, err := h.processor(Config{FilterByCategory: true}).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ByOutcome[models.OutcomeUnmatched], "professional candidate is not offered for a tutor submission")
}

func TestRunOnce_TransactionFailureCountsAsFailed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(matchedSubmission("sub-1"))
	calls := 0
	failing := func(ctx context.Context, fn func(ctx context.Context) error) error {
		calls++
		if err := fn(ctx); err != nil {
			return err
		}
		return errors.New("commit failed")
	}

	result, err := h.processor(Config{}, WithTransactor(failing)).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, h.stats.Snapshot().Matched, "uncommitted dispatches are not counted")
}

func TestRunOnce_RetryAfterMarkFailureRoutesOnce(t *testing.T) {
	ctx := context.Background()
	review := models.Submission{
		ID:          "sub-review",
		Category:    models.CategoryGeneral,
		TargetName:  "Dr. Adunni Olatunji",
		TargetEmail: "wrong@email.com",
		Rating:      3,
		SubmittedAt: submittedAt,
	}
	h := newHarness(matchedSubmission("sub-1"), review)
	queue := &flakyMarkQueue{MemoryQueue: h.queue, fail: 2}
	notifier := &countingNotifier{}
	d := routing.NewDispatcher(h.store, ledger.New(h.store, h.logger), h.stats, notifier, h.logger)
	p := New(queue, h.directory, matching.NewResolver(matching.DefaultConfig()), d, h.store, h.stats, Config{}, h.logger)

	first, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Failed)
	assert.Zero(t, notifier.sent)
	assert.Zero(t, h.stats.Snapshot().Matched)

	second, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Processed)

	var inbox []models.FeedbackEntry
	require.NoError(t, h.store.Items(ctx, store.CollectionInbox, "cand-adunni", &inbox))
	assert.Len(t, inbox, 1)

	var notifications []models.Notification
	require.NoError(t, h.store.Items(ctx, store.CollectionNotifications, "cand-adunni", &notifications))
	assert.Len(t, notifications, 1)

	var queued []models.ReviewEntry
	require.NoError(t, h.store.Items(ctx, store.CollectionReviewQueue, store.ReviewQueueKey, &queued))
	assert.Len(t, queued, 1)

	snap := h.stats.Snapshot()
	assert.Equal(t, int64(1), snap.Matched)
	assert.Equal(t, int64(1), snap.Unmatched)
	assert.Equal(t, 1, notifier.sent)
}

func TestRunOnce_MarkedElsewhereIsSkipped(t *testing.T) {
	ctx := context.Background()
	h := newHarness(matchedSubmission("sub-1"))
	queue := &racedQueue{MemoryQueue: h.queue}
	p := New(queue, h.directory, matching.NewResolver(matching.DefaultConfig()),
		routing.NewDispatcher(h.store, ledger.New(h.store, h.logger), h.stats, nil, h.logger),
		h.store, h.stats, Config{}, h.logger)

	result, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Zero(t, result.Failed)
	assert.Zero(t, h.stats.Snapshot().Matched)
}

func TestRunOnce_ListFailure(t *testing.T) {
	h := newHarness()
	p := h.processor(Config{})
	p.queue = &brokenQueue{PendingQueue: h.queue}

	_, err := p.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestRestoreStats(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	require.NoError(t, h.store.Set(ctx, store.CollectionStats, store.StatsKey, models.RoutingStats{
		OutcomeCounts: models.OutcomeCounts{Matched: 7, Unmatched: 3},
		ByCategory: map[models.Category]models.OutcomeCounts{
			models.CategoryTutor: {Matched: 7, Unmatched: 3},
		},
	}))

	require.NoError(t, h.processor(Config{}).RestoreStats(ctx))
	snap := h.stats.Snapshot()
	assert.Equal(t, int64(7), snap.Matched)
	assert.Equal(t, int64(3), snap.ByCategory[models.CategoryTutor].Unmatched)
}

type flakyDirectory struct {
	store.Directory
	fail int
}

func (f *flakyDirectory) ListCandidates(ctx context.Context, category models.Category) ([]models.Candidate, error) {
	if f.fail > 0 {
		f.fail--
		return nil, errors.New("directory unavailable")
	}
	return f.Directory.ListCandidates(ctx, category)
}

type flakyMarkQueue struct {
	*store.MemoryQueue
	fail int
}

func (f *flakyMarkQueue) MarkProcessed(ctx context.Context, id string) error {
	if f.fail > 0 {
		f.fail--
		return errors.New("queue unavailable")
	}
	return f.MemoryQueue.MarkProcessed(ctx, id)
}

// racedQueue behaves as if another worker marks each submission between the check and the mark
type racedQueue struct {
	*store.MemoryQueue
}

func (r *racedQueue) MarkProcessed(ctx context.Context, id string) error {
	if err := r.MemoryQueue.MarkProcessed(ctx, id); err != nil {
		return err
	}
	return r.MemoryQueue.MarkProcessed(ctx, id)
}

type countingNotifier struct {
	sent int
}

func (c *countingNotifier) Notify(context.Context, *models.Notification) error {
	c.sent++
	return nil
}

type brokenQueue struct {
	store.PendingQueue
}

func (b *brokenQueue) ListPending(context.Context, int) ([]models.Submission, error) {
	return nil, errors.New("queue unavailable")
}
