// Package processor runs one batch of pending submissions through resolution and dispatch.
package processor

import (
	"context"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	appctx "github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/context"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/matching"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/metrics"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/routing"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/stats"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

// DefaultBatchSize is the number of pending submissions fetched per tick
const DefaultBatchSize = 100

// Transactor runs fn so that its writes commit or roll back together
type Transactor func(ctx context.Context, fn func(ctx context.Context) error) error

func noTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type Config struct {
	BatchSize int
	// FilterByCategory only offers candidates from the submission's own category
	FilterByCategory bool
}

// TickResult summarizes one RunOnce
type TickResult struct {
	TickID    string                 `json:"tick_id"`
	Processed int                    `json:"processed"`
	Skipped   int                    `json:"skipped"`
	Failed    int                    `json:"failed"`
	ByOutcome map[models.Outcome]int `json:"by_outcome"`
	Duration  time.Duration          `json:"duration"`
}

type Processor struct {
	queue      store.PendingQueue
	directory  store.Directory
	resolver   *matching.Resolver
	dispatcher *routing.Dispatcher
	claimer    store.Claimer
	store      store.Store
	stats      *stats.Accumulator
	transactor Transactor
	config     Config
	logger     ectologger.Logger
}

// Option customizes a Processor
type Option func(*Processor)

// WithClaimer guards each submission with a claim so parallel workers never route it twice
func WithClaimer(c store.Claimer) Option {
	return func(p *Processor) { p.claimer = c }
}

// WithTransactor wraps dispatch and MarkProcessed in one transaction
func WithTransactor(t Transactor) Option {
	return func(p *Processor) { p.transactor = t }
}

func New(
	queue store.PendingQueue,
	directory store.Directory,
	resolver *matching.Resolver,
	dispatcher *routing.Dispatcher,
	s store.Store,
	acc *stats.Accumulator,
	config Config,
	logger ectologger.Logger,
	opts ...Option,
) *Processor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	p := &Processor{
		queue:      queue,
		directory:  directory,
		resolver:   resolver,
		dispatcher: dispatcher,
		claimer:    store.NoopClaimer{},
		store:      s,
		stats:      acc,
		transactor: noTransaction,
		config:     config,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunOnce routes every pending submission in one batch. A failing submission is logged and
// left pending for the next tick; only a failure to list the queue fails the tick.
func (p *Processor) RunOnce(ctx context.Context) (*TickResult, error) {
	tickID := uuid.NewString()
	ctx = appctx.SetTickID(ctx, tickID)

	ctx, span := tracing.StartSpan(ctx, "processor.Processor.RunOnce")
	defer span.End()

	start := time.Now()
	log := p.logger.WithContext(ctx).WithField("tick_id", tickID)

	pending, err := p.queue.ListPending(ctx, p.config.BatchSize)
	if err != nil {
		log.WithError(err).Error("Failed to list pending submissions")
		return nil, err
	}

	result := &TickResult{TickID: tickID, ByOutcome: make(map[models.Outcome]int)}
	for i := range pending {
		sub := &pending[i]
		outcome, err := p.Process(ctx, sub)
		switch {
		case errors.Is(err, store.ErrAlreadyProcessed), errors.Is(err, store.ErrClaimNotAcquired):
			result.Skipped++
		case err != nil:
			result.Failed++
			log.WithError(err).WithField("submission_id", sub.ID).Warn("Failed to route submission; will retry next tick")
		default:
			result.Processed++
			result.ByOutcome[outcome]++
		}
	}

	p.SaveStats(ctx)

	result.Duration = time.Since(start)
	metrics.RecordTick(result.Processed, result.Skipped, result.Failed, result.Duration.Seconds())

	log.WithFields(map[string]any{
		"pending":   len(pending),
		"processed": result.Processed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
		"duration":  result.Duration.String(),
	}).Info("Routing tick completed")

	return result, nil
}

// Process routes one submission end to end
func (p *Processor) Process(ctx context.Context, sub *models.Submission) (outcome models.Outcome, err error) {
	ctx = appctx.SetSubmissionID(ctx, sub.ID)
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.Process",
		attribute.String("submission.id", sub.ID),
		attribute.String("submission.category", string(sub.Category)),
	)
	defer func() {
		if outcome != "" {
			span.SetAttributes(attribute.String("routing.outcome", string(outcome)))
		}
		if err != nil && !errors.Is(err, store.ErrAlreadyProcessed) && !errors.Is(err, store.ErrClaimNotAcquired) {
			tracing.RecordError(span, err)
		}
		span.End()
	}()

	log := p.logger.WithContext(ctx).WithField("submission_id", sub.ID)

	if sub.IsProcessed() {
		return "", store.ErrAlreadyProcessed
	}

	claim, err := p.claimer.Claim(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, store.ErrClaimNotAcquired) {
			log.Debug("Submission claimed by another worker")
		}
		return "", err
	}
	defer func() {
		if err := claim.Release(ctx); err != nil {
			log.WithError(err).Warn("Failed to release submission claim")
		}
	}()

	done, err := p.queue.IsProcessed(ctx, sub.ID)
	if err != nil {
		return "", err
	}
	if done {
		return "", store.ErrAlreadyProcessed
	}

	if err := sub.Validate(); err != nil {
		log.WithError(err).Warn("Submission failed validation; routing anyway")
	}

	var category models.Category
	if p.config.FilterByCategory {
		category = sub.Category
	}
	candidates, err := p.directory.ListCandidates(ctx, category)
	if err != nil {
		log.WithError(err).Error("Failed to list candidates")
		return "", err
	}

	match := p.resolver.Resolve(sub, candidates)
	log.WithFields(map[string]any{
		"outcome":    match.Outcome,
		"candidates": len(match.Candidates),
	}).Debug("Resolved submission")

	var record *models.RoutedRecord
	err = p.transactor(ctx, func(ctx context.Context) error {
		var err error
		if record, err = p.dispatcher.Dispatch(ctx, sub, match); err != nil {
			return err
		}
		return p.queue.MarkProcessed(ctx, sub.ID)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyProcessed) {
			log.Debug("Submission marked processed by another worker; discarding dispatch")
		}
		return "", err
	}

	p.dispatcher.Settle(ctx, sub, record)
	return match.Outcome, nil
}

// SaveStats persists the current stats snapshot. Failures are logged only.
func (p *Processor) SaveStats(ctx context.Context) {
	if err := p.store.Set(ctx, store.CollectionStats, store.StatsKey, p.stats.Snapshot()); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to persist routing stats")
	}
}

// RestoreStats loads the persisted snapshot into the accumulator, if there is one
func (p *Processor) RestoreStats(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.RestoreStats")
	defer span.End()

	var snapshot models.RoutingStats
	found, err := p.store.Get(ctx, store.CollectionStats, store.StatsKey, &snapshot)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to load routing stats")
		return err
	}
	if !found {
		return nil
	}

	p.stats.Restore(snapshot)
	p.logger.WithContext(ctx).WithFields(map[string]any{
		"matched":   snapshot.Matched,
		"unmatched": snapshot.Unmatched,
	}).Info("Restored routing stats")
	return nil
}
