// Package scheduler drives the routing processor on a fixed interval.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/processor"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

// DefaultPollInterval is the default interval between routing ticks
const DefaultPollInterval = 5 * time.Minute

// Runner runs one routing tick
type Runner interface {
	RunOnce(ctx context.Context) (*processor.TickResult, error)
}

type Config struct {
	PollInterval time.Duration
}

func DefaultConfig() Config {
	return Config{PollInterval: DefaultPollInterval}
}

// Scheduler runs ticks on one goroutine: immediately on Start, then on every interval
// and whenever Trigger is called.
type Scheduler struct {
	runner Runner
	config Config
	logger ectologger.Logger

	stopCh    chan struct{}
	stoppedC  chan struct{}
	triggerCh chan struct{}
	running   bool
	mu        sync.RWMutex

	lastMu sync.RWMutex
	last   *processor.TickResult
}

func New(runner Runner, config Config, logger ectologger.Logger) *Scheduler {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}

	return &Scheduler{
		runner:    runner,
		config:    config,
		logger:    logger,
		triggerCh: make(chan struct{}, 1),
	}
}

// Start begins the poll loop. Starting a running scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.WithContext(ctx).Warn("Scheduler already running")
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.stoppedC = make(chan struct{})
	stopCh, stoppedC := s.stopCh, s.stoppedC
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s", s.config.PollInterval)

	go s.pollLoop(context.WithoutCancel(ctx), stopCh, stoppedC)
	return nil
}

// Stop prevents new ticks and waits for an in-flight tick, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	stoppedC := s.stoppedC
	close(s.stopCh)
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")

	select {
	case <-stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Trigger asks for an extra tick. Requests made while one is already queued coalesce.
func (s *Scheduler) Trigger() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

// LastResult returns the most recent tick's summary, or nil before the first tick
func (s *Scheduler) LastResult() *processor.TickResult {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

func (s *Scheduler) pollLoop(ctx context.Context, stopCh, stoppedC chan struct{}) {
	defer close(stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		select {
		case <-stopCh:
			s.logger.WithContext(ctx).Debug("Scheduler poll loop stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		case <-s.triggerCh:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Scheduler.tick")
	defer span.End()

	result, err := s.runner.RunOnce(ctx)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Routing tick failed")
		return
	}

	s.lastMu.Lock()
	s.last = result
	s.lastMu.Unlock()
}
