// Package stats counts routing outcomes per category.
package stats

import (
	"sync"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/metrics"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

const (
	outcomeMatched   = "matched"
	outcomeUnmatched = "unmatched"
)

// Accumulator holds the running totals. Readers get copies from Snapshot.
type Accumulator struct {
	mu         sync.RWMutex
	totals     models.OutcomeCounts
	byCategory map[models.Category]models.OutcomeCounts
}

func NewAccumulator() *Accumulator {
	return &Accumulator{byCategory: make(map[models.Category]models.OutcomeCounts)}
}

func (a *Accumulator) RecordMatched(category models.Category) {
	a.mu.Lock()
	a.totals.Matched++
	counts := a.byCategory[category]
	counts.Matched++
	a.byCategory[category] = counts
	a.mu.Unlock()

	metrics.RecordOutcome(string(category), outcomeMatched)
}

func (a *Accumulator) RecordUnmatched(category models.Category) {
	a.mu.Lock()
	a.totals.Unmatched++
	counts := a.byCategory[category]
	counts.Unmatched++
	a.byCategory[category] = counts
	a.mu.Unlock()

	metrics.RecordOutcome(string(category), outcomeUnmatched)
}

// Snapshot returns a deep copy of the counters
func (a *Accumulator) Snapshot() models.RoutingStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	byCategory := make(map[models.Category]models.OutcomeCounts, len(a.byCategory))
	for category, counts := range a.byCategory {
		byCategory[category] = counts
	}
	return models.RoutingStats{OutcomeCounts: a.totals, ByCategory: byCategory}
}

// Restore replaces the counters with a persisted snapshot. The Prometheus mirror
// only counts what this process routed, so it is left alone.
func (a *Accumulator) Restore(snapshot models.RoutingStats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totals = snapshot.OutcomeCounts
	a.byCategory = make(map[models.Category]models.OutcomeCounts, len(snapshot.ByCategory))
	for category, counts := range snapshot.ByCategory {
		a.byCategory[category] = counts
	}
}
