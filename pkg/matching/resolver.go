// Package matching scores feedback submissions against directory candidates and
// classifies each submission as matched, needing review, or unmatched.
package matching

import (
	"sort"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

// Config contains configuration for the resolver
type Config struct {
	ConsiderationThreshold float64 // Minimum score for a candidate to be kept (default: 0.30)
	AutoMatchThreshold     float64 // Score at or above which the top candidate is matched (default: 0.80)
	MaxReviewCandidates    int     // Candidates carried to manual review (default: 5)
	Scoring                ScoringConfig
}

// DefaultConfig returns default resolver configuration
func DefaultConfig() Config {
	return Config{
		ConsiderationThreshold: 0.30,
		AutoMatchThreshold:     0.80,
		MaxReviewCandidates:    5,
		Scoring:                DefaultScoringConfig(),
	}
}

// Resolver ranks directory candidates for a submission. It has no side effects.
type Resolver struct {
	scorer *Scorer
	config Config
}

// NewResolver creates a new Resolver. The config is used as given; start from DefaultConfig.
// A zero ConsiderationThreshold keeps every candidate.
func NewResolver(config Config) *Resolver {
	return &Resolver{
		scorer: NewScorer(config.Scoring),
		config: config,
	}
}

// Config returns the effective configuration
func (r *Resolver) Config() Config {
	return r.config
}

// Resolve scores every candidate, keeps those at or above the consideration threshold,
// ranks them and classifies the submission.
func (r *Resolver) Resolve(sub *models.Submission, candidates []models.Candidate) *models.MatchResult {
	kept := make([]models.ScoredCandidate, 0, len(candidates))
	for i := range candidates {
		scored := r.scorer.Score(sub, &candidates[i])
		if scored.Confidence >= r.config.ConsiderationThreshold {
			kept = append(kept, scored)
		}
	}

	Rank(kept)
	return r.Classify(sub.ID, kept)
}

// Classify turns ranked candidates into a result. The auto-match threshold is inclusive.
func (r *Resolver) Classify(submissionID string, ranked []models.ScoredCandidate) *models.MatchResult {
	result := &models.MatchResult{
		SubmissionID: submissionID,
		Outcome:      models.OutcomeUnmatched,
		Candidates:   []models.ScoredCandidate{},
	}

	if len(ranked) == 0 {
		return result
	}

	result.Candidates = ranked[:min(len(ranked), r.config.MaxReviewCandidates)]

	top := ranked[0]
	if top.Confidence >= r.config.AutoMatchThreshold {
		result.Outcome = models.OutcomeMatched
		result.Best = &top
		return result
	}

	result.Outcome = models.OutcomeManualReview
	return result
}

// Rank sorts by confidence descending, then by candidate ID ascending
func Rank(scored []models.ScoredCandidate) {
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Confidence != scored[j].Confidence {
			return scored[i].Confidence > scored[j].Confidence
		}
		return scored[i].Candidate.ID < scored[j].Candidate.ID
	})
}
