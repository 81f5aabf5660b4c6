package matching

import (
	"math"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

// ScoringConfig holds the signal weights and the similarity gates of the fuzzy signals
type ScoringConfig struct {
	ExactNameWeight float64
	// FuzzyNameWeight scales name similarity when the exact match did not fire
	FuzzyNameWeight float64
	// FuzzyNameMinSimilarity gates the fuzzy name signal; below it the signal is zero
	FuzzyNameMinSimilarity float64
	EmailWeight            float64
	AffiliationWeight      float64
	// AffiliationMinSimilarity gates the facility/affiliation signal
	AffiliationMinSimilarity float64
	CategoryWeight           float64
}

// DefaultScoringConfig returns the stock weights
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		ExactNameWeight:          0.40,
		FuzzyNameWeight:          0.15,
		FuzzyNameMinSimilarity:   0.80,
		EmailWeight:              0.30,
		AffiliationWeight:        0.10,
		AffiliationMinSimilarity: 0.70,
		CategoryWeight:           0.05,
	}
}

// Scorer computes how confident we are that a submission is about a candidate
type Scorer struct {
	config ScoringConfig
}

// NewScorer creates a new Scorer
func NewScorer(config ScoringConfig) *Scorer {
	return &Scorer{config: config}
}

// Score sums the independent signals for sub against cand, clamped to [0, 1].
// A field missing on either side contributes nothing.
func (s *Scorer) Score(sub *models.Submission, cand *models.Candidate) models.ScoredCandidate {
	var b models.ScoreBreakdown

	if EqualFold(sub.TargetName, cand.Name) {
		b.ExactName = s.config.ExactNameWeight
	} else {
		b.FuzzyName = s.gated(sub.TargetName, cand.Name, s.config.FuzzyNameWeight, s.config.FuzzyNameMinSimilarity)
	}

	if EqualFold(sub.TargetEmail, cand.Email) {
		b.Email = s.config.EmailWeight
	}

	b.Affiliation = s.gated(sub.TargetFacility, cand.Affiliation, s.config.AffiliationWeight, s.config.AffiliationMinSimilarity)

	if sub.Category != "" && sub.Category == cand.Category {
		b.Category = s.config.CategoryWeight
	}

	total := b.ExactName + b.FuzzyName + b.Email + b.Affiliation + b.Category

	return models.ScoredCandidate{
		Candidate:  *cand,
		Confidence: clamp(total),
		Breakdown:  b,
	}
}

// gated returns weight*similarity when both values are present and the similarity
// reaches gate, and zero otherwise.
func (s *Scorer) gated(a, b string, weight, gate float64) float64 {
	fa, fb := Fold(a), Fold(b)
	if fa == "" || fb == "" {
		return 0
	}
	sim := Similarity(fa, fb)
	if sim < gate {
		return 0
	}
	return weight * sim
}

// clamp bounds a score to [0, 1] and rounds away the float noise of summing weights,
// so 0.4+0.3+0.1 compares equal to 0.8.
func clamp(score float64) float64 {
	score = math.Round(score*1e9) / 1e9
	if score > 1 {
		return 1
	}
	if score < 0 {
		return 0
	}
	return score
}
