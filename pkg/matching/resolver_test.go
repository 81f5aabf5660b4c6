package matching

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

func directory() []models.Candidate {
	return []models.Candidate{
		adunni(),
		{ID: "cand-chidi", Name: "Chidi Okafor", Email: "chidi@tutors.ng", Category: models.CategoryTutor},
		{ID: "cand-clinic", Name: "A. Olatunji", Email: "a.olatunji@clinic.ng", Category: models.CategoryFacility, Affiliation: "Ikeja Clinic"},
		{ID: "cand-bell", Name: "Adunni Olatunji-Bell", Email: "bell@email.com", Category: models.CategoryEmployer},
	}
}

func TestResolver_Scenarios(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	t.Run("exact name and email matches", func(t *testing.T) {
		sub := &models.Submission{
			ID:             "sub-1",
			TargetName:     "Dr. Adunni Olatunji",
			TargetEmail:    "adunni.olatunji@email.com",
			TargetFacility: "Lagos University Teaching Hospital",
			Category:       models.CategoryProfessional,
			Rating:         5,
		}

		result := resolver.Resolve(sub, directory())
		require.Equal(t, models.OutcomeMatched, result.Outcome)
		require.NotNil(t, result.Best)
		assert.Equal(t, "cand-adunni", result.Best.Candidate.ID)
		assert.GreaterOrEqual(t, result.Best.Confidence, 0.70)
		assert.InDelta(t, 0.85, result.Best.Confidence, 1e-9)
	})

	t.Run("name and email alone score 0.75 and need a lower threshold to match", func(t *testing.T) {
		sub := &models.Submission{
			ID:          "sub-1b",
			TargetName:  "Dr. Adunni Olatunji",
			TargetEmail: "adunni.olatunji@email.com",
			Category:    models.CategoryProfessional,
		}

		result := resolver.Resolve(sub, directory())
		assert.Equal(t, models.OutcomeManualReview, result.Outcome)
		assert.InDelta(t, 0.75, result.Candidates[0].Confidence, 1e-9)

		cfg := DefaultConfig()
		cfg.AutoMatchThreshold = 0.70
		result = NewResolver(cfg).Resolve(sub, directory())
		assert.Equal(t, models.OutcomeMatched, result.Outcome)
		assert.Equal(t, "cand-adunni", result.Best.Candidate.ID)
	})

	t.Run("wrong email leaves name only and goes to review", func(t *testing.T) {
		sub := &models.Submission{
			ID:          "sub-2",
			TargetName:  "Dr. Adunni Olatunji",
			TargetEmail: "wrong@email.com",
			Category:    models.CategoryGeneral,
			Rating:      5,
		}

		result := resolver.Resolve(sub, directory())
		assert.Equal(t, models.OutcomeManualReview, result.Outcome)
		assert.Nil(t, result.Best)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, "cand-adunni", result.Candidates[0].Candidate.ID)
		assert.InDelta(t, 0.40, result.Candidates[0].Confidence, 1e-9)
	})

	t.Run("abbreviated name without email finds nothing", func(t *testing.T) {
		sub := &models.Submission{ID: "sub-3", TargetName: "Dr. A. Olatunji", Category: models.CategoryGeneral}

		result := resolver.Resolve(sub, directory())
		assert.Equal(t, models.OutcomeUnmatched, result.Outcome)
		assert.Empty(t, result.Candidates)
	})

	t.Run("fuzzy only candidate stays below consideration", func(t *testing.T) {
		sub := &models.Submission{ID: "sub-3b", TargetName: "Aduni Olatunde-Bell", Category: models.CategoryGeneral}

		result := resolver.Resolve(sub, directory())
		assert.Equal(t, models.OutcomeUnmatched, result.Outcome)
	})

	t.Run("abbreviated name with another candidate above consideration goes to review", func(t *testing.T) {
		sub := &models.Submission{
			ID:          "sub-3c",
			TargetName:  "Dr. A. Olatunji",
			TargetEmail: "a.olatunji@clinic.ng",
			Category:    models.CategoryGeneral,
		}

		result := resolver.Resolve(sub, directory())
		assert.Equal(t, models.OutcomeManualReview, result.Outcome)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, "cand-clinic", result.Candidates[0].Candidate.ID)
		assert.InDelta(t, 0.30, result.Candidates[0].Confidence, 1e-9)
	})
}

func TestResolver_ClassificationBoundary(t *testing.T) {
	resolver := NewResolver(DefaultConfig())
	scored := func(confidence float64) []models.ScoredCandidate {
		return []models.ScoredCandidate{{Candidate: models.Candidate{ID: "c"}, Confidence: confidence}}
	}

	assert.Equal(t, models.OutcomeMatched, resolver.Classify("s", scored(0.80)).Outcome)
	assert.Equal(t, models.OutcomeManualReview, resolver.Classify("s", scored(0.79999)).Outcome)
	assert.Equal(t, models.OutcomeUnmatched, resolver.Classify("s", nil).Outcome)
}

func TestResolver_WeightSumsHitTheThresholdExactly(t *testing.T) {
	resolver := NewResolver(DefaultConfig())
	cand := adunni()
	// 0.40 name + 0.30 email + 0.10 facility
	sub := &models.Submission{
		ID:             "sub-sum",
		TargetName:     cand.Name,
		TargetEmail:    cand.Email,
		TargetFacility: cand.Affiliation,
		Category:       models.CategoryGeneral,
	}

	result := resolver.Resolve(sub, []models.Candidate{cand})
	assert.Equal(t, 0.80, result.Candidates[0].Confidence)
	assert.Equal(t, models.OutcomeMatched, result.Outcome)
}

func TestResolver_OrderingIsDeterministic(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	candidates := []models.Candidate{}
	for _, id := range []string{"g", "c", "a", "f", "b", "e", "d"} {
		candidates = append(candidates, models.Candidate{ID: id, Name: "Nurse Joy"})
	}
	candidates = append(candidates, models.Candidate{ID: "z", Name: "Nurse Joy", Email: "joy@ward.ng"})

	sub := &models.Submission{ID: "sub-tie", TargetName: "Nurse Joy", TargetEmail: "joy@ward.ng"}

	first := resolver.Resolve(sub, candidates)
	require.Equal(t, models.OutcomeManualReview, first.Outcome)
	require.Len(t, first.Candidates, 5)
	assert.Equal(t, "z", first.Candidates[0].Candidate.ID)
	ids := []string{}
	for _, c := range first.Candidates[1:] {
		ids = append(ids, c.Candidate.ID)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		shuffled := append([]models.Candidate(nil), candidates...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		assert.Equal(t, first, resolver.Resolve(sub, shuffled))
	}
}

func TestResolver_MalformedSubmission(t *testing.T) {
	resolver := NewResolver(DefaultConfig())

	result := resolver.Resolve(&models.Submission{ID: "empty"}, directory())
	assert.Equal(t, models.OutcomeUnmatched, result.Outcome)

	result = resolver.Resolve(&models.Submission{ID: "no-directory", TargetName: "Anyone"}, nil)
	assert.Equal(t, models.OutcomeUnmatched, result.Outcome)
}

func TestNewResolver_ZeroConsiderationKeepsEveryCandidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConsiderationThreshold = 0
	resolver := NewResolver(cfg)
	assert.Equal(t, cfg, resolver.Config())

	sub := &models.Submission{ID: "sub-z", TargetName: "Zainab Yusuf", Category: models.CategoryTutor}
	result := resolver.Resolve(sub, directory())
	assert.Equal(t, models.OutcomeManualReview, result.Outcome)
	assert.Len(t, result.Candidates, len(directory()))

	assert.Equal(t, models.OutcomeUnmatched, NewResolver(DefaultConfig()).Resolve(sub, directory()).Outcome)
}
