package models

// Candidate is a registered directory entity a submission may refer to
type Candidate struct {
	ID          string   `json:"id" db:"id"`
	Name        string   `json:"name" db:"name"`
	Email       string   `json:"email" db:"email"`
	Category    Category `json:"category" db:"category"`
	Affiliation string   `json:"affiliation,omitempty" db:"affiliation"`
}

// ScoreBreakdown records what each signal contributed to a confidence
type ScoreBreakdown struct {
	ExactName   float64 `json:"exact_name"`
	FuzzyName   float64 `json:"fuzzy_name"`
	Email       float64 `json:"email"`
	Affiliation float64 `json:"affiliation"`
	Category    float64 `json:"category"`
}

// ScoredCandidate pairs a candidate with its confidence for one submission
type ScoredCandidate struct {
	Candidate  Candidate      `json:"candidate"`
	Confidence float64        `json:"confidence"`
	Breakdown  ScoreBreakdown `json:"breakdown"`
}

// Outcome is the terminal classification of a submission
type Outcome string

const (
	// OutcomeMatched routes to the top candidate's inbox
	OutcomeMatched Outcome = "matched"
	// OutcomeManualReview is unmatched with candidates worth a human look
	OutcomeManualReview Outcome = "manual_review"
	// OutcomeUnmatched is unmatched with no candidate above the consideration threshold
	OutcomeUnmatched Outcome = "unmatched"
)

// MatchResult is the resolver's ranked view of the directory for one submission
type MatchResult struct {
	SubmissionID string            `json:"submission_id"`
	Outcome      Outcome           `json:"outcome"`
	Candidates   []ScoredCandidate `json:"candidates"`
	Best         *ScoredCandidate  `json:"best,omitempty"`
}
