package models

import "time"

// Category is the kind of entity a feedback submission is about
type Category string

const (
	CategoryProfessional Category = "professional"
	CategoryTutor        Category = "tutor"
	CategoryEmployer     Category = "employer"
	CategoryFacility     Category = "facility"
	CategoryGeneral      Category = "general"
)

// Categories lists every category in a stable order
var Categories = []Category{
	CategoryProfessional,
	CategoryTutor,
	CategoryEmployer,
	CategoryFacility,
	CategoryGeneral,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Submission is a feedback submission produced by intake. The engine never mutates it.
type Submission struct {
	ID             string     `json:"id" db:"id" validate:"required"`
	SubmitterName  string     `json:"submitter_name" db:"submitter_name"`
	SubmitterEmail string     `json:"submitter_email" db:"submitter_email" validate:"omitempty,email"`
	Anonymous      bool       `json:"anonymous" db:"anonymous"`
	Category       Category   `json:"category" db:"category" validate:"required,oneof=professional tutor employer facility general"`
	TargetName     string     `json:"target_name,omitempty" db:"target_name"`
	TargetEmail    string     `json:"target_email,omitempty" db:"target_email" validate:"omitempty,email"`
	TargetFacility string     `json:"target_facility,omitempty" db:"target_facility"`
	Rating         int        `json:"rating" db:"rating" validate:"required,min=1,max=5"`
	Body           string     `json:"body" db:"body"`
	SubmittedAt    time.Time  `json:"submitted_at" db:"submitted_at" validate:"required"`
	Provenance     string     `json:"provenance" db:"provenance"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// AnonymousDisplay is shown instead of the submitter's name for anonymous feedback
const AnonymousDisplay = "Anonymous"

// SubmitterDisplay is the name shown to the feedback's recipient
func (s *Submission) SubmitterDisplay() string {
	if s.Anonymous || s.SubmitterName == "" {
		return AnonymousDisplay
	}
	return s.SubmitterName
}

// IsProcessed reports whether the queue has already marked this submission
func (s *Submission) IsProcessed() bool {
	return s.ProcessedAt != nil
}
