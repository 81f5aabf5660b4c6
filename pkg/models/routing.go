package models

import "time"

// FeedbackEntry is the denormalized copy of a submission written to an inbox or ledger
type FeedbackEntry struct {
	ID               string    `json:"id"`
	SubmissionID     string    `json:"submission_id"`
	SubmitterDisplay string    `json:"submitter_display"`
	Rating           int       `json:"rating"`
	Body             string    `json:"body"`
	DateReceived     time.Time `json:"date_received"`
	Provenance       string    `json:"provenance"`
	TargetID         string    `json:"target_id,omitempty"`
	TargetCategory   Category  `json:"target_category,omitempty"`
	Confidence       float64   `json:"confidence,omitempty"`
}

// NotificationTypeFeedbackReceived is the only notification type this engine emits
const NotificationTypeFeedbackReceived = "feedback_received"

// Notification tells a matched entity that feedback arrived
type Notification struct {
	ID        string    `json:"id"`
	TargetID  string    `json:"target_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// ReviewCandidate is the slice of a candidate shown to a reviewer
type ReviewCandidate struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
}

// ReviewEntry is a submission waiting for a human to pick its target
type ReviewEntry struct {
	ID                string            `json:"id"`
	SubmissionID      string            `json:"submission_id"`
	Submission        Submission        `json:"submission"`
	Candidates        []ReviewCandidate `json:"candidates"`
	FlaggedAt         time.Time         `json:"flagged_at"`
	NeedsManualReview bool              `json:"needs_manual_review"`
	Resolution        *ManualMatch      `json:"resolution,omitempty"`
}

// ManualMatch records an operator's decision for a review entry
type ManualMatch struct {
	SubmissionID   string    `json:"submission_id"`
	TargetID       string    `json:"target_id"`
	TargetCategory Category  `json:"target_category"`
	ResolvedBy     string    `json:"resolved_by,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at"`
}

// ManualMatchRequest is the admin payload for resolving a review entry
type ManualMatchRequest struct {
	TargetID       string   `json:"target_id" validate:"required"`
	TargetCategory Category `json:"target_category" validate:"required,oneof=professional tutor employer facility general"`
}

// LedgerEntry aggregates feedback about an entity that is not in the directory
type LedgerEntry struct {
	Key            string          `json:"key"`
	Name           string          `json:"name"`
	Category       Category        `json:"category"`
	Facility       string          `json:"facility,omitempty"`
	Constituents   []FeedbackEntry `json:"constituents"`
	AverageRating  float64         `json:"average_rating"`
	Count          int             `json:"count"`
	FirstSeenAt    time.Time       `json:"first_seen_at"`
	InvitationSent bool            `json:"invitation_sent"`
}

// RoutedRecord is what the dispatcher wrote for one submission
type RoutedRecord struct {
	SubmissionID string         `json:"submission_id"`
	Outcome      Outcome        `json:"outcome"`
	Inbox        *FeedbackEntry `json:"inbox,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	Review       *ReviewEntry   `json:"review,omitempty"`
	Ledger       *LedgerEntry   `json:"ledger,omitempty"`
}

// NewFeedbackEntry copies the parts of a submission a recipient may see
func NewFeedbackEntry(id string, sub *Submission) FeedbackEntry {
	return FeedbackEntry{
		ID:               id,
		SubmissionID:     sub.ID,
		SubmitterDisplay: sub.SubmitterDisplay(),
		Rating:           sub.Rating,
		Body:             sub.Body,
		DateReceived:     sub.SubmittedAt,
		Provenance:       sub.Provenance,
	}
}
