package submission

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/database"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

const table = "feedback_submissions"

var columns = []string{
	"id", "submitter_name", "submitter_email", "anonymous", "category", "target_name",
	"target_email", "target_facility", "rating", "body", "submitted_at", "provenance", "processed_at",
}

// Repository is the Postgres pending queue
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

var _ store.PendingQueue = (*Repository)(nil)

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger, now: time.Now}
}

// Enqueue inserts submissions, ignoring ids that already exist
func (r *Repository) Enqueue(ctx context.Context, submissions ...models.Submission) error {
	ctx, span := tracing.StartSpan(ctx, "submission.Repository.Enqueue")
	defer span.End()

	if len(submissions) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	for _, s := range submissions {
		ib.Values(s.ID, s.SubmitterName, s.SubmitterEmail, s.Anonymous, s.Category, s.TargetName,
			s.TargetEmail, s.TargetFacility, s.Rating, s.Body, s.SubmittedAt, s.Provenance, s.ProcessedAt)
	}
	ib.OnConflictDoNothing()

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(submissions)).Error("Failed to enqueue submissions")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue submissions")
	}
	return nil
}

// ListPending returns unprocessed submissions oldest first
func (r *Repository) ListPending(ctx context.Context, limit int) ([]models.Submission, error) {
	ctx, span := tracing.StartSpan(ctx, "submission.Repository.ListPending")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.IsNull("processed_at"))
	sb.OrderBy("submitted_at", "id")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	submissions := make([]models.Submission, 0)
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &submissions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list pending submissions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list pending submissions")
	}
	return submissions, nil
}

// MarkProcessed only touches rows that are still pending. A row some other transaction
// already marked yields store.ErrAlreadyProcessed so the caller's transaction rolls back.
func (r *Repository) MarkProcessed(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "submission.Repository.MarkProcessed")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(table)
	ub.Set(ub.Assign("processed_at", r.now().UTC()))
	ub.Where(ub.Equal("id", id), ub.IsNull("processed_at"))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("submission_id", id).Error("Failed to mark submission processed")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark submission processed")
	}

	n, err := result.RowsAffected()
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("submission_id", id).Error("Failed to read affected rows")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark submission processed")
	}
	if n == 0 {
		r.logger.WithContext(ctx).WithField("submission_id", id).Debug("Submission was already processed")
		return store.ErrAlreadyProcessed
	}
	return nil
}

func (r *Repository) IsProcessed(ctx context.Context, id string) (bool, error) {
	sub, err := r.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return sub != nil && sub.IsProcessed(), nil
}

// Get returns nil when no submission has the id
func (r *Repository) Get(ctx context.Context, id string) (*models.Submission, error) {
	ctx, span := tracing.StartSpan(ctx, "submission.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var sub models.Submission
	if err := database.Conn(ctx, r.db).GetContext(ctx, &sub, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("submission_id", id).Error("Failed to get submission")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get submission")
	}
	return &sub, nil
}
