package profile

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/database"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

const table = "directory_profiles"

var columns = []string{"id", "name", "email", "category", "affiliation"}

// Repository reads registered profiles as match candidates
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

var _ store.Directory = (*Repository)(nil)

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

func (r *Repository) ListCandidates(ctx context.Context, category models.Category) ([]models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.ListCandidates")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	if category != "" {
		sb.Where(sb.Equal("category", category))
	}
	sb.OrderBy("id")

	query, args := sb.Build()
	candidates := make([]models.Candidate, 0)
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("category", category).Error("Failed to list candidates")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list candidates")
	}
	return candidates, nil
}

// GetCandidate returns nil when no profile has the id
func (r *Repository) GetCandidate(ctx context.Context, id string) (*models.Candidate, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.GetCandidate")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(table)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var cand models.Candidate
	if err := r.db.GetContext(ctx, &cand, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("candidate_id", id).Error("Failed to get candidate")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get candidate")
	}
	return &cand, nil
}

// Upsert writes profiles, replacing existing rows with the same id
func (r *Repository) Upsert(ctx context.Context, candidates ...models.Candidate) error {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Upsert")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(table)
	ib.Cols(columns...)
	for _, c := range candidates {
		ib.Values(c.ID, c.Name, c.Email, c.Category, c.Affiliation)
	}
	ib.OnConflictUpdate([]string{"id"}, "name", "email", "category", "affiliation")

	query, args := ib.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("count", len(candidates)).Error("Failed to upsert profiles")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert profiles")
	}
	return nil
}
