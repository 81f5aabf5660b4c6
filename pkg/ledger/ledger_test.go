package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func submission(id, name string, category models.Category, rating int, at time.Time) *models.Submission {
	return &models.Submission{
		ID:          id,
		Category:    category,
		TargetName:  name,
		Rating:      rating,
		Body:        "feedback " + id,
		SubmittedAt: at,
		Provenance:  "general_feedback_form",
	}
}

func TestFoldEntry(t *testing.T) {
	t.Run("creates an entry", func(t *testing.T) {
		sub := submission("s1", "  Nurse Unknown ", models.CategoryProfessional, 4, t0)
		sub.TargetFacility = "Ikeja General"

		entry := FoldEntry(nil, sub)
		assert.Equal(t, "professional:nurse unknown", entry.Key)
		assert.Equal(t, "Nurse Unknown", entry.Name)
		assert.Equal(t, "Ikeja General", entry.Facility)
		assert.Equal(t, 1, entry.Count)
		assert.Equal(t, 4.0, entry.AverageRating)
		assert.Equal(t, t0, entry.FirstSeenAt)
		assert.False(t, entry.InvitationSent)
		require.Len(t, entry.Constituents, 1)
		assert.Equal(t, "s1", entry.Constituents[0].SubmissionID)
		assert.Equal(t, models.AnonymousDisplay, entry.Constituents[0].SubmitterDisplay)
	})

	t.Run("averages ratings", func(t *testing.T) {
		var entry *models.LedgerEntry
		for i, rating := range []int{5, 3, 4} {
			next := FoldEntry(entry, submission(string(rune('a'+i)), "Tutor X", models.CategoryTutor, rating, t0.Add(time.Duration(i)*time.Hour)))
			entry = &next
		}
		assert.Equal(t, 4.0, entry.AverageRating)
		assert.Equal(t, 3, entry.Count)
		assert.Len(t, entry.Constituents, 3)
		assert.Equal(t, t0, entry.FirstSeenAt)
	})

	t.Run("rounds to one decimal", func(t *testing.T) {
		var entry *models.LedgerEntry
		for i, rating := range []int{5, 4, 4} {
			next := FoldEntry(entry, submission(string(rune('a'+i)), "Tutor X", models.CategoryTutor, rating, t0))
			entry = &next
		}
		assert.Equal(t, 4.3, entry.AverageRating)
	})

	t.Run("does not mutate the input", func(t *testing.T) {
		first := FoldEntry(nil, submission("s1", "Tutor X", models.CategoryTutor, 5, t0))
		second := FoldEntry(&first, submission("s2", "tutor x", models.CategoryTutor, 1, t0))
		assert.Len(t, first.Constituents, 1)
		assert.Len(t, second.Constituents, 2)
		assert.Equal(t, 3.0, second.AverageRating)
	})

	t.Run("same submission folds once", func(t *testing.T) {
		sub := submission("s1", "Tutor X", models.CategoryTutor, 5, t0)
		first := FoldEntry(nil, sub)
		again := FoldEntry(&first, sub)
		assert.Equal(t, first, again)
	})

	t.Run("fills a missing facility", func(t *testing.T) {
		first := FoldEntry(nil, submission("s1", "Tutor X", models.CategoryTutor, 5, t0))
		sub := submission("s2", "Tutor X", models.CategoryTutor, 5, t0)
		sub.TargetFacility = "Yaba College"
		second := FoldEntry(&first, sub)
		assert.Equal(t, "Yaba College", second.Facility)
	})
}

func TestLedger_Fold(t *testing.T) {
	ctx := context.Background()

	t.Run("nurse unknown accumulates", func(t *testing.T) {
		l := New(store.NewMemoryStore(), testLogger())

		entry, err := l.Fold(ctx, submission("s1", "Nurse Unknown", models.CategoryProfessional, 4, t0))
		require.NoError(t, err)
		assert.Equal(t, 1, entry.Count)
		assert.Equal(t, 4.0, entry.AverageRating)

		entry, err = l.Fold(ctx, submission("s2", "NURSE UNKNOWN", models.CategoryProfessional, 2, t0.Add(time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, 2, entry.Count)
		assert.Equal(t, 3.0, entry.AverageRating)
		assert.Equal(t, t0, entry.FirstSeenAt)

		stored, err := l.Get(ctx, "professional:nurse unknown")
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, 2, stored.Count)
	})

	t.Run("categories never merge", func(t *testing.T) {
		l := New(store.NewMemoryStore(), testLogger())

		_, err := l.Fold(ctx, submission("s1", "Grace", models.CategoryTutor, 5, t0))
		require.NoError(t, err)
		_, err = l.Fold(ctx, submission("s2", "Grace", models.CategoryFacility, 1, t0))
		require.NoError(t, err)

		tutors, err := l.ListByCategory(ctx, models.CategoryTutor)
		require.NoError(t, err)
		require.Len(t, tutors, 1)
		assert.Equal(t, 5.0, tutors[0].AverageRating)

		all, err := l.ListByCategory(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "facility:grace", all[0].Key)
		assert.Equal(t, "tutor:grace", all[1].Key)
	})

	t.Run("blank name", func(t *testing.T) {
		s := store.NewMemoryStore()
		l := New(s, testLogger())
		_, err := l.Fold(ctx, submission("s1", "   ", models.CategoryTutor, 5, t0))
		assert.ErrorIs(t, err, ErrNoTargetName)
		assert.Zero(t, s.Writes())
	})

	t.Run("store failure", func(t *testing.T) {
		l := New(&failingStore{Store: store.NewMemoryStore()}, testLogger())
		_, err := l.Fold(ctx, submission("s1", "Grace", models.CategoryTutor, 5, t0))
		require.Error(t, err)
		assert.Equal(t, 500, httperror.GetStatusCode(err))
	})
}

func TestLedger_MarkInvitationSent(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemoryStore(), testLogger())

	_, err := l.MarkInvitationSent(ctx, "tutor:nobody")
	require.Error(t, err)
	assert.Equal(t, 404, httperror.GetStatusCode(err))

	_, err = l.Fold(ctx, submission("s1", "Grace", models.CategoryTutor, 5, t0))
	require.NoError(t, err)

	entry, err := l.MarkInvitationSent(ctx, "tutor:grace")
	require.NoError(t, err)
	assert.True(t, entry.InvitationSent)

	entry, err = l.Fold(ctx, submission("s2", "Grace", models.CategoryTutor, 3, t0))
	require.NoError(t, err)
	assert.True(t, entry.InvitationSent, "later feedback keeps the flag")
	assert.Equal(t, 4.0, entry.AverageRating)
}

type failingStore struct {
	store.Store
}

func (f *failingStore) Set(context.Context, string, string, any) error {
	return errors.New("disk full")
}
