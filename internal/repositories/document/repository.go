package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/database"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

const (
	documentsTable = "routing_documents"
	itemsTable     = "routing_document_items"
)

// Repository stores JSON documents and append-only item lists in Postgres
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	now    func() time.Time
}

var _ store.Store = (*Repository)(nil)

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{db: db, logger: logger, now: time.Now}
}

func (r *Repository) Get(ctx context.Context, collection, key string, dest any) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("value")
	sb.From(documentsTable)
	sb.Where(sb.Equal("collection", collection), sb.Equal("key", key))

	query, args := sb.Build()
	var raw []byte
	if err := database.Conn(ctx, r.db).GetContext(ctx, &raw, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		r.log(ctx, collection, key).WithError(err).Error("Failed to get document")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get document")
	}
	return true, json.Unmarshal(raw, dest)
}

func (r *Repository) Set(ctx context.Context, collection, key string, value any) error {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Set")
	defer span.End()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(documentsTable)
	ib.Cols("collection", "key", "value", "updated_at")
	ib.Values(collection, key, string(raw), r.now().UTC())
	ib.OnConflictUpdate([]string{"collection", "key"}, "value", "updated_at")

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.log(ctx, collection, key).WithError(err).Error("Failed to set document")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set document")
	}
	return nil
}

func (r *Repository) Append(ctx context.Context, collection, key string, value any) error {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Append")
	defer span.End()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(itemsTable)
	ib.Cols("collection", "key", "value", "created_at")
	ib.Values(collection, key, string(raw), r.now().UTC())

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.log(ctx, collection, key).WithError(err).Error("Failed to append item")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append item")
	}
	return nil
}

func (r *Repository) Items(ctx context.Context, collection, key string, dest any) error {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Items")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("value")
	sb.From(itemsTable)
	sb.Where(sb.Equal("collection", collection), sb.Equal("key", key))
	sb.OrderBy("id")

	query, args := sb.Build()
	var rows [][]byte
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.log(ctx, collection, key).WithError(err).Error("Failed to list items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list items")
	}

	items := make([]json.RawMessage, len(rows))
	for i, row := range rows {
		items[i] = row
	}
	return store.DecodeItems(items, dest)
}

func (r *Repository) Keys(ctx context.Context, collection, prefix string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "document.Repository.Keys")
	defer span.End()

	query, args := r.keysQuery(collection, prefix)
	keys := make([]string, 0)
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &keys, query, args...); err != nil {
		r.log(ctx, collection, prefix).WithError(err).Error("Failed to list keys")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list keys")
	}
	return keys, nil
}

// keysQuery unions document and list keys. starts_with avoids escaping LIKE wildcards in prefix.
func (r *Repository) keysQuery(collection, prefix string) (string, []any) {
	query := `
		SELECT key FROM (
			SELECT key FROM ` + documentsTable + ` WHERE collection = $1 AND starts_with(key, $2)
			UNION
			SELECT DISTINCT key FROM ` + itemsTable + ` WHERE collection = $1 AND starts_with(key, $2)
		) k
		ORDER BY key`
	return query, []any{collection, prefix}
}

func (r *Repository) log(ctx context.Context, collection, key string) ectologger.Logger {
	return r.logger.WithContext(ctx).WithFields(map[string]any{
		"collection": collection,
		"key":        key,
	})
}
