package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/store"
	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/tracing"
)

// Store keeps documents as JSON strings and lists as Redis lists. Each collection has a
// set of its keys so Keys never scans the keyspace.
type Store struct {
	client *Client
}

func NewStore(client *Client) *Store {
	return &Store{client: client}
}

var _ store.Store = (*Store)(nil)

func (s *Store) Get(ctx context.Context, collection, key string, dest any) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.Get")
	defer span.End()

	raw, err := s.client.rdb.Get(ctx, s.client.key("doc", collection, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, dest)
}

func (s *Store) Set(ctx context.Context, collection, key string, value any) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.Set")
	defer span.End()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.client.key("doc", collection, key), raw, 0)
		pipe.SAdd(ctx, s.client.key("keys", collection), key)
		return nil
	})
	return err
}

func (s *Store) Append(ctx context.Context, collection, key string, value any) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.Append")
	defer span.End()

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	_, err = s.client.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.client.key("list", collection, key), raw)
		pipe.SAdd(ctx, s.client.key("keys", collection), key)
		return nil
	})
	return err
}

func (s *Store) Items(ctx context.Context, collection, key string, dest any) error {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.Items")
	defer span.End()

	values, err := s.client.rdb.LRange(ctx, s.client.key("list", collection, key), 0, -1).Result()
	if err != nil {
		return err
	}

	items := make([]json.RawMessage, len(values))
	for i, v := range values {
		items[i] = json.RawMessage(v)
	}
	return store.DecodeItems(items, dest)
}

func (s *Store) Keys(ctx context.Context, collection, prefix string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "redis.Store.Keys")
	defer span.End()

	members, err := s.client.rdb.SMembers(ctx, s.client.key("keys", collection)).Result()
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		if strings.HasPrefix(m, prefix) {
			keys = append(keys, m)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
