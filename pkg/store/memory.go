package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/drakesmith3/Skillfullhealth-Bolt-sub002/pkg/models"
)

// MemoryStore is a Store backed by maps. It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]map[string]json.RawMessage
	lists  map[string]map[string][]json.RawMessage
	writes int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:  make(map[string]map[string]json.RawMessage),
		lists: make(map[string]map[string][]json.RawMessage),
	}
}

func (s *MemoryStore) Get(_ context.Context, collection, key string, dest any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.docs[collection][key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (s *MemoryStore) Set(_ context.Context, collection, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string]json.RawMessage)
	}
	s.docs[collection][key] = raw
	s.writes++
	return nil
}

func (s *MemoryStore) Append(_ context.Context, collection, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lists[collection] == nil {
		s.lists[collection] = make(map[string][]json.RawMessage)
	}
	s.lists[collection][key] = append(s.lists[collection][key], raw)
	s.writes++
	return nil
}

func (s *MemoryStore) Items(_ context.Context, collection, key string, dest any) error {
	s.mu.RLock()
	items := s.lists[collection][key]
	s.mu.RUnlock()
	return DecodeItems(items, dest)
}

func (s *MemoryStore) Keys(_ context.Context, collection, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for key := range s.docs[collection] {
		if strings.HasPrefix(key, prefix) {
			seen[key] = struct{}{}
		}
	}
	for key := range s.lists[collection] {
		if strings.HasPrefix(key, prefix) {
			seen[key] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Writes returns how many Set and Append calls have succeeded.
func (s *MemoryStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// DecodeItems decodes JSON list items into dest, a pointer to a slice. No items leaves
// an empty, non-nil slice.
func DecodeItems(items []json.RawMessage, dest any) error {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, item := range items {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(item)
	}
	buf.WriteByte(']')
	return json.Unmarshal(buf.Bytes(), dest)
}

// MemoryQueue is a PendingQueue over a fixed set of submissions
type MemoryQueue struct {
	mu          sync.Mutex
	submissions []models.Submission
	processed   map[string]time.Time
	now         func() time.Time
}

func NewMemoryQueue(submissions ...models.Submission) *MemoryQueue {
	return &MemoryQueue{
		submissions: append([]models.Submission(nil), submissions...),
		processed:   make(map[string]time.Time),
		now:         time.Now,
	}
}

// Enqueue adds submissions as pending
func (q *MemoryQueue) Enqueue(submissions ...models.Submission) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submissions = append(q.submissions, submissions...)
}

func (q *MemoryQueue) ListPending(_ context.Context, limit int) ([]models.Submission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	pending := make([]models.Submission, 0)
	for _, sub := range q.submissions {
		if _, done := q.processed[sub.ID]; done {
			continue
		}
		pending = append(pending, sub)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

// MarkProcessed keeps the first timestamp of a submission marked twice
func (q *MemoryQueue) MarkProcessed(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, done := q.processed[id]; done {
		return ErrAlreadyProcessed
	}
	q.processed[id] = q.now().UTC()
	return nil
}

func (q *MemoryQueue) IsProcessed(_ context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, done := q.processed[id]
	return done, nil
}

func (q *MemoryQueue) Get(_ context.Context, id string) (*models.Submission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, sub := range q.submissions {
		if sub.ID != id {
			continue
		}
		if at, done := q.processed[id]; done {
			sub.ProcessedAt = &at
		}
		return &sub, nil
	}
	return nil, nil
}

// MemoryDirectory is a Directory over a fixed candidate list
type MemoryDirectory struct {
	candidates []models.Candidate
}

func NewMemoryDirectory(candidates ...models.Candidate) *MemoryDirectory {
	return &MemoryDirectory{candidates: append([]models.Candidate(nil), candidates...)}
}

func (d *MemoryDirectory) ListCandidates(_ context.Context, category models.Category) ([]models.Candidate, error) {
	out := make([]models.Candidate, 0, len(d.candidates))
	for _, c := range d.candidates {
		if category == "" || c.Category == category {
			out = append(out, c)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) GetCandidate(_ context.Context, id string) (*models.Candidate, error) {
	for _, c := range d.candidates {
		if c.ID == id {
			c := c
			return &c, nil
		}
	}
	return nil, nil
}
