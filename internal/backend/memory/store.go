// Package memory is an in-process backend: documents and users live in maps and
// live queries are fed by a local bus. It backs self-contained runs without a
// database file and is the fake the component tests run against.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/backend/live"
	"flux/internal/pubsub"
	"flux/internal/snowflake"
)

type record struct {
	id      string
	encoded backend.Encoded
}

type Store struct {
	mutex       sync.RWMutex
	collections map[string]map[string]record

	ids  *snowflake.Generator
	now  func() time.Time
	live *live.Queries
}

func NewStore(ids *snowflake.Generator, sugar *zap.SugaredLogger) *Store {
	s := &Store{
		collections: make(map[string]map[string]record),
		ids:         ids,
		now:         time.Now,
	}
	s.live = live.New(pubsub.NewLocal(), s.query, sugar)
	return s
}

// SetClock replaces the clock used to resolve backend.ServerTimestamp.
func (s *Store) SetClock(now func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.now = now
}

func (s *Store) Subscribe(ctx context.Context, q backend.Query, onSnapshot func(backend.Snapshot)) (backend.Unsubscribe, error) {
	return s.live.Subscribe(ctx, q, onSnapshot)
}

func (s *Store) CreateDocument(ctx context.Context, collection string, data backend.Document) (string, error) {
	id, err := s.ids.GenerateString()
	if err != nil {
		return "", err
	}

	err = s.put(collection, id, data, false)
	if err != nil {
		return "", err
	}

	s.live.Changed(ctx, collection)
	return id, nil
}

func (s *Store) GetDocument(_ context.Context, collection, id string) (backend.DocumentSnapshot, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rec, exists := s.collections[collection][id]
	if !exists {
		return backend.DocumentSnapshot{}, backend.ErrNotFound
	}
	return backend.DocumentSnapshot{ID: rec.id, Data: rec.encoded.Data}, nil
}

func (s *Store) SetDocument(ctx context.Context, collection, id string, data backend.Document) error {
	err := s.put(collection, id, data, true)
	if err != nil {
		return err
	}

	s.live.Changed(ctx, collection)
	return nil
}

func (s *Store) put(collection, id string, data backend.Document, overwrite bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	encoded, err := backend.Encode(data, s.now())
	if err != nil {
		return err
	}

	docs, exists := s.collections[collection]
	if !exists {
		docs = make(map[string]record)
		s.collections[collection] = docs
	}
	if _, taken := docs[id]; taken && !overwrite {
		return backend.ErrDuplicateID
	}
	docs[id] = record{id: id, encoded: encoded}
	return nil
}

func (s *Store) query(_ context.Context, q backend.Query) (backend.Snapshot, error) {
	s.mutex.RLock()
	records := make([]record, 0, len(s.collections[q.Collection]))
	for _, rec := range s.collections[q.Collection] {
		records = append(records, rec)
	}
	s.mutex.RUnlock()

	// ties on createdAt fall back to the id, which grows with creation time
	slices.SortFunc(records, func(a, b record) int {
		c := cmp.Compare(a.encoded.Order, b.encoded.Order)
		if c == 0 {
			c = cmp.Or(cmp.Compare(len(a.id), len(b.id)), cmp.Compare(a.id, b.id))
		}
		if q.Descending {
			return -c
		}
		return c
	})

	if q.Limit > 0 && len(records) > q.Limit {
		records = records[:q.Limit]
	}

	snapshot := backend.Snapshot{Docs: make([]backend.DocumentSnapshot, len(records))}
	for i, rec := range records {
		snapshot.Docs[i] = backend.DocumentSnapshot{ID: rec.id, Data: rec.encoded.Data}
	}
	return snapshot, nil
}
