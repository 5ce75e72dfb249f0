// Package live turns a one-shot query function and a change bus into live
// queries. Every change notification re-runs the query and hands the full result
// to the subscriber; nothing is diffed or merged.
package live

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/observability"
	"flux/internal/pubsub"
)

// QueryFunc answers a query against the current state of a store.
type QueryFunc func(ctx context.Context, q backend.Query) (backend.Snapshot, error)

type Queries struct {
	bus   pubsub.Bus
	run   QueryFunc
	sugar *zap.SugaredLogger
}

func New(bus pubsub.Bus, run QueryFunc, sugar *zap.SugaredLogger) *Queries {
	return &Queries{bus: bus, run: run, sugar: sugar}
}

type subscription struct {
	ctx   context.Context
	query backend.Query
	run   QueryFunc
	fn    func(backend.Snapshot)
	sugar *zap.SugaredLogger

	// mutex serializes deliveries, each one queries while holding it so a
	// later snapshot is never older than an earlier one
	mutex  sync.Mutex
	closed bool
	cancel func()
	once   sync.Once
}

func (l *Queries) Subscribe(ctx context.Context, q backend.Query, fn func(backend.Snapshot)) (backend.Unsubscribe, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	sub := &subscription{
		// the subscription outlives the request that opened it
		ctx:   context.WithoutCancel(ctx),
		query: q,
		run:   l.run,
		fn:    fn,
		sugar: l.sugar,
	}

	cancel, err := l.bus.Subscribe(q.Collection, sub.deliver)
	if err != nil {
		return nil, err
	}
	sub.cancel = cancel
	observability.IncSubscriptions(q.Collection)
	l.sugar.Debugf("Live query opened on %s", q.Collection)

	sub.deliver()

	return sub.unsubscribe, nil
}

// Changed notifies the live queries on collection after a committed write.
func (l *Queries) Changed(ctx context.Context, collection string) {
	err := l.bus.Publish(ctx, collection)
	if err != nil {
		l.sugar.Errorf("Couldn't publish change of %s: %v", collection, err)
	}
}

func (s *subscription) deliver() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}

	snapshot, err := s.run(s.ctx, s.query)
	if err != nil {
		s.sugar.Errorf("Live query on %s failed: %v", s.query.Collection, err)
		return
	}

	observability.IncSnapshot(s.query.Collection)
	s.fn(snapshot)
}

func (s *subscription) unsubscribe() {
	s.once.Do(func() {
		s.cancel()

		// waits for a delivery in progress
		s.mutex.Lock()
		s.closed = true
		s.mutex.Unlock()

		observability.DecSubscriptions(s.query.Collection)
		s.sugar.Debugf("Live query closed on %s", s.query.Collection)
	})
}
