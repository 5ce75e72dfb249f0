package memory

import (
	"context"
	"sync"

	"flux/internal/backend"
)

// Counting wraps a store and counts the calls made through it. Writes fail with
// FailWrites when it is set.
type Counting struct {
	backend.Store

	mutex        sync.Mutex
	subscribes   map[string]int
	unsubscribes map[string]int
	creates      []CreateCall
	sets         int
	FailWrites   error
}

type CreateCall struct {
	Collection string
	Data       backend.Document
}

func NewCounting(store backend.Store) *Counting {
	return &Counting{
		Store:        store,
		subscribes:   make(map[string]int),
		unsubscribes: make(map[string]int),
	}
}

func (c *Counting) Subscribe(ctx context.Context, q backend.Query, onSnapshot func(backend.Snapshot)) (backend.Unsubscribe, error) {
	unsubscribe, err := c.Store.Subscribe(ctx, q, onSnapshot)
	if err != nil {
		return nil, err
	}

	c.mutex.Lock()
	c.subscribes[q.Collection]++
	c.mutex.Unlock()

	return func() {
		c.mutex.Lock()
		c.unsubscribes[q.Collection]++
		c.mutex.Unlock()
		unsubscribe()
	}, nil
}

func (c *Counting) CreateDocument(ctx context.Context, collection string, data backend.Document) (string, error) {
	c.mutex.Lock()
	c.creates = append(c.creates, CreateCall{Collection: collection, Data: data})
	fail := c.FailWrites
	c.mutex.Unlock()

	if fail != nil {
		return "", fail
	}
	return c.Store.CreateDocument(ctx, collection, data)
}

func (c *Counting) SetDocument(ctx context.Context, collection, id string, data backend.Document) error {
	c.mutex.Lock()
	c.sets++
	fail := c.FailWrites
	c.mutex.Unlock()

	if fail != nil {
		return fail
	}
	return c.Store.SetDocument(ctx, collection, id, data)
}

func (c *Counting) Subscribes(collection string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.subscribes[collection]
}

// Unsubscribes counts calls of returned Unsubscribe functions, repeated calls
// included.
func (c *Counting) Unsubscribes(collection string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.unsubscribes[collection]
}

func (c *Counting) Creates() []CreateCall {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return append([]CreateCall(nil), c.creates...)
}

func (c *Counting) Sets() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.sets
}
