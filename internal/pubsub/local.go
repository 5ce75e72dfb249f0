package pubsub

import (
	"context"
	"sync"
)

type listener struct {
	id uint64
	fn func()
}

// Local delivers notifications synchronously, on the publisher's goroutine.
type Local struct {
	mutex   sync.RWMutex
	hashMap map[string][]listener
	nextID  uint64
}

func NewLocal() *Local {
	return &Local{hashMap: make(map[string][]listener)}
}

func (ps *Local) Subscribe(topic string, fn func()) (func(), error) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	ps.nextID++
	id := ps.nextID
	ps.hashMap[topic] = append(ps.hashMap[topic], listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { ps.unsubscribe(topic, id) })
	}, nil
}

func (ps *Local) unsubscribe(topic string, id uint64) {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()

	listeners := ps.hashMap[topic]

	// this won't run in case topic doesn't exist since length will be 0
	for i := range listeners {
		if listeners[i].id == id {
			listeners[i] = listeners[len(listeners)-1]
			ps.hashMap[topic] = listeners[:len(listeners)-1]
			break
		}
	}

	// delete topic from map if nobody is subscribed to it
	if len(ps.hashMap[topic]) == 0 {
		delete(ps.hashMap, topic)
	}
}

func (ps *Local) Publish(_ context.Context, topic string) error {
	ps.mutex.RLock()
	listeners := make([]listener, len(ps.hashMap[topic]))
	copy(listeners, ps.hashMap[topic])
	ps.mutex.RUnlock()

	// called outside the lock, a listener may subscribe or unsubscribe
	for _, l := range listeners {
		l.fn()
	}
	return nil
}

// Topics reports how many topics have at least one listener.
func (ps *Local) Topics() int {
	ps.mutex.RLock()
	defer ps.mutex.RUnlock()
	return len(ps.hashMap)
}

func (ps *Local) Close() error {
	ps.mutex.Lock()
	defer ps.mutex.Unlock()
	clear(ps.hashMap)
	return nil
}
