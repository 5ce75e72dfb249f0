// Package view holds the events a UI session pushes to its browser tab. Every
// event carries the full state of one part of the page, the browser replaces what
// it shows instead of patching it.
package view

import "sync"

const (
	TypeDirectory   = "directory"
	TypeMessages    = "messages"
	TypeComposer    = "composer"
	TypePreferences = "preferences"
	TypeView        = "view"
	TypeError       = "error"
)

// Sink receives view events. Emit must not block and must not call back into the
// component emitting.
type Sink interface {
	Emit(eventType string, data any)
}

type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type Discard struct{}

func (Discard) Emit(string, any) {}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mutex  sync.Mutex
	events []Event
}

func (r *Recorder) Emit(eventType string, data any) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.events = append(r.events, Event{Type: eventType, Data: data})
}

func (r *Recorder) Events() []Event {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]Event(nil), r.events...)
}

// Last returns the newest event of the given type.
func (r *Recorder) Last(eventType string) (Event, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i], true
		}
	}
	return Event{}, false
}

func (r *Recorder) Count(eventType string) int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Type == eventType {
			count++
		}
	}
	return count
}
