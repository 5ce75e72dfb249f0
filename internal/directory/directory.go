// Package directory is the channel list of a UI session: a live view of every
// channel, newest first, plus channel creation and the highlighted channel.
package directory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/models"
	"flux/internal/observability"
	"flux/internal/rabbitmq"
	"flux/internal/view"
)

const EmptyText = "No servers yet"

var ErrEmptyName = errors.New("channel name is empty")

type ChannelView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

type State struct {
	Channels []ChannelView `json:"channels"`
	Selected string        `json:"selected"`
	Loading  bool          `json:"loading"`
	// Empty is the placeholder shown when there are no channels.
	Empty string `json:"empty,omitempty"`
}

type Directory struct {
	store    backend.Store
	identity backend.Identity
	sink     view.Sink
	audit    *rabbitmq.Audit
	sugar    *zap.SugaredLogger
	now      func() time.Time

	mutex       sync.Mutex
	generation  uint64
	loading     bool
	channels    []models.Channel
	selected    string
	unsubscribe backend.Unsubscribe
}

func New(store backend.Store, identity backend.Identity, sink view.Sink, audit *rabbitmq.Audit, sugar *zap.SugaredLogger) *Directory {
	return &Directory{
		store:    store,
		identity: identity,
		sink:     sink,
		audit:    audit,
		sugar:    sugar,
		now:      time.Now,
	}
}

// Start opens the live channel list. Calling it again replaces the previous
// subscription.
func (d *Directory) Start(ctx context.Context) error {
	d.mutex.Lock()
	previous := d.unsubscribe
	d.unsubscribe = nil
	d.generation++
	generation := d.generation
	d.loading = true
	d.mutex.Unlock()

	if previous != nil {
		previous()
	}

	query := backend.Query{Collection: models.ChannelCollection, OrderBy: backend.OrderField, Descending: true}
	unsubscribe, err := d.store.Subscribe(ctx, query, func(snapshot backend.Snapshot) {
		d.onSnapshot(generation, snapshot)
	})
	if err != nil {
		d.sugar.Errorf("Couldn't subscribe to channels: %v", err)
		return err
	}

	d.mutex.Lock()
	if d.generation != generation {
		d.mutex.Unlock()
		unsubscribe()
		return nil
	}
	d.unsubscribe = unsubscribe
	d.mutex.Unlock()
	return nil
}

func (d *Directory) onSnapshot(generation uint64, snapshot backend.Snapshot) {
	channels := make([]models.Channel, 0, len(snapshot.Docs))
	for _, doc := range snapshot.Docs {
		var channel models.Channel
		if err := doc.DataTo(&channel); err != nil {
			d.sugar.Warnf("Skipping unreadable channel %s: %v", doc.ID, err)
			continue
		}
		channel.ID = doc.ID
		channels = append(channels, channel)
	}

	d.mutex.Lock()
	defer d.mutex.Unlock()
	if generation != d.generation {
		return
	}
	d.channels = channels
	d.loading = false
	d.emitLocked()
}

// Create adds a channel and selects it right away, without waiting for the live
// list to contain it.
func (d *Directory) Create(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	user, ok := d.identity.CurrentUser()
	if !ok {
		return "", backend.ErrUnauthenticated
	}

	// client clock, unlike messages which get the store's timestamp
	id, err := d.store.CreateDocument(ctx, models.ChannelCollection, backend.Document{
		"name":      name,
		"createdAt": d.now(),
		"createdBy": user.UID(),
	})
	if err != nil {
		observability.IncWriteFailure("create_channel")
		d.sugar.Errorf("Couldn't create channel %q: %v", name, err)
		return "", err
	}

	d.audit.Emit(ctx, rabbitmq.EventChannelCreated, user.UID(), map[string]any{"id": id, "name": name})
	d.Select(id)
	return id, nil
}

func (d *Directory) Select(id string) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.selected = id
	d.emitLocked()
}

func (d *Directory) Selected() string {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.selected
}

func (d *Directory) State() State {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.stateLocked()
}

// Close stops the live list and forgets the selection.
func (d *Directory) Close() {
	d.mutex.Lock()
	unsubscribe := d.unsubscribe
	d.unsubscribe = nil
	d.generation++
	d.channels = nil
	d.selected = ""
	d.loading = false
	d.mutex.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

func (d *Directory) stateLocked() State {
	state := State{
		Channels: make([]ChannelView, len(d.channels)),
		Selected: d.selected,
		Loading:  d.loading,
	}
	for i, channel := range d.channels {
		state.Channels[i] = ChannelView{ID: channel.ID, Name: channel.Name, Selected: channel.ID == d.selected}
	}
	if len(d.channels) == 0 && !d.loading {
		state.Empty = EmptyText
	}
	return state
}

func (d *Directory) emitLocked() {
	d.sink.Emit(view.TypeDirectory, d.stateLocked())
}
