// Package stream is the open channel of a UI session: a live window over the
// channel's newest messages shown oldest first, and the composer that sends new
// ones.
package stream

import (
	"context"
	"slices"
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

const (
	// WindowSize is how many of the newest messages are kept live.
	WindowSize = 50
	EmptyText  = "No messages yet. Start the conversation!"
	TimeFormat = "3:04 PM"
	ScrollEnd  = "bottom"
)

type MessageView struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	UserName string `json:"userName"`
	Time     string `json:"time"`
	Own      bool   `json:"own"`
}

type State struct {
	ChannelID string        `json:"channelId"`
	Loading   bool          `json:"loading"`
	Messages  []MessageView `json:"messages"`
	Empty     string        `json:"empty,omitempty"`
	// Scroll tells the renderer where to scroll once the list is replaced.
	Scroll string `json:"scroll"`
}

type Composer struct {
	Text  string `json:"text"`
	Focus bool   `json:"focus"`
}

type Stream struct {
	store    backend.Store
	identity backend.Identity
	sink     view.Sink
	audit    *rabbitmq.Audit
	sugar    *zap.SugaredLogger

	// switchMutex serializes Open and Close, mutex guards the state below
	switchMutex sync.Mutex
	mutex       sync.Mutex
	generation  uint64
	channelID   string
	loading     bool
	messages    []models.Message
	unsubscribe backend.Unsubscribe

	sends sync.WaitGroup
}

func New(store backend.Store, identity backend.Identity, sink view.Sink, audit *rabbitmq.Audit, sugar *zap.SugaredLogger) *Stream {
	return &Stream{
		store:    store,
		identity: identity,
		sink:     sink,
		audit:    audit,
		sugar:    sugar,
	}
}

// Open shows channelID. The previous channel's live query is closed before the
// new one is opened, and any of its snapshots still in flight are dropped.
func (s *Stream) Open(ctx context.Context, channelID string) error {
	s.switchMutex.Lock()
	defer s.switchMutex.Unlock()

	s.mutex.Lock()
	if s.channelID == channelID && s.unsubscribe != nil {
		s.mutex.Unlock()
		return nil
	}
	previous := s.unsubscribe
	s.unsubscribe = nil
	s.generation++
	generation := s.generation
	s.channelID = channelID
	s.messages = nil
	s.loading = true
	s.emitLocked()
	s.mutex.Unlock()

	if previous != nil {
		previous()
	}

	query := backend.Query{
		Collection: models.MessageCollection(channelID),
		OrderBy:    backend.OrderField,
		Descending: true,
		Limit:      WindowSize,
	}
	unsubscribe, err := s.store.Subscribe(ctx, query, func(snapshot backend.Snapshot) {
		s.onSnapshot(generation, snapshot)
	})
	if err != nil {
		s.sugar.Errorf("Couldn't subscribe to messages of channel %s: %v", channelID, err)
		return err
	}

	s.mutex.Lock()
	s.unsubscribe = unsubscribe
	s.mutex.Unlock()
	return nil
}

func (s *Stream) onSnapshot(generation uint64, snapshot backend.Snapshot) {
	messages := make([]models.Message, 0, len(snapshot.Docs))
	for _, doc := range snapshot.Docs {
		var message models.Message
		if err := doc.DataTo(&message); err != nil {
			s.sugar.Warnf("Skipping unreadable message %s: %v", doc.ID, err)
			continue
		}
		message.ID = doc.ID
		messages = append(messages, message)
	}
	// the query is newest first, the list is shown oldest first
	slices.Reverse(messages)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	if generation != s.generation {
		return
	}
	s.messages = messages
	s.loading = false
	s.emitLocked()
}

// Close stops the live query of the open channel.
func (s *Stream) Close() {
	s.switchMutex.Lock()
	defer s.switchMutex.Unlock()

	s.mutex.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.generation++
	s.channelID = ""
	s.messages = nil
	s.loading = false
	s.mutex.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Send posts text to the open channel without waiting for the write. It reports
// whether a write was issued. The message shows up with the next snapshot.
func (s *Stream) Send(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	user, ok := s.identity.CurrentUser()
	if !ok {
		return false
	}

	s.mutex.Lock()
	channelID := s.channelID
	s.mutex.Unlock()
	if channelID == "" {
		return false
	}

	message := backend.Document{
		"text":      text,
		"userId":    user.UID(),
		"userName":  user.DisplayName(),
		"createdAt": backend.ServerTimestamp,
	}

	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		ctx := context.WithoutCancel(ctx)

		id, err := s.store.CreateDocument(ctx, models.MessageCollection(channelID), message)
		if err != nil {
			observability.IncWriteFailure("send_message")
			s.sugar.Errorf("Couldn't send message to channel %s: %v", channelID, err)
			return
		}
		s.audit.Emit(ctx, rabbitmq.EventMessageSent, user.UID(), map[string]any{"channelId": channelID, "id": id})
	}()

	s.sink.Emit(view.TypeComposer, Composer{Text: "", Focus: true})
	return true
}

// Wait blocks until every issued send has finished.
func (s *Stream) Wait() {
	s.sends.Wait()
}

func (s *Stream) ChannelID() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.channelID
}

func (s *Stream) State() State {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.stateLocked()
}

func (s *Stream) stateLocked() State {
	user, signedIn := s.identity.CurrentUser()

	state := State{
		ChannelID: s.channelID,
		Loading:   s.loading,
		Messages:  make([]MessageView, len(s.messages)),
		Scroll:    ScrollEnd,
	}
	for i, message := range s.messages {
		state.Messages[i] = MessageView{
			ID:       message.ID,
			Text:     message.Text,
			UserName: message.UserName,
			Time:     FormatTime(message.CreatedAt),
			Own:      signedIn && message.UserID == user.UID(),
		}
	}
	if len(s.messages) == 0 && !s.loading {
		state.Empty = EmptyText
	}
	return state
}

func (s *Stream) emitLocked() {
	s.sink.Emit(view.TypeMessages, s.stateLocked())
}

// FormatTime renders a message time, empty while the store hasn't stamped it.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(TimeFormat)
}
