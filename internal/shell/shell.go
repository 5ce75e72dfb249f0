// Package shell ties the parts of one UI session together: who is signed in,
// which page is shown and which channel is open.
package shell

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/directory"
	"flux/internal/models"
	"flux/internal/preferences"
	"flux/internal/rabbitmq"
	"flux/internal/stream"
	"flux/internal/view"
)

const (
	RouteHome     = "/"
	RouteSettings = "/settings"

	ScreenSignIn   = "signin"
	ScreenWelcome  = "welcome"
	ScreenChat     = "chat"
	ScreenSettings = "settings"

	WelcomeTitle = "Welcome to Flux!"
	WelcomeText  = "Select a server to start chatting"
)

// ResolveRoute maps a path to one of the two pages. Unknown paths resolve to
// the home page and report false so callers can redirect.
func ResolveRoute(path string) (string, bool) {
	switch path {
	case RouteHome, "":
		return RouteHome, path == RouteHome
	case RouteSettings, RouteSettings + "/":
		return RouteSettings, true
	}
	return RouteHome, false
}

type State struct {
	Route     string `json:"route"`
	Screen    string `json:"screen"`
	SignedIn  bool   `json:"signedIn"`
	UserName  string `json:"userName,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
	Title     string `json:"title,omitempty"`
	Text      string `json:"text,omitempty"`
}

type Session struct {
	ID string

	Directory   *directory.Directory
	Stream      *stream.Stream
	Preferences *preferences.Store

	sink  view.Sink
	audit *rabbitmq.Audit
	sugar *zap.SugaredLogger

	// lifecycle serializes sign in, sign out and channel switches
	lifecycle sync.Mutex
	mutex     sync.RWMutex
	user      models.User
	signedIn  bool
	route     string
}

func New(id string, client backend.Client, sink view.Sink, audit *rabbitmq.Audit, sugar *zap.SugaredLogger) *Session {
	s := &Session{
		ID:    id,
		sink:  sink,
		audit: audit,
		sugar: sugar.With("session", id),
		route: RouteHome,
	}
	s.Directory = directory.New(client.Store, s, sink, audit, s.sugar)
	s.Stream = stream.New(client.Store, s, sink, audit, s.sugar)
	s.Preferences = preferences.New(client.Store, client.Files, s, sink, audit, s.sugar)
	return s
}

func (s *Session) CurrentUser() (models.User, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.user, s.signedIn
}

// SetUser makes user the signed in user. When it differs from the previous one
// everything of the previous user is torn down and the channel list and the
// preferences are loaded again.
func (s *Session) SetUser(ctx context.Context, user models.User) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mutex.Lock()
	same := s.signedIn && s.user.ID == user.ID
	s.user = user
	s.signedIn = true
	s.mutex.Unlock()

	if same {
		s.emit()
		return nil
	}

	s.Stream.Close()
	s.Directory.Close()
	s.sugar.Debugf("User %d signed in", user.ID)

	err := s.Directory.Start(ctx)
	if err != nil {
		return err
	}

	// a failed load is shown in the settings panel, the shell keeps working
	_ = s.Preferences.Load(ctx)

	s.emit()
	return nil
}

// SignOut closes every live query of the session.
func (s *Session) SignOut() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mutex.Lock()
	s.user = models.User{}
	s.signedIn = false
	s.mutex.Unlock()

	s.Stream.Close()
	s.Directory.Close()
	s.Preferences.Reset()
	s.emit()
}

// Navigate switches the page and returns the route that is shown.
func (s *Session) Navigate(path string) string {
	route, known := ResolveRoute(path)
	if !known {
		s.sugar.Debugf("Unknown route %q, showing %s", path, route)
	}

	s.mutex.Lock()
	s.route = route
	s.mutex.Unlock()

	s.emit()
	return route
}

func (s *Session) SelectChannel(ctx context.Context, channelID string) error {
	if _, ok := s.CurrentUser(); !ok {
		return backend.ErrUnauthenticated
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.Directory.Select(channelID)
	err := s.Stream.Open(ctx, channelID)
	s.emit()
	return err
}

// CreateChannel creates a channel and opens it.
func (s *Session) CreateChannel(ctx context.Context, name string) (string, error) {
	id, err := s.Directory.Create(ctx, name)
	if err != nil {
		return "", err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	err = s.Stream.Open(ctx, id)
	s.emit()
	return id, err
}

func (s *Session) Send(ctx context.Context, text string) bool {
	return s.Stream.Send(ctx, text)
}

// Close ends the session when its tab goes away.
func (s *Session) Close() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.Stream.Close()
	s.Directory.Close()
	s.Stream.Wait()
}

func (s *Session) State() State {
	s.mutex.RLock()
	user, signedIn, route := s.user, s.signedIn, s.route
	s.mutex.RUnlock()

	state := State{Route: route, SignedIn: signedIn}
	if !signedIn {
		state.Screen = ScreenSignIn
		return state
	}
	state.UserName = user.DisplayName()

	if route == RouteSettings {
		state.Screen = ScreenSettings
		return state
	}

	state.ChannelID = s.Stream.ChannelID()
	if state.ChannelID == "" {
		state.Screen = ScreenWelcome
		state.Title = WelcomeTitle
		state.Text = WelcomeText
	} else {
		state.Screen = ScreenChat
	}
	return state
}

// Refresh sends the full state of every part, used when a tab (re)connects.
func (s *Session) Refresh() {
	s.sink.Emit(view.TypeDirectory, s.Directory.State())
	s.sink.Emit(view.TypeMessages, s.Stream.State())
	s.sink.Emit(view.TypePreferences, s.Preferences.State())
	s.emit()
}

func (s *Session) emit() {
	s.sink.Emit(view.TypeView, s.State())
}
