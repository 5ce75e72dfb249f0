package shell

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/backend/memory"
	"flux/internal/directory"
	"flux/internal/models"
	"flux/internal/snowflake"
	"flux/internal/stream"
	"flux/internal/view"
)

type fixture struct {
	store   *memory.Counting
	sink    *view.Recorder
	session *Session
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ids, err := snowflake.New(6)
	require.NoError(t, err)

	f := fixture{
		store: memory.NewCounting(memory.NewStore(ids, zap.NewNop().Sugar())),
		sink:  &view.Recorder{},
	}
	client := backend.Client{Store: f.store, Files: memory.NewFiles()}
	f.session = New("tab-1", client, f.sink, nil, zap.NewNop().Sugar())
	t.Cleanup(f.session.Close)
	return f
}

var ana = models.User{ID: 7, Email: "ana@example.com"}

func TestResolveRoute(t *testing.T) {
	tests := []struct {
		path  string
		route string
		known bool
	}{
		{path: "/", route: RouteHome, known: true},
		{path: "/settings", route: RouteSettings, known: true},
		{path: "/settings/", route: RouteSettings, known: true},
		{path: "/nope", route: RouteHome, known: false},
		{path: "/settings/extra", route: RouteHome, known: false},
		{path: "", route: RouteHome, known: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			route, known := ResolveRoute(tt.path)
			assert.Equal(t, tt.route, route)
			assert.Equal(t, tt.known, known)
		})
	}
}

func TestSignedOutShowsSignIn(t *testing.T) {
	f := newFixture(t)

	state := f.session.State()
	assert.False(t, state.SignedIn)
	assert.Equal(t, ScreenSignIn, state.Screen)
}

func TestWelcomeUntilChannelSelected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.SetUser(context.Background(), ana))

	state := f.session.State()
	assert.Equal(t, ScreenWelcome, state.Screen)
	assert.Equal(t, WelcomeTitle, state.Title)
	assert.Equal(t, WelcomeText, state.Text)
	assert.Equal(t, "ana", state.UserName)
}

func TestNavigate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.SetUser(context.Background(), ana))

	assert.Equal(t, RouteSettings, f.session.Navigate("/settings"))
	assert.Equal(t, ScreenSettings, f.session.State().Screen)

	assert.Equal(t, RouteHome, f.session.Navigate("/does-not-exist"))
	assert.Equal(t, ScreenWelcome, f.session.State().Screen)

	event, ok := f.sink.Last(view.TypeView)
	require.True(t, ok)
	assert.Equal(t, RouteHome, event.Data.(State).Route)
}

func TestCreateSelectSend(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.SetUser(ctx, ana))

	id, err := f.session.CreateChannel(ctx, "general")
	require.NoError(t, err)

	directoryEvent, ok := f.sink.Last(view.TypeDirectory)
	require.True(t, ok)
	channels := directoryEvent.Data.(directory.State).Channels
	require.NotEmpty(t, channels)
	assert.Equal(t, "general", channels[0].Name)
	assert.Equal(t, id, channels[0].ID)
	assert.True(t, channels[0].Selected)

	state := f.session.State()
	assert.Equal(t, ScreenChat, state.Screen)
	assert.Equal(t, id, state.ChannelID)

	require.True(t, f.session.Send(ctx, "hello"))
	f.session.Stream.Wait()

	messagesEvent, ok := f.sink.Last(view.TypeMessages)
	require.True(t, ok)
	messages := messagesEvent.Data.(stream.State)
	require.Len(t, messages.Messages, 1)
	assert.Equal(t, "hello", messages.Messages[0].Text)
	assert.True(t, messages.Messages[0].Own)
	assert.Equal(t, stream.ScrollEnd, messages.Scroll)
}

func TestSwitchChannels(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.SetUser(ctx, ana))

	require.NoError(t, f.session.SelectChannel(ctx, "a"))
	require.NoError(t, f.session.SelectChannel(ctx, "b"))

	assert.Equal(t, 1, f.store.Unsubscribes(models.MessageCollection("a")))
	assert.Equal(t, 1, f.store.Subscribes(models.MessageCollection("b")))
	assert.Equal(t, "b", f.session.Directory.Selected())
}

func TestSelectNeedsUser(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.session.SelectChannel(context.Background(), "a"), backend.ErrUnauthenticated)
	assert.Zero(t, f.store.Subscribes(models.MessageCollection("a")))
}

func TestSignOutClosesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.session.SetUser(ctx, ana))
	require.NoError(t, f.session.SelectChannel(ctx, "a"))

	f.session.SignOut()

	assert.Equal(t, f.store.Subscribes(models.ChannelCollection), f.store.Unsubscribes(models.ChannelCollection))
	assert.Equal(t, 1, f.store.Unsubscribes(models.MessageCollection("a")))
	assert.Equal(t, ScreenSignIn, f.session.State().Screen)

	_, signedIn := f.session.CurrentUser()
	assert.False(t, signedIn)
}

func TestSameUserKeepsSubscriptions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.SetUser(ctx, ana))
	require.NoError(t, f.session.SetUser(ctx, ana))

	assert.Equal(t, 1, f.store.Subscribes(models.ChannelCollection))
	assert.Zero(t, f.store.Unsubscribes(models.ChannelCollection))
}

func TestRefreshSendsEveryPart(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.SetUser(context.Background(), ana))

	before := len(f.sink.Events())
	f.session.Refresh()
	events := f.sink.Events()[before:]

	types := make([]string, len(events))
	for i, event := range events {
		types[i] = event.Type
	}
	assert.Equal(t, []string{view.TypeDirectory, view.TypeMessages, view.TypePreferences, view.TypeView}, types)
}
