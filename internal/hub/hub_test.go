package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/backend/memory"
	"flux/internal/models"
	"flux/internal/shell"
	"flux/internal/snowflake"
	"flux/internal/view"
)

var ana = models.User{ID: 7, Email: "ana@example.com"}

func newHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	sugar := zap.NewNop().Sugar()
	ids, err := snowflake.New(4)
	require.NoError(t, err)

	h := New(backend.Client{Store: memory.NewStore(ids, sugar), Files: memory.NewFiles()}, nil, sugar)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.HandleClient(ana, w, r)
	}))
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) view.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var e struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&e))
	return view.Event{Type: e.Type, Data: e.Data}
}

func TestHandleClient(t *testing.T) {
	h, srv := newHub(t)
	conn := dial(t, srv)

	first := read(t, conn)
	require.Equal(t, TypeSession, first.Type)
	var session struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(first.Data.(json.RawMessage), &session))

	client, exists := h.GetClient(session.ID)
	require.True(t, exists)
	assert.Equal(t, ana.ID, client.UserID)
	assert.Equal(t, session.ID, client.Session.ID)

	seen := map[string]bool{}
	for !(seen[view.TypeView] && seen[view.TypeDirectory] && seen[view.TypePreferences]) {
		seen[read(t, conn).Type] = true
	}

	user, signedIn := client.Session.CurrentUser()
	assert.True(t, signedIn)
	assert.Equal(t, ana, user)

	second := dial(t, srv)
	assert.Equal(t, TypeSession, read(t, second).Type)
	assert.Eventually(t, func() bool { return h.Count() == 2 }, 5*time.Second, 10*time.Millisecond)

	h.Disconnect(session.ID)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
			break
		}
	}

	assert.Eventually(t, func() bool { return h.Count() == 1 }, 5*time.Second, 10*time.Millisecond)
	_, exists = h.GetClient(session.ID)
	assert.False(t, exists)

	// unknown sessions are ignored
	h.Disconnect("nope")
}

func TestClientClosedByPeer(t *testing.T) {
	h, srv := newHub(t)
	conn := dial(t, srv)
	read(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "")))
	conn.Close()

	assert.Eventually(t, func() bool { return h.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestEmitDisconnectsSlowClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &Client{
		Session: &shell.Session{ID: "slow"},
		send:    make(chan []byte, 1),
		ctx:     ctx,
		cancel:  cancel,
		sugar:   zap.NewNop().Sugar(),
	}

	client.Emit(view.TypeComposer, map[string]any{"text": "", "focus": true})
	require.Len(t, client.send, 1)
	assert.JSONEq(t, `{"type":"composer","data":{"text":"","focus":true}}`, string(<-client.send))
	assert.NoError(t, ctx.Err())

	client.Emit(view.TypeComposer, nil)
	client.Emit(view.TypeComposer, nil)
	assert.ErrorIs(t, ctx.Err(), context.Canceled)

	// nothing is queued once the client is gone
	client.Emit(view.TypeComposer, nil)
	assert.Len(t, client.send, 1)
}

func TestSignOutUserClosesEveryTab(t *testing.T) {
	h, srv := newHub(t)
	conns := []*websocket.Conn{dial(t, srv), dial(t, srv)}
	var sessions []*shell.Session
	for _, conn := range conns {
		first := read(t, conn)
		var session struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(first.Data.(json.RawMessage), &session))
		client, exists := h.GetClient(session.ID)
		require.True(t, exists)
		sessions = append(sessions, client.Session)

		// the session is signed in once its first view went out
		for read(t, conn).Type != view.TypeView {
		}
	}

	assert.Zero(t, h.SignOutUser(ana.ID+1))
	assert.Equal(t, 2, h.SignOutUser(ana.ID))

	for i, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err)
				break
			}
		}
		_, signedIn := sessions[i].CurrentUser()
		assert.False(t, signedIn)
	}
	assert.Eventually(t, func() bool { return h.Count() == 0 }, 5*time.Second, 10*time.Millisecond)
}
