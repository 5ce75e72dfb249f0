// Package hub keeps the websocket connection of every open tab and the UI
// session behind it.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/models"
	"flux/internal/observability"
	"flux/internal/rabbitmq"
	"flux/internal/shell"
	"flux/internal/view"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// maxMessageSize limits what a tab may send, it only ever sends pongs
	maxMessageSize = 512
	sendBuffer     = 256
)

// TypeSession is the first event on every connection, it carries the session
// id the tab sends with its actions.
const TypeSession = "session"

type Client struct {
	Session *shell.Session
	UserID  int64

	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	sugar  *zap.SugaredLogger
}

// Emit queues an event for the tab. A tab that can't keep up is disconnected.
func (c *Client) Emit(eventType string, data any) {
	message, err := json.Marshal(view.Event{Type: eventType, Data: data})
	if err != nil {
		c.sugar.Errorf("Couldn't encode %s event: %v", eventType, err)
		return
	}

	select {
	case <-c.ctx.Done():
	case c.send <- message:
	default:
		c.sugar.Warnf("Send buffer of session %s is full, disconnecting", c.Session.ID)
		c.cancel()
	}
}

type Hub struct {
	client backend.Client
	audit  *rabbitmq.Audit
	sugar  *zap.SugaredLogger

	upgrader websocket.Upgrader

	clientsMutex sync.RWMutex
	clients      map[string]*Client
}

func New(client backend.Client, audit *rabbitmq.Audit, sugar *zap.SugaredLogger) *Hub {
	return &Hub{
		client: client,
		audit:  audit,
		sugar:  sugar,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		clients: make(map[string]*Client),
	}
}

// HandleClient upgrades the request and serves the tab until it disconnects.
func (h *Hub) HandleClient(user models.User, w http.ResponseWriter, r *http.Request) {
	h.sugar.Debugf("Connecting user ID [%d] to WebSocket", user.ID)

	sessionID, err := uuid.NewV7()
	if err != nil {
		h.sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.sugar.Debug(err)
		return
	}
	defer conn.Close()

	clientCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := &Client{
		UserID: user.ID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    clientCtx,
		cancel: cancel,
		sugar:  h.sugar,
	}
	client.Session = shell.New(sessionID.String(), h.client, client, h.audit, h.sugar)

	h.setClient(client)
	observability.IncWSActive()
	defer func() {
		h.deleteClient(client.Session.ID)
		observability.DecWSActive()
		client.Session.Close()
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(client)
	}()

	client.Emit(TypeSession, map[string]string{"id": client.Session.ID})
	err = client.Session.SetUser(clientCtx, user)
	if err != nil {
		h.sugar.Errorf("Couldn't start session %s: %v", client.Session.ID, err)
	}
	client.Session.Refresh()

	h.readPump(client)
	cancel()
	<-writerDone
}

// readPump only keeps the connection alive, every action comes over http.
func (h *Hub) readPump(client *Client) {
	client.conn.SetReadLimit(maxMessageSize)
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, _, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.sugar.Debug(err)
			}
			return
		}
		if client.ctx.Err() != nil {
			return
		}
	}
}

func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-client.ctx.Done():
			_ = client.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			// unblocks the read loop
			_ = client.conn.Close()
			return
		case message := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := client.conn.WriteMessage(websocket.TextMessage, message)
			if err != nil {
				h.sugar.Debug(err)
				client.cancel()
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				client.cancel()
			}
		}
	}
}

func (h *Hub) setClient(client *Client) {
	h.sugar.Debugf("Adding user ID [%d] to clients as session ID [%s]", client.UserID, client.Session.ID)
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	h.clients[client.Session.ID] = client
}

func (h *Hub) deleteClient(sessionID string) {
	h.sugar.Debugf("Removing Session ID [%s] from clients", sessionID)
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	delete(h.clients, sessionID)
}

func (h *Hub) GetClient(sessionID string) (*Client, bool) {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	client, exists := h.clients[sessionID]
	return client, exists
}

// Disconnect closes the connection of a session, the tab's deferred cleanup
// closes the session itself.
func (h *Hub) Disconnect(sessionID string) {
	client, exists := h.GetClient(sessionID)
	if exists {
		client.cancel()
	}
}

// SignOutUser signs out and disconnects every tab of userID. It returns how
// many tabs were closed.
func (h *Hub) SignOutUser(userID int64) int {
	h.clientsMutex.RLock()
	var clients []*Client
	for _, client := range h.clients {
		if client.UserID == userID {
			clients = append(clients, client)
		}
	}
	h.clientsMutex.RUnlock()

	for _, client := range clients {
		client.Session.SignOut()
		client.cancel()
	}
	return len(clients)
}

func (h *Hub) Count() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}
