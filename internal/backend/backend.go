// Package backend is the contract between the UI session components and the data
// service behind them: documents with live queries, file uploads and auth sessions.
// Components only see these interfaces, so any service with the same semantics
// (create, point read, overwrite write, ordered limited live query, upload,
// session state) can be plugged in. memory and sqlstore are the two shipped ones.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flux/internal/models"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrDuplicateID      = errors.New("document id already taken")
	ErrUnsupportedQuery = errors.New("unsupported query")
	ErrUnauthenticated  = errors.New("not authenticated")
)

// OrderField is the only field live queries can be ordered by.
const OrderField = "createdAt"

type Query struct {
	Collection string
	OrderBy    string
	Descending bool
	// Limit <= 0 means no limit.
	Limit int
}

// Validate checks that a store can answer the query.
func (q Query) Validate() error {
	if q.Collection == "" {
		return fmt.Errorf("%w: empty collection", ErrUnsupportedQuery)
	}
	if q.OrderBy != "" && q.OrderBy != OrderField {
		return fmt.Errorf("%w: can only order by %s", ErrUnsupportedQuery, OrderField)
	}
	return nil
}

type DocumentSnapshot struct {
	ID   string
	Data json.RawMessage
}

// DataTo decodes the document fields into v.
func (d DocumentSnapshot) DataTo(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Snapshot is the full, authoritative result of a query at one point in time.
type Snapshot struct {
	Docs []DocumentSnapshot
}

// Unsubscribe stops a live query. It is safe to call more than once. Once it
// returns, the subscription's callback is not running and will not run again.
type Unsubscribe func()

type Store interface {
	// Subscribe delivers the initial snapshot and then a new full snapshot after
	// every change to the collection, until unsubscribed. Snapshots of one
	// subscription are delivered one at a time and never go back in time.
	Subscribe(ctx context.Context, q Query, onSnapshot func(Snapshot)) (Unsubscribe, error)
	CreateDocument(ctx context.Context, collection string, data Document) (string, error)
	GetDocument(ctx context.Context, collection, id string) (DocumentSnapshot, error)
	// SetDocument replaces the whole document, creating it if needed.
	SetDocument(ctx context.Context, collection, id string, data Document) error
}

type Files interface {
	// UploadFile stores data under key and returns a URL it can be fetched from.
	UploadFile(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Session struct {
	Token     string
	ID        string
	User      models.User
	Remember  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Auth interface {
	SignUp(ctx context.Context, email, password string) (models.User, error)
	SignIn(ctx context.Context, email, password string, remember bool) (Session, error)
	SignOut(ctx context.Context, token string) error
	// Verify resolves a session token to the signed in user.
	Verify(ctx context.Context, token string) (Session, error)
}

// Identity is the authenticated-user accessor of one UI session.
type Identity interface {
	CurrentUser() (models.User, bool)
}

// Client bundles the service operations. It is built once at startup and passed
// to everything that needs it.
type Client struct {
	Store
	Files
	Auth
}
