// Package sqlstore keeps documents and accounts in a sql database (sqlite, mysql
// or postgres). Live queries are driven by a pubsub.Bus: a local one for a single
// process, redis when several processes share the database.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"flux/internal/backend"
	"flux/internal/backend/live"
	"flux/internal/pubsub"
	"flux/internal/snowflake"
)

type documentRow struct {
	Collection string `db:"collection"`
	ID         string `db:"id"`
	CreatedAt  int64  `db:"created_at"`
	Data       string `db:"data"`
}

type Store struct {
	db   *sqlx.DB
	ids  *snowflake.Generator
	now  func() time.Time
	live *live.Queries
}

func NewStore(db *sqlx.DB, bus pubsub.Bus, ids *snowflake.Generator, sugar *zap.SugaredLogger) *Store {
	s := &Store{db: db, ids: ids, now: time.Now}
	s.live = live.New(bus, s.query, sugar)
	return s
}

func (s *Store) Subscribe(ctx context.Context, q backend.Query, onSnapshot func(backend.Snapshot)) (backend.Unsubscribe, error) {
	return s.live.Subscribe(ctx, q, onSnapshot)
}

func (s *Store) CreateDocument(ctx context.Context, collection string, data backend.Document) (string, error) {
	id, err := s.ids.GenerateString()
	if err != nil {
		return "", err
	}

	encoded, err := backend.Encode(data, s.now())
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO documents (collection, id, created_at, data) VALUES (?, ?, ?, ?)`),
		collection, id, encoded.Order, string(encoded.Data))
	if err != nil {
		return "", err
	}

	s.live.Changed(ctx, collection)
	return id, nil
}

func (s *Store) GetDocument(ctx context.Context, collection, id string) (backend.DocumentSnapshot, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(`SELECT collection, id, created_at, data FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return backend.DocumentSnapshot{}, backend.ErrNotFound
	} else if err != nil {
		return backend.DocumentSnapshot{}, err
	}
	return backend.DocumentSnapshot{ID: row.ID, Data: []byte(row.Data)}, nil
}

func (s *Store) SetDocument(ctx context.Context, collection, id string, data backend.Document) error {
	encoded, err := backend.Encode(data, s.now())
	if err != nil {
		return err
	}

	// delete and insert instead of an upsert, the syntax differs between drivers
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`DELETE FROM documents WHERE collection = ? AND id = ?`), collection, id)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO documents (collection, id, created_at, data) VALUES (?, ?, ?, ?)`),
		collection, id, encoded.Order, string(encoded.Data))
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return err
	}

	s.live.Changed(ctx, collection)
	return nil
}

func (s *Store) query(ctx context.Context, q backend.Query) (backend.Snapshot, error) {
	statement := `SELECT collection, id, created_at, data FROM documents WHERE collection = ?`
	// ids are snowflakes, same length ids compare in creation order
	if q.Descending {
		statement += ` ORDER BY created_at DESC, LENGTH(id) DESC, id DESC`
	} else {
		statement += ` ORDER BY created_at ASC, LENGTH(id) ASC, id ASC`
	}

	args := []any{q.Collection}
	if q.Limit > 0 {
		statement += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	var rows []documentRow
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(statement), args...)
	if err != nil {
		return backend.Snapshot{}, err
	}

	snapshot := backend.Snapshot{Docs: make([]backend.DocumentSnapshot, len(rows))}
	for i, row := range rows {
		snapshot.Docs[i] = backend.DocumentSnapshot{ID: row.ID, Data: []byte(row.Data)}
	}
	return snapshot, nil
}
