package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"

	"flux/internal/auth"
	"flux/internal/backend"
	"flux/internal/models"
)

type userRow struct {
	ID       int64  `db:"id"`
	Email    string `db:"email"`
	Password string `db:"password"`
}

type Users struct {
	db *sqlx.DB
}

func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

func (u *Users) Create(ctx context.Context, user models.User, passwordHash []byte) error {
	email := strings.ToLower(user.Email)

	if u.emailExists(ctx, email) {
		return auth.ErrEmailTaken
	}

	_, err := u.db.ExecContext(ctx, u.db.Rebind(`INSERT INTO users (id, email, password) VALUES (?, ?, ?)`), user.ID, email, string(passwordHash))
	if err != nil {
		// lost a race against another registration of the same email
		if u.emailExists(ctx, email) {
			return auth.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (u *Users) emailExists(ctx context.Context, email string) bool {
	var taken bool
	err := u.db.GetContext(ctx, &taken, u.db.Rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE email = ?)`), email)
	return err == nil && taken
}

func (u *Users) FindByEmail(ctx context.Context, email string) (auth.Credentials, error) {
	var row userRow
	err := u.db.GetContext(ctx, &row, u.db.Rebind(`SELECT id, email, password FROM users WHERE email = ?`), strings.ToLower(email))
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Credentials{}, backend.ErrNotFound
	} else if err != nil {
		return auth.Credentials{}, err
	}

	return auth.Credentials{
		User:         models.User{ID: row.ID, Email: row.Email},
		PasswordHash: []byte(row.Password),
	}, nil
}

func (u *Users) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := u.db.GetContext(ctx, &exists, u.db.Rebind(`SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`), userID)
	return exists, err
}
