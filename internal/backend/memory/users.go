package memory

import (
	"context"
	"strings"
	"sync"

	"flux/internal/auth"
	"flux/internal/backend"
	"flux/internal/models"
)

type Users struct {
	mutex   sync.RWMutex
	byEmail map[string]auth.Credentials
	byID    map[int64]string
}

func NewUsers() *Users {
	return &Users{
		byEmail: make(map[string]auth.Credentials),
		byID:    make(map[int64]string),
	}
}

func (u *Users) Create(_ context.Context, user models.User, passwordHash []byte) error {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	email := strings.ToLower(user.Email)
	if _, taken := u.byEmail[email]; taken {
		return auth.ErrEmailTaken
	}
	u.byEmail[email] = auth.Credentials{User: user, PasswordHash: passwordHash}
	u.byID[user.ID] = email
	return nil
}

func (u *Users) FindByEmail(_ context.Context, email string) (auth.Credentials, error) {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	credentials, exists := u.byEmail[strings.ToLower(email)]
	if !exists {
		return auth.Credentials{}, backend.ErrNotFound
	}
	return credentials, nil
}

func (u *Users) Exists(_ context.Context, userID int64) (bool, error) {
	u.mutex.RLock()
	defer u.mutex.RUnlock()

	_, exists := u.byID[userID]
	return exists, nil
}

// Delete removes an account, signed in sessions stop verifying once the
// user-exists cache entry runs out.
func (u *Users) Delete(userID int64) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	delete(u.byEmail, u.byID[userID])
	delete(u.byID, userID)
}
