package memory

import (
	"sync"

	"flux/internal/models"
)

// Identity is a settable backend.Identity.
type Identity struct {
	mutex    sync.RWMutex
	user     models.User
	signedIn bool
}

func SignedIn(user models.User) *Identity {
	return &Identity{user: user, signedIn: true}
}

func (i *Identity) CurrentUser() (models.User, bool) {
	i.mutex.RLock()
	defer i.mutex.RUnlock()
	return i.user, i.signedIn
}

func (i *Identity) Set(user models.User, signedIn bool) {
	i.mutex.Lock()
	defer i.mutex.Unlock()
	i.user = user
	i.signedIn = signedIn
}
