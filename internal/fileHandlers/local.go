package fileHandlers

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
)

var ErrBadKey = errors.New("invalid file key")

// Local writes uploads below a directory that is served back under urlPrefix.
type Local struct {
	dir       string
	urlPrefix string
	mutex     sync.Mutex
}

func NewLocal(dir, urlPrefix string) *Local {
	return &Local{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

// cleanKey rejects keys that would land outside of the upload directory.
func cleanKey(key string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", ErrBadKey
	}
	return cleaned, nil
}

func (l *Local) UploadFile(_ context.Context, key, _ string, data []byte) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	fullPath := filepath.Join(l.dir, filepath.FromSlash(cleaned))

	l.mutex.Lock()
	defer l.mutex.Unlock()

	// make folders if they don't exist yet
	err = os.MkdirAll(filepath.Dir(fullPath), os.ModePerm)
	if err != nil {
		return "", err
	}

	err = os.WriteFile(fullPath, data, 0644)
	if err != nil {
		return "", err
	}

	return l.urlPrefix + "/" + cleaned, nil
}
