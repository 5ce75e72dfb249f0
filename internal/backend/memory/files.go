package memory

import (
	"context"
	"sync"
)

// Files keeps uploads in memory and hands out mem:// URLs.
type Files struct {
	mutex   sync.Mutex
	objects map[string][]byte
	keys    []string
	// FailAfter makes every upload after the first FailAfter ones fail with
	// FailWith, when FailWith is set.
	FailAfter int
	FailWith  error
}

func NewFiles() *Files {
	return &Files{objects: make(map[string][]byte)}
}

func (f *Files) UploadFile(_ context.Context, key, _ string, data []byte) (string, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	if f.FailWith != nil && len(f.keys) >= f.FailAfter {
		return "", f.FailWith
	}
	f.objects[key] = append([]byte(nil), data...)
	f.keys = append(f.keys, key)
	return "mem://" + key, nil
}

// Keys lists the uploaded keys in upload order.
func (f *Files) Keys() []string {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return append([]string(nil), f.keys...)
}
