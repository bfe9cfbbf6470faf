package blob

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/darmiel/kartei/internal/core"
)

type object struct {
	data        []byte
	contentType string
}

type Memory struct {
	mu      sync.RWMutex
	objects map[string]object
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]object),
	}
}

func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	cpy := make([]byte, len(data))
	copy(cpy, data)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = object{data: cpy, contentType: contentType}
	return key, nil
}

func (m *Memory) Get(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[ref]
	if !ok {
		return nil, fmt.Errorf("blob '%s': %w", ref, core.ErrNotFound)
	}
	cpy := make([]byte, len(obj.data))
	copy(cpy, obj.data)
	return cpy, nil
}

// Delete is idempotent.
func (m *Memory) Delete(_ context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, ref)
	return nil
}

// Keys returns all stored references in sorted order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
