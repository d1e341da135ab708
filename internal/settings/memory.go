package settings

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process KV used by tests and one-shot commands.
type MemoryStore struct {
	mu         sync.Mutex
	options    map[string]string
	transients map[string]memoryTransient
	now        func() time.Time
}

type memoryTransient struct {
	value     string
	expiresAt time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		options:    make(map[string]string),
		transients: make(map[string]memoryTransient),
		now:        time.Now,
	}
}

// SetClock overrides the time source used for transient expiry
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) GetOption(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.options[name]
	return v, ok, nil
}

func (m *MemoryStore) SetOption(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.options[name] = value
	return nil
}

func (m *MemoryStore) DeleteOption(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.options, name)
	return nil
}

func (m *MemoryStore) GetTransient(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transients[name]
	if !ok {
		return "", false, nil
	}
	if !t.expiresAt.IsZero() && !m.now().Before(t.expiresAt) {
		delete(m.transients, name)
		return "", false, nil
	}
	return t.value, true, nil
}

func (m *MemoryStore) SetTransient(_ context.Context, name, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := memoryTransient{value: value}
	if ttl > 0 {
		t.expiresAt = m.now().Add(ttl)
	}
	m.transients[name] = t
	return nil
}

func (m *MemoryStore) DeleteTransient(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.transients, name)
	return nil
}

func (m *MemoryStore) DeleteTransientsByPrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for name := range m.transients {
		if strings.HasPrefix(name, prefix) {
			delete(m.transients, name)
			n++
		}
	}
	return n, nil
}

// TransientCount returns the number of stored transients with the given prefix
func (m *MemoryStore) TransientCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for name := range m.transients {
		if strings.HasPrefix(name, prefix) {
			n++
		}
	}
	return n
}
