package store

import (
	"context"
	"sync"
)

// Memory is an in-process Store used by tests and as a fallback when no
// database path is available.
type Memory struct {
	mu       sync.RWMutex
	data     map[string]string
	watchers []chan Change
	closed   bool

	// FailWith, when non-nil, is returned by every operation. Tests use
	// it to exercise fail-open behavior.
	FailWith error
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(ctx context.Context, keys []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	out := make(map[string]string)
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) GetAll(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}

	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Set(ctx context.Context, values map[string]string) error {
	m.mu.Lock()
	if m.FailWith != nil {
		m.mu.Unlock()
		return m.FailWith
	}
	changes := make([]Change, 0, len(values))
	for k, v := range values {
		m.data[k] = v
		changes = append(changes, Change{Key: k, Value: v})
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

func (m *Memory) Remove(ctx context.Context, keys []string) error {
	m.mu.Lock()
	if m.FailWith != nil {
		m.mu.Unlock()
		return m.FailWith
	}
	var changes []Change
	for _, k := range keys {
		if _, ok := m.data[k]; ok {
			delete(m.data, k)
			changes = append(changes, Change{Key: k, Removed: true})
		}
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	if m.FailWith != nil {
		m.mu.Unlock()
		return m.FailWith
	}
	changes := make([]Change, 0, len(m.data))
	for k := range m.data {
		changes = append(changes, Change{Key: k, Removed: true})
	}
	m.data = make(map[string]string)
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

func (m *Memory) Watch() <-chan Change {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan Change, 16)
	if m.closed {
		close(ch)
		return ch
	}
	m.watchers = append(m.watchers, ch)
	return ch
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, ch := range m.watchers {
		close(ch)
	}
	m.watchers = nil
	return nil
}

func (m *Memory) notify(changes []Change) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range changes {
		for _, ch := range m.watchers {
			select {
			case ch <- c:
			default:
				// Listener is behind; drop rather than block writers.
			}
		}
	}
}
