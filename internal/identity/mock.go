package identity

import (
	"fmt"
	"sync"
)

// MockKeyring is an in-memory Keyring for tests.
type MockKeyring struct {
	mu    sync.RWMutex
	store map[string]map[string]string // service -> account -> secret
}

// NewMockKeyring creates an empty mock keyring.
func NewMockKeyring() *MockKeyring {
	return &MockKeyring{store: make(map[string]map[string]string)}
}

func (m *MockKeyring) Set(service, account, password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store[service] == nil {
		m.store[service] = make(map[string]string)
	}
	m.store[service][account] = password
	return nil
}

func (m *MockKeyring) Get(service, account string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if accounts, ok := m.store[service]; ok {
		if secret, ok := accounts[account]; ok {
			return secret, nil
		}
	}
	return "", ErrNoToken
}

func (m *MockKeyring) Delete(service, account string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if accounts, ok := m.store[service]; ok {
		if _, ok := accounts[account]; ok {
			delete(accounts, account)
			return nil
		}
	}
	return fmt.Errorf("no secret for %s/%s", service, account)
}

// MockProvider is a canned Provider for tests. Tokens are popped from
// Tokens in order; when exhausted, the last one repeats.
type MockProvider struct {
	mu          sync.Mutex
	Tokens      []string
	Err         error
	Invalidated int
}

func (m *MockProvider) Token() (string, Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return "", "", m.Err
	}
	if len(m.Tokens) == 0 {
		return "", "", ErrNoToken
	}
	token := m.Tokens[0]
	if len(m.Tokens) > 1 {
		m.Tokens = m.Tokens[1:]
	}
	return token, SourceKeyring, nil
}

func (m *MockProvider) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invalidated++
}

func (m *MockProvider) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tokens = []string{token}
	return nil
}

func (m *MockProvider) Forget() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tokens = nil
	return nil
}

var _ Provider = (*MockProvider)(nil)
