// Package identity stores and retrieves the Google OAuth token using
// the OS keyring, with an environment variable fallback.
package identity

import (
	"errors"
	"os"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// Service is the keyring service name.
	Service = "upnext"

	// Account is the keyring account under which the token is stored.
	Account = "google-oauth"

	// EnvToken overrides the keyring when set.
	EnvToken = "UPNEXT_GOOGLE_TOKEN"
)

// ErrNoToken means no token is available from any source.
var ErrNoToken = errors.New("identity: no token available")

// Source indicates where a token was retrieved from.
type Source string

const (
	SourceKeyring     Source = "keyring"
	SourceEnvironment Source = "environment"
)

// Keyring is the subset of keyring operations the provider needs.
type Keyring interface {
	Set(service, account, password string) error
	Get(service, account string) (string, error)
	Delete(service, account string) error
}

// systemKeyring adapts the OS keyring to the Keyring interface.
type systemKeyring struct{}

func (systemKeyring) Set(service, account, password string) error {
	return keyring.Set(service, account, password)
}

func (systemKeyring) Get(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoToken
	}
	return secret, err
}

func (systemKeyring) Delete(service, account string) error {
	err := keyring.Delete(service, account)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Provider hands out the current token and reacts to rejection.
type Provider interface {
	// Token returns the current token. Blocking prompts are never
	// issued; callers in background contexts rely on this.
	Token() (string, Source, error)

	// Invalidate discards any cached token copy so the next Token call
	// re-reads the underlying sources.
	Invalidate()

	// Save stores a new token in the keyring.
	Save(token string) error

	// Forget removes the stored token entirely.
	Forget() error
}

// KeyringProvider reads the token from the keyring first, then from
// the environment. A read token is held in memory until invalidated.
type KeyringProvider struct {
	ring Keyring

	mu     sync.Mutex
	cached string
	source Source
}

// NewProvider creates a provider over the OS keyring.
func NewProvider() *KeyringProvider {
	return &KeyringProvider{ring: systemKeyring{}}
}

// NewProviderWithKeyring creates a provider over ring (used by tests).
func NewProviderWithKeyring(ring Keyring) *KeyringProvider {
	return &KeyringProvider{ring: ring}
}

func (p *KeyringProvider) Token() (string, Source, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cached != "" {
		return p.cached, p.source, nil
	}

	if token, err := p.ring.Get(Service, Account); err == nil && token != "" {
		p.cached, p.source = token, SourceKeyring
		return token, SourceKeyring, nil
	}

	if token := os.Getenv(EnvToken); token != "" {
		p.cached, p.source = token, SourceEnvironment
		return token, SourceEnvironment, nil
	}

	return "", "", ErrNoToken
}

func (p *KeyringProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cached, p.source = "", ""
}

func (p *KeyringProvider) Save(token string) error {
	if err := p.ring.Set(Service, Account, token); err != nil {
		return err
	}
	p.mu.Lock()
	p.cached, p.source = token, SourceKeyring
	p.mu.Unlock()
	return nil
}

func (p *KeyringProvider) Forget() error {
	p.Invalidate()
	return p.ring.Delete(Service, Account)
}

var _ Provider = (*KeyringProvider)(nil)
