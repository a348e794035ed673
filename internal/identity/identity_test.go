package identity_test

import (
	"errors"
	"testing"

	"upnext/internal/identity"
)

func TestKeyringTakesPriorityOverEnvironment(t *testing.T) {
	t.Setenv(identity.EnvToken, "env-token")

	ring := identity.NewMockKeyring()
	if err := ring.Set(identity.Service, identity.Account, "ring-token"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	p := identity.NewProviderWithKeyring(ring)
	token, source, err := p.Token()
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if token != "ring-token" || source != identity.SourceKeyring {
		t.Errorf("got %q from %s, want ring-token from keyring", token, source)
	}
}

func TestEnvironmentFallback(t *testing.T) {
	t.Setenv(identity.EnvToken, "env-token")

	p := identity.NewProviderWithKeyring(identity.NewMockKeyring())
	token, source, err := p.Token()
	if err != nil {
		t.Fatalf("token failed: %v", err)
	}
	if token != "env-token" || source != identity.SourceEnvironment {
		t.Errorf("got %q from %s, want env-token from environment", token, source)
	}
}

func TestNoTokenAnywhere(t *testing.T) {
	t.Setenv(identity.EnvToken, "")

	p := identity.NewProviderWithKeyring(identity.NewMockKeyring())
	if _, _, err := p.Token(); !errors.Is(err, identity.ErrNoToken) {
		t.Errorf("got err %v, want ErrNoToken", err)
	}
}

func TestInvalidateForcesReread(t *testing.T) {
	t.Setenv(identity.EnvToken, "")

	ring := identity.NewMockKeyring()
	if err := ring.Set(identity.Service, identity.Account, "old"); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	p := identity.NewProviderWithKeyring(ring)
	if token, _, _ := p.Token(); token != "old" {
		t.Fatalf("got %q, want old", token)
	}

	// Update behind the cache; a plain read still sees the copy.
	if err := ring.Set(identity.Service, identity.Account, "new"); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if token, _, _ := p.Token(); token != "old" {
		t.Errorf("cache bypassed, got %q", token)
	}

	p.Invalidate()
	if token, _, _ := p.Token(); token != "new" {
		t.Errorf("after invalidate, got %q, want new", token)
	}
}

func TestSaveAndForget(t *testing.T) {
	t.Setenv(identity.EnvToken, "")

	ring := identity.NewMockKeyring()
	p := identity.NewProviderWithKeyring(ring)

	if err := p.Save("fresh"); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if token, _, err := p.Token(); err != nil || token != "fresh" {
		t.Errorf("after save, got %q (%v), want fresh", token, err)
	}

	if err := p.Forget(); err != nil {
		t.Fatalf("forget failed: %v", err)
	}
	if _, _, err := p.Token(); !errors.Is(err, identity.ErrNoToken) {
		t.Errorf("after forget, got err %v, want ErrNoToken", err)
	}
}
