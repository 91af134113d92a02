package auth

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/claude/ingestd/internal/apperr"
)

type fakeStore struct {
	keys map[string]StoredKey
}

func (f *fakeStore) Lookup(ctx context.Context, keyID string) (StoredKey, error) {
	k, ok := f.keys[keyID]
	if !ok {
		return StoredKey{}, ErrKeyNotFound
	}
	return k, nil
}

type fakeCache struct {
	entries map[string]StoredKey
	gets    int
}

func (f *fakeCache) Get(keyID string) (StoredKey, bool) {
	f.gets++
	k, ok := f.entries[keyID]
	return k, ok
}

func (f *fakeCache) Set(keyID string, key StoredKey) {
	if f.entries == nil {
		f.entries = make(map[string]StoredKey)
	}
	f.entries[keyID] = key
}

func mintKey(t *testing.T, keyID string, userID int, secret string, active bool) StoredKey {
	t.Helper()
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("generating salt: %v", err)
	}
	hash := HashSecret(secret, salt, DefaultParams.Time, DefaultParams.Memory, DefaultParams.Threads, DefaultParams.KeyLen)
	return StoredKey{
		KeyID: keyID, UserID: userID, IsActive: active, Salt: salt, Hash: hash,
		Time: DefaultParams.Time, Memory: DefaultParams.Memory, Threads: DefaultParams.Threads, KeyLen: DefaultParams.KeyLen,
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	key := mintKey(t, "abc123", 7, "supersecret", true)
	store := &fakeStore{keys: map[string]StoredKey{"abc123": key}}
	gate := NewGate(store, nil)

	identity, err := gate.Authenticate(context.Background(), "Bearer abc123.supersecret")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if identity.UserID != 7 {
		t.Errorf("expected user 7, got %d", identity.UserID)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	key := mintKey(t, "abc123", 7, "supersecret", true)
	store := &fakeStore{keys: map[string]StoredKey{"abc123": key}}
	gate := NewGate(store, nil)

	_, err := gate.Authenticate(context.Background(), "Bearer abc123.wrongsecret")
	if apperr.CodeOf(err) != apperr.CodeAuthInvalidKey {
		t.Fatalf("expected auth_invalid_key, got %v", err)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	gate := NewGate(&fakeStore{}, nil)
	_, err := gate.Authenticate(context.Background(), "")
	if apperr.CodeOf(err) != apperr.CodeAuthMissingCredential {
		t.Fatalf("expected auth_missing_credential, got %v", err)
	}
}

func TestAuthenticateBadFormat(t *testing.T) {
	gate := NewGate(&fakeStore{}, nil)
	cases := []string{"Basic abc123.secret", "Bearer noDotHere", "Bearer "}
	for _, c := range cases {
		_, err := gate.Authenticate(context.Background(), c)
		if apperr.CodeOf(err) != apperr.CodeAuthBadFormat {
			t.Errorf("case %q: expected auth_bad_format, got %v", c, err)
		}
	}
}

func TestAuthenticateRevokedKey(t *testing.T) {
	key := mintKey(t, "abc123", 7, "supersecret", false)
	store := &fakeStore{keys: map[string]StoredKey{"abc123": key}}
	gate := NewGate(store, nil)

	_, err := gate.Authenticate(context.Background(), "Bearer abc123.supersecret")
	if apperr.CodeOf(err) != apperr.CodeAuthInvalidKey {
		t.Fatalf("expected auth_invalid_key for a revoked key, got %v", err)
	}
}

func TestAuthenticateUsesCacheOnSecondLookup(t *testing.T) {
	key := mintKey(t, "abc123", 7, "supersecret", true)
	store := &fakeStore{keys: map[string]StoredKey{"abc123": key}}
	cache := &fakeCache{}
	gate := NewGate(store, cache)

	if _, err := gate.Authenticate(context.Background(), "Bearer abc123.supersecret"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := gate.Authenticate(context.Background(), "Bearer abc123.supersecret"); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if cache.gets != 2 {
		t.Fatalf("expected the cache to be consulted both times, got %d gets", cache.gets)
	}
	if len(cache.entries) != 1 {
		t.Fatalf("expected the store lookup to populate the cache, got %d entries", len(cache.entries))
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	gate := NewGate(&fakeStore{keys: map[string]StoredKey{}}, nil)
	_, err := gate.Authenticate(context.Background(), "Bearer doesnotexist.secret")
	if apperr.CodeOf(err) != apperr.CodeAuthInvalidKey {
		t.Fatalf("expected auth_invalid_key for an unknown key, got %v", err)
	}
}
