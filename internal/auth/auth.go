// Package auth gates every ingestion request behind an API key: parse the
// Authorization header, look up the key (through a short-TTL cache), verify
// it with a constant-time comparison against its stored argon2id hash, and
// attach the authenticated identity to the request context.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/claude/ingestd/internal/apperr"
)

// Identity is what a successful Authenticate attaches to a request.
type Identity struct {
	UserID        int
	KeyID         string
	BudgetPerHour int
}

// StoredKey is what the KeyStore returns for a given key ID: the argon2id
// parameters and hash to verify a presented secret against, plus the
// permission set and per-hour request budget the key carries.
type StoredKey struct {
	KeyID         string
	UserID        int
	IsActive      bool
	Salt          []byte
	Hash          []byte
	Time          uint32
	Memory        uint32
	Threads       uint8
	KeyLen        uint32
	BudgetPerHour int
}

// KeyStore resolves a key ID to its stored hash. Implementations back this
// with Postgres; Gate never talks to the database directly.
type KeyStore interface {
	Lookup(ctx context.Context, keyID string) (StoredKey, error)
}

// ErrKeyNotFound is returned by a KeyStore when no row matches the key ID.
var ErrKeyNotFound = errors.New("api key not found")

// Cache fronts KeyStore lookups with a short TTL so a hot client doesn't
// drive one database round trip per ingestion request.
type Cache interface {
	Get(keyID string) (StoredKey, bool)
	Set(keyID string, key StoredKey)
}

// Gate authenticates inbound requests.
type Gate struct {
	store KeyStore
	cache Cache
}

// NewGate builds a Gate. cache may be nil, in which case every request
// round-trips to store.
func NewGate(store KeyStore, cache Cache) *Gate {
	return &Gate{store: store, cache: cache}
}

// Authenticate parses an "Authorization: Bearer <key_id>.<secret>" header,
// resolves the key, and verifies the secret. Every failure path returns a
// distinctly-coded *apperr.Error so handlers can report the right taxonomy
// string without re-deriving it.
func (g *Gate) Authenticate(ctx context.Context, authorizationHeader string) (Identity, error) {
	if authorizationHeader == "" {
		return Identity{}, apperr.New(apperr.CodeAuthMissingCredential, "missing Authorization header")
	}

	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return Identity{}, apperr.New(apperr.CodeAuthBadFormat, "Authorization header must use the Bearer scheme")
	}
	token := strings.TrimPrefix(authorizationHeader, prefix)

	keyID, secret, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || secret == "" {
		return Identity{}, apperr.New(apperr.CodeAuthBadFormat, "bearer token must be formatted as key_id.secret")
	}

	stored, err := g.resolve(ctx, keyID)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return Identity{}, apperr.New(apperr.CodeAuthInvalidKey, "api key not recognized")
		}
		return Identity{}, apperr.Wrap(apperr.CodeInternalError, "looking up api key", err)
	}
	if !stored.IsActive {
		return Identity{}, apperr.New(apperr.CodeAuthInvalidKey, "api key has been revoked")
	}

	if !verify(secret, stored) {
		return Identity{}, apperr.New(apperr.CodeAuthInvalidKey, "api key secret does not match")
	}

	return Identity{UserID: stored.UserID, KeyID: stored.KeyID, BudgetPerHour: stored.BudgetPerHour}, nil
}

func (g *Gate) resolve(ctx context.Context, keyID string) (StoredKey, error) {
	if g.cache != nil {
		if cached, ok := g.cache.Get(keyID); ok {
			return cached, nil
		}
	}
	stored, err := g.store.Lookup(ctx, keyID)
	if err != nil {
		return StoredKey{}, err
	}
	if g.cache != nil {
		g.cache.Set(keyID, stored)
	}
	return stored, nil
}

// verify recomputes the argon2id hash of the presented secret with the
// stored key's own salt and parameters, then compares in constant time.
// Recomputing with the stored parameters (rather than hard-coded ones)
// means a key minted under one cost setting still verifies after the
// defaults are tightened for new keys.
func verify(secret string, stored StoredKey) bool {
	computed := argon2.IDKey([]byte(secret), stored.Salt, stored.Time, stored.Memory, stored.Threads, stored.KeyLen)
	return subtle.ConstantTimeCompare(computed, stored.Hash) == 1
}

// HashSecret computes the argon2id hash used to mint a new stored key,
// mirroring the parameters verify uses so a freshly-minted key round-trips.
func HashSecret(secret string, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte {
	return argon2.IDKey([]byte(secret), salt, time, memory, threads, keyLen)
}

// DefaultParams are the argon2id cost parameters for newly-minted keys,
// chosen to match the OWASP-recommended floor for interactive verification.
var DefaultParams = struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32}
