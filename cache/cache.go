package cache

import (
	"errors"
	"strings"
	"time"

	"github.com/jonwraymond/agentauth/auth"
)

// MaxKeyLength is the maximum allowed length for a cache key.
const MaxKeyLength = 2048

// Sentinel errors for cache operations.
var (
	ErrNilFetcher   = errors.New("cache: fetcher is nil")
	ErrInvalidKey   = errors.New("cache: key is invalid")
	ErrKeyTooLong   = errors.New("cache: key exceeds max length")
	ErrInvalidScope = errors.New("cache: scope contains a separator")
)

// Entry is one cached access token.
type Entry struct {
	// Audience is the resource the token is for.
	Audience string

	// ScopeKey is the normalized scope list the token was requested for.
	ScopeKey string

	// Token is the cached access token.
	Token *auth.AccessToken

	// CacheUntil is when the entry stops being served, independent of the
	// token's own expiry.
	CacheUntil time.Time
}

// Store holds cache entries.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Get never errors; it returns (Entry{}, false) on miss.
// - Delete is idempotent.
type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, entry Entry)
	Delete(key string)

	// DeleteIf atomically removes key if pred holds for its entry.
	DeleteIf(key string, pred func(Entry) bool) bool

	// Range calls fn for each entry until fn returns false. fn must not
	// call back into the store.
	Range(fn func(key string, entry Entry) bool)

	Len() int
}

// ValidateKey checks that an audience and scope list can form a key.
func ValidateKey(audience string, scopes []string) error {
	if strings.TrimSpace(audience) == "" || strings.ContainsAny(audience, "\n\r"+keySeparator) {
		return ErrInvalidKey
	}
	for _, s := range scopes {
		if strings.ContainsAny(s, ","+keySeparator) {
			return ErrInvalidScope
		}
	}
	if len(Key(audience, scopes)) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}
