package cache

import (
	"errors"
	"time"
)

// Policy bounds how long tokens are served from cache.
type Policy struct {
	// MaxLifetime caps how long any entry is served, however long the token
	// itself is valid.
	MaxLifetime time.Duration `yaml:"max_lifetime"`

	// ExpiryMargin is subtracted from the token's exp when computing
	// CacheUntil, so a served token never expires mid-operation.
	ExpiryMargin time.Duration `yaml:"expiry_margin"`

	// ReadBuffer is the minimum remaining token lifetime, re-read from the
	// token on every lookup, for an entry to count as a hit.
	ReadBuffer time.Duration `yaml:"read_buffer"`

	// ReuseSuperset lets a request be served by any live entry for the same
	// audience whose scopes cover it, not only the exact-scope entry.
	ReuseSuperset bool `yaml:"reuse_superset"`
}

// DefaultPolicy returns the default caching policy.
// MaxLifetime: 4 minutes, ExpiryMargin: 60 seconds, ReadBuffer: 30 seconds
func DefaultPolicy() Policy {
	return Policy{
		MaxLifetime:  4 * time.Minute,
		ExpiryMargin: 60 * time.Second,
		ReadBuffer:   30 * time.Second,
	}
}

// WithDefaults fills unset bounds. A policy with no bounds at all takes every
// default bound and keeps ReuseSuperset. Otherwise only a zero MaxLifetime is
// filled, so an explicit zero margin or buffer stays zero.
func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxLifetime == 0 && p.ExpiryMargin == 0 && p.ReadBuffer == 0 {
		def.ReuseSuperset = p.ReuseSuperset
		return def
	}
	if p.MaxLifetime == 0 {
		p.MaxLifetime = def.MaxLifetime
	}
	return p
}

// Validate rejects negative bounds and a disabled cache ceiling.
func (p Policy) Validate() error {
	if p.MaxLifetime <= 0 {
		return errors.New("cache: max lifetime must be positive")
	}
	if p.ExpiryMargin < 0 || p.ReadBuffer < 0 {
		return errors.New("cache: expiry margin and read buffer must not be negative")
	}
	return nil
}

// CacheUntil returns min(expiresAt - ExpiryMargin, now + MaxLifetime).
func (p Policy) CacheUntil(now, expiresAt time.Time) time.Time {
	until := expiresAt.Add(-p.ExpiryMargin)
	if ceiling := now.Add(p.MaxLifetime); ceiling.Before(until) {
		until = ceiling
	}
	return until
}

// Fresh reports whether an entry is still servable at now given the
// token's independently decoded expiry.
func (p Policy) Fresh(now, cacheUntil, tokenExpiresAt time.Time) bool {
	if !now.Before(cacheUntil) {
		return false
	}
	return !tokenExpiresAt.Before(now.Add(p.ReadBuffer))
}
