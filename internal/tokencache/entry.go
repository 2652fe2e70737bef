// Package tokencache holds upstream credentials shared by every request of
// the process. Entries are immutable values; a change is always a new entry.
package tokencache

import (
	"errors"
	"time"
)

// DefaultSkew is how long before its expiry a token stops being handed out.
const DefaultSkew = 30 * time.Second

// DefaultRefreshTimeout bounds one shared refresh.
const DefaultRefreshTimeout = 30 * time.Second

var ErrNotFound = errors.New("token not found")

// Entry is one cached upstream credential.
type Entry struct {
	Subject      string
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	Expired      bool
}

// Valid reports whether the token can still be sent at now.
func (e Entry) Valid(now time.Time) bool {
	return e.ValidFor(now, DefaultSkew)
}

// ValidFor is Valid with an explicit skew.
func (e Entry) ValidFor(now time.Time, skew time.Duration) bool {
	if e.Expired || e.AccessToken == "" || e.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(e.ExpiresAt.Add(-skew))
}

// CanRefresh reports whether a refresh token is available.
func (e Entry) CanRefresh() bool {
	return e.RefreshToken != ""
}

// MarkExpired returns a copy flagged as expired.
func (e Entry) MarkExpired() Entry {
	e.Expired = true
	return e
}
