package session

import "time"

// RememberToken is the client-owned "remember me" marker. It is
// independent of the session cookie: the server cookie is authoritative
// for protected data, the remember token only gates the client UI flow
// across browser restarts. The server hands the shape out on login and
// never reads it back.
type RememberToken struct {
	Authenticated bool  `json:"authenticated"`
	ExpiresAt     int64 `json:"expiresAt"` // epoch milliseconds
}

// NewRememberToken builds a token expiring after ttl.
func NewRememberToken(now time.Time, ttl time.Duration) RememberToken {
	return RememberToken{
		Authenticated: true,
		ExpiresAt:     now.Add(ttl).UnixMilli(),
	}
}

// ValidAt reports whether the token still marks the client authenticated.
func (t RememberToken) ValidAt(now time.Time) bool {
	return t.Authenticated && now.UnixMilli() < t.ExpiresAt
}
