// Package session issues and verifies the signed session cookie that
// marks a browser as authenticated. The cookie itself is the durable
// record; there is no server-side session table.
package session

import (
	"crypto/sha256"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// DefaultCookieName matches the upstream session cookie.
const DefaultCookieName = "startpage_session"

// claims is the integrity-protected cookie payload.
type claims struct {
	Authenticated bool `json:"authenticated"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens and handles their cookie.
// The signing key is derived once from a process-start secret; rotating
// the secret invalidates every outstanding session, which is the
// intended mass-logout mechanism rather than an error.
type Manager struct {
	key        []byte
	CookieName string
	MaxAge     time.Duration
	Secure     bool
	Now        func() time.Time
}

// NewManager derives the signing key from secret and returns a Manager.
func NewManager(secret []byte, cookieName string, maxAge time.Duration, secure bool) *Manager {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return &Manager{
		key:        deriveKey(secret),
		CookieName: cookieName,
		MaxAge:     maxAge,
		Secure:     secure,
		Now:        time.Now,
	}
}

// deriveKey expands the raw secret into a dedicated HMAC key so the
// secret itself is never used directly for signing.
func deriveKey(secret []byte) []byte {
	r := hkdf.New(sha256.New, secret, nil, []byte("startpage session signing"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// Only fails on a broken hash implementation.
		panic(err)
	}
	return key
}

// IssueToken returns a signed token carrying authenticated=true with the
// configured expiry.
func (m *Manager) IssueToken() (string, error) {
	now := m.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Authenticated: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.MaxAge)),
		},
	})
	return tok.SignedString(m.key)
}

// VerifyToken reports whether token is an untampered, unexpired session.
// Every verification failure reads as unauthenticated; the caller never
// learns whether the token was tampered with or merely expired.
func (m *Manager) VerifyToken(token string) bool {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.Now))
	if err != nil || !parsed.Valid {
		return false
	}
	return c.Authenticated
}

// IsAuthenticated checks the request's session cookie.
func (m *Manager) IsAuthenticated(r *http.Request) bool {
	c, err := r.Cookie(m.CookieName)
	if err != nil || c.Value == "" {
		return false
	}
	return m.VerifyToken(c.Value)
}

// SetCookie attaches a signed session cookie to the response.
func (m *Manager) SetCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.MaxAge.Seconds()),
	})
}

// ClearCookie invalidates the session cookie on the client.
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   m.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
