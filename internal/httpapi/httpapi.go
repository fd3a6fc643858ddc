// Package httpapi exposes the start-page auth HTTP API and handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ctrlcmdshft/excalith-start-page/internal/auth"
	"github.com/ctrlcmdshft/excalith-start-page/internal/db"
	"github.com/ctrlcmdshft/excalith-start-page/internal/session"
)

// Server wires the authenticator, session manager, and event log into an
// HTTP API. The surrounding start-page UI is a pure client of these
// endpoints.
type Server struct {
	Auth     *auth.Authenticator
	Sessions *session.Manager
	DB       *db.DB
	Logger   *slog.Logger

	BindAddr string
	Port     int
	CertPath string
	KeyPath  string

	// RememberTTL is handed to clients that ask to be remembered.
	RememberTTL time.Duration

	loginLimiter *fixedWindowLimiter
}

// Handler assembles the route table and middleware chain.
func (s *Server) Handler() http.Handler {
	if s.loginLimiter == nil {
		// Network-level backstop in front of the lockout guard.
		s.loginLimiter = newFixedWindowLimiter(20, time.Minute)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/getPasswordConfig", s.handleGetPasswordConfig)
	mux.HandleFunc("/api/savePasswordConfig", s.handleSavePasswordConfig)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/auth/logout", s.handleLogout)
	mux.HandleFunc("/api/auth/session", s.handleSession)
	mux.HandleFunc("/api/auth/emergency", s.handleEmergency)
	mux.HandleFunc("/api/events", s.withSession(s.handleEvents))

	h := withSecurityHeaders(mux)
	h = s.withRequestLog(h)
	h = withRequestID(h)
	return s.withRecover(h)
}

// ListenAndServe starts the server, with TLS when cert and key are set.
func (s *Server) ListenAndServe() error {
	if s.Auth == nil || s.Sessions == nil {
		return errors.New("authenticator and session manager are required")
	}

	addr := s.BindAddr + ":" + strconv.Itoa(s.Port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if s.CertPath != "" && s.KeyPath != "" {
		return httpServer.ListenAndServeTLS(s.CertPath, s.KeyPath)
	}
	return httpServer.ListenAndServe()
}

func (s *Server) handleGetPasswordConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, s.Auth.Policy())
}

func (s *Server) handleSavePasswordConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// Once the gate is up, only an authenticated browser may change it.
	// With the gate down anyone local can bootstrap a password.
	policy := s.Auth.Policy()
	if policy.Enabled && !s.Sessions.IsAuthenticated(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req struct {
		PasswordHash *string `json:"passwordHash"`
		Enabled      *bool   `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid enabled value"})
		return
	}

	hash := ""
	if req.PasswordHash != nil {
		hash = *req.PasswordHash
	}
	if *req.Enabled && hash == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password hash required when enabled"})
		return
	}
	if hash != "" && !auth.IsHexDigest(hash) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid password hash"})
		return
	}

	err := s.Auth.Store.Save(auth.PasswordConfig{Enabled: *req.Enabled, Hash: hash})
	if errors.Is(err, auth.ErrConfigImmutable) {
		writeJSON(w, http.StatusForbidden, map[string]string{
			"error": "password is managed via environment variable; update STARTPAGE_PASSWORD_HASH instead",
		})
		return
	}
	if err != nil {
		s.Logger.Error("save password config", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
		return
	}

	s.recordEvent(r, db.EventPasswordSet, "via api")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	ip := clientIP(r)
	if ok, wait := s.loginLimiter.Allow(ip); !ok {
		w.Header().Set("Retry-After", retryAfterSeconds(wait))
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req struct {
		Password string `json:"password"`
		Remember bool   `json:"remember"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "password is required"})
		return
	}

	token, err := s.Auth.Login(req.Password)
	if err != nil {
		s.writeLoginError(w, r, err)
		return
	}

	s.Sessions.SetCookie(w, token)
	s.recordEvent(r, db.EventLoginSuccess, "")

	resp := map[string]any{"success": true}
	if req.Remember {
		resp["remember"] = session.NewRememberToken(time.Now(), s.RememberTTL)
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeLoginError maps authenticator failures onto the wire. Whether a
// password is configured at all stays hidden behind the same generic
// message as a wrong password.
func (s *Server) writeLoginError(w http.ResponseWriter, r *http.Request, err error) {
	var locked *auth.LockedOutError
	if errors.As(err, &locked) {
		w.Header().Set("Retry-After", strconv.Itoa(locked.RemainingSeconds))
		s.recordEvent(r, db.EventLockout, "remaining="+strconv.Itoa(locked.RemainingSeconds)+"s")
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":             "too many failed attempts",
			"remaining_seconds": locked.RemainingSeconds,
		})
		return
	}

	var invalid *auth.InvalidPasswordError
	if errors.As(err, &invalid) {
		s.recordEvent(r, db.EventLoginFailure, "remaining_attempts="+strconv.Itoa(invalid.RemainingAttempts))
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":              "invalid password",
			"remaining_attempts": invalid.RemainingAttempts,
		})
		return
	}

	if errors.Is(err, auth.ErrNotConfigured) {
		s.recordEvent(r, db.EventLoginFailure, "gate disabled")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid password"})
		return
	}

	s.Logger.Error("login", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	s.Sessions.ClearCookie(w)
	s.recordEvent(r, db.EventSessionDestroyed, "logout")
	// clearClientState tells the UI to drop its remember token and
	// lockout storage alongside the cookie.
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "clearClientState": true})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": s.Sessions.IsAuthenticated(r)})
}

func (s *Server) handleEmergency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	// The code unlocks the gate, so only the local operator or an
	// already authenticated browser may request one.
	if !isLoopback(clientIP(r)) && !s.Sessions.IsAuthenticated(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	code, err := s.Auth.EmergencyCode()
	if err != nil {
		s.Logger.Error("issue emergency code", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
		return
	}
	s.recordEvent(r, db.EventEmergencyIssued, "")
	writeJSON(w, http.StatusOK, map[string]string{
		"code":       code.Code,
		"validUntil": code.ValidUntil.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.DB == nil {
		writeJSON(w, http.StatusOK, map[string]any{"events": []db.Event{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.DB.ListEvents(r.Context(), limit)
	if err != nil {
		s.Logger.Error("list events", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
		return
	}
	if events == nil {
		events = []db.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// withSession guards a handler behind a valid session cookie.
func (s *Server) withSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.Sessions.IsAuthenticated(r) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
			return
		}
		next(w, r)
	}
}

// recordEvent best-effort appends to the audit log.
func (s *Server) recordEvent(r *http.Request, kind, detail string) {
	if s.DB == nil {
		return
	}
	if _, err := s.DB.RecordEvent(r.Context(), kind, detail, clientIP(r)); err != nil {
		s.Logger.Warn("record event", "kind", kind, "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-content-type-options", "nosniff")
		w.Header().Set("x-frame-options", "DENY")
		w.Header().Set("referrer-policy", "no-referrer")
		if r.TLS != nil {
			w.Header().Set("strict-transport-security", "max-age=31536000")
		}
		next.ServeHTTP(w, r)
	})
}
