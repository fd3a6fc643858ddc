package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/ctrlcmdshft/excalith-start-page/internal/session"
)

// newTestAuthenticator wires an Authenticator over an in-memory fs with a
// controllable clock.
func newTestAuthenticator(t *testing.T, envHash string) (*Authenticator, *time.Time) {
	t.Helper()
	fs := afero.NewMemMapFs()
	store := NewStore(fs, "data", envHash, quietLogger())
	guard := NewLockoutGuard(DefaultMaxAttempts, DefaultLockoutDuration)
	issuer := NewEmergencyIssuer(fs, "data")
	sessions := session.NewManager([]byte("test-secret"), "startpage_session", 7*24*time.Hour, false)

	now := time.Unix(1_700_000_000, 0)
	a := New(store, guard, issuer, sessions, DefaultMinPasswordLength)
	a.Now = func() time.Time { return now }
	sessions.Now = a.Now
	return a, &now
}

func TestFreshInstallFlow(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")

	if p := a.Policy(); p.Enabled {
		t.Fatalf("fresh install should be disabled")
	}

	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}

	tok, err := a.Login("abcd")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if tok == "" {
		t.Fatalf("expected session token on success")
	}
	if !a.Sessions.VerifyToken(tok) {
		t.Fatalf("issued token does not verify")
	}
}

func TestLoginNotConfigured(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if _, err := a.Login("whatever"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestLoginLockoutAfterMaxFailures(t *testing.T) {
	a, now := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}

	var last error
	for i := 0; i < DefaultMaxAttempts; i++ {
		_, last = a.Login("wrong")
	}
	var locked *LockedOutError
	if !errors.As(last, &locked) {
		t.Fatalf("expected LockedOutError on the final failure, got %v", last)
	}
	if locked.RemainingSeconds != 300 {
		t.Fatalf("remaining = %d, want 300", locked.RemainingSeconds)
	}

	// Correct password is still rejected while locked.
	if _, err := a.Login("abcd"); !errors.As(err, &locked) {
		t.Fatalf("expected lockout with correct password, got %v", err)
	}

	// After the lockout elapses the correct password works again.
	*now = now.Add(301 * time.Second)
	if _, err := a.Login("abcd"); err != nil {
		t.Fatalf("login after lockout expiry: %v", err)
	}
}

func TestLoginReportsRemainingAttempts(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}

	_, err := a.Login("wrong")
	var invalid *InvalidPasswordError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidPasswordError, got %v", err)
	}
	if invalid.RemainingAttempts != DefaultMaxAttempts-1 {
		t.Fatalf("remaining attempts = %d", invalid.RemainingAttempts)
	}
}

func TestLoginSuccessResetsGuard(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	for i := 0; i < 3; i++ {
		_, _ = a.Login("wrong")
	}
	if _, err := a.Login("abcd"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if a.Guard.FailedAttempts() != 0 {
		t.Fatalf("success must reset the failure count")
	}
}

func TestSetPasswordRules(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")

	if err := a.Execute(SetPassword{NewPassword: "abc"}); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	if err := a.Execute(SetPassword{NewPassword: "efgh"}); !errors.Is(err, ErrAlreadySet) {
		t.Fatalf("expected ErrAlreadySet, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")

	if err := a.Execute(ChangePassword{Current: "abcd", New: "efgh"}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	if err := a.Execute(ChangePassword{Current: "abcd", New: "efg"}); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	if err := a.Execute(ChangePassword{Current: "nope", New: "efgh"}); !errors.Is(err, ErrIncorrectCurrent) {
		t.Fatalf("expected ErrIncorrectCurrent, got %v", err)
	}
	if err := a.Execute(ChangePassword{Current: "abcd", New: "efgh"}); err != nil {
		t.Fatalf("changepass: %v", err)
	}
	if _, err := a.Login("efgh"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestRemovePassword(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	if err := a.Execute(RemovePassword{Current: "nope"}); !errors.Is(err, ErrIncorrectCurrent) {
		t.Fatalf("expected ErrIncorrectCurrent, got %v", err)
	}
	if err := a.Execute(RemovePassword{Current: "abcd"}); err != nil {
		t.Fatalf("removepass: %v", err)
	}
	if p := a.Policy(); p.Enabled {
		t.Fatalf("gate should be disabled after removepass")
	}
}

func TestResetPasswordWithCode(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}

	code, err := a.EmergencyCode()
	if err != nil {
		t.Fatalf("emergency: %v", err)
	}

	if err := a.Execute(ResetPassword{Code: code.Code, NewPassword: "newpw1"}); err != nil {
		t.Fatalf("resetpass: %v", err)
	}
	if _, err := a.Login("newpw1"); err != nil {
		t.Fatalf("login after reset: %v", err)
	}

	// Replay of the consumed code fails.
	if err := a.Execute(ResetPassword{Code: code.Code, NewPassword: "other5"}); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode on replay, got %v", err)
	}
}

func TestResetPasswordDisablesGateWithoutNewPassword(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	code, err := a.EmergencyCode()
	if err != nil {
		t.Fatalf("emergency: %v", err)
	}
	if err := a.Execute(ResetPassword{Code: code.Code}); err != nil {
		t.Fatalf("resetpass: %v", err)
	}
	if p := a.Policy(); p.Enabled {
		t.Fatalf("gate should be disabled after bare reset")
	}
}

func TestResetPasswordShortPasswordKeepsCode(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	code, err := a.EmergencyCode()
	if err != nil {
		t.Fatalf("emergency: %v", err)
	}

	if err := a.Execute(ResetPassword{Code: code.Code, NewPassword: "ab"}); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
	// The too-short attempt must not have burned the code.
	if err := a.Execute(ResetPassword{Code: code.Code, NewPassword: "newpw1"}); err != nil {
		t.Fatalf("resetpass after short attempt: %v", err)
	}
}

func TestEnvSourceIsImmutableForAllCommands(t *testing.T) {
	a, _ := newTestAuthenticator(t, HashPassword("envpw"))
	code := "irrelevant"

	cmds := []Command{
		SetPassword{NewPassword: "abcd"},
		ChangePassword{Current: "envpw", New: "abcd"},
		ResetPassword{Code: code, NewPassword: "abcd"},
		RemovePassword{Current: "envpw"},
	}
	for _, cmd := range cmds {
		if err := a.Execute(cmd); !errors.Is(err, ErrConfigImmutable) {
			t.Fatalf("%T: expected ErrConfigImmutable, got %v", cmd, err)
		}
	}

	// Login still works against the env hash.
	if _, err := a.Login("envpw"); err != nil {
		t.Fatalf("login against env hash: %v", err)
	}
}

func TestLockCommand(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(Lock{}); !errors.Is(err, ErrNotEnabled) {
		t.Fatalf("expected ErrNotEnabled, got %v", err)
	}
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	if err := a.Execute(Lock{}); err != nil {
		t.Fatalf("lock with gate enabled: %v", err)
	}
}

func TestLoginDoesNotLeakHashViaError(t *testing.T) {
	a, _ := newTestAuthenticator(t, "")
	if err := a.Execute(SetPassword{NewPassword: "abcd"}); err != nil {
		t.Fatalf("setpass: %v", err)
	}
	_, err := a.Login("wrong")
	if err == nil {
		t.Fatalf("expected error")
	}
	if h := HashPassword("abcd"); strings.Contains(err.Error(), h) {
		t.Fatalf("error leaks the stored hash")
	}
}
