package auth

import (
	"fmt"
	"time"

	"github.com/ctrlcmdshft/excalith-start-page/internal/session"
)

// Command is a typed password lifecycle command. Each variant carries its
// own arguments and is dispatched through a single switch in Execute.
type Command interface{ isCommand() }

// SetPassword enables the gate with a new password.
type SetPassword struct{ NewPassword string }

// ChangePassword replaces the password after verifying the current one.
type ChangePassword struct{ Current, New string }

// ResetPassword consumes an emergency code. With a new password it
// replaces the old one; without, it disables the gate entirely.
type ResetPassword struct{ Code, NewPassword string }

// RemovePassword disables the gate after verifying the current password.
type RemovePassword struct{ Current string }

// Lock reports whether the gate can be locked; the caller clears the
// session cookie and client markers.
type Lock struct{}

func (SetPassword) isCommand()    {}
func (ChangePassword) isCommand() {}
func (ResetPassword) isCommand()  {}
func (RemovePassword) isCommand() {}
func (Lock) isCommand()           {}

// Authenticator composes the store, hasher, lockout guard, emergency
// issuer, and session manager to answer login and lifecycle requests.
type Authenticator struct {
	Store  *Store
	Guard  *LockoutGuard
	Issuer *EmergencyIssuer
	// Sessions may be nil for CLI-only use; Login then returns an
	// empty token on success.
	Sessions          *session.Manager
	MinPasswordLength int
	Now               func() time.Time
}

// DefaultMinPasswordLength is the shortest accepted password.
const DefaultMinPasswordLength = 4

// New wires an Authenticator with a real clock.
func New(store *Store, guard *LockoutGuard, issuer *EmergencyIssuer, sessions *session.Manager, minLen int) *Authenticator {
	if minLen <= 0 {
		minLen = DefaultMinPasswordLength
	}
	return &Authenticator{
		Store:             store,
		Guard:             guard,
		Issuer:            issuer,
		Sessions:          sessions,
		MinPasswordLength: minLen,
		Now:               time.Now,
	}
}

// Login verifies the candidate password and on success returns a signed
// session token. A lockout is checked before the hasher runs, a failure
// records an attempt, and a success clears the guard.
func (a *Authenticator) Login(password string) (string, error) {
	now := a.Now()
	if rem := a.Guard.RemainingLockoutAt(now); rem > 0 {
		return "", &LockedOutError{RemainingSeconds: ceilSeconds(rem)}
	}

	cfg := a.Store.Load()
	if !cfg.Enabled || cfg.Hash == "" {
		return "", ErrNotConfigured
	}

	if !VerifyPassword(password, cfg.Hash) {
		a.Guard.RecordFailureAt(now)
		if rem := a.Guard.RemainingLockoutAt(now); rem > 0 {
			return "", &LockedOutError{RemainingSeconds: ceilSeconds(rem)}
		}
		return "", &InvalidPasswordError{RemainingAttempts: a.Guard.RemainingAttempts()}
	}

	a.Guard.RecordSuccess()
	if a.Sessions == nil {
		return "", nil
	}
	return a.Sessions.IssueToken()
}

// Execute dispatches a lifecycle command. Every mutation fails with
// ErrConfigImmutable first when the config source is the environment, so
// the caller can direct the operator at the environment variable.
func (a *Authenticator) Execute(cmd Command) error {
	switch c := cmd.(type) {
	case SetPassword:
		return a.setPassword(c.NewPassword)
	case ChangePassword:
		return a.changePassword(c.Current, c.New)
	case ResetPassword:
		return a.resetPassword(c.Code, c.NewPassword)
	case RemovePassword:
		return a.removePassword(c.Current)
	case Lock:
		return a.lock()
	default:
		return fmt.Errorf("unknown command %T", cmd)
	}
}

func (a *Authenticator) setPassword(newPassword string) error {
	cfg := a.Store.Load()
	if cfg.Source == SourceEnv {
		return ErrConfigImmutable
	}
	if cfg.Enabled && cfg.Hash != "" {
		return ErrAlreadySet
	}
	if len(newPassword) < a.MinPasswordLength {
		return ErrTooShort
	}
	return a.Store.Save(PasswordConfig{Enabled: true, Hash: HashPassword(newPassword)})
}

func (a *Authenticator) changePassword(current, newPassword string) error {
	cfg := a.Store.Load()
	if cfg.Source == SourceEnv {
		return ErrConfigImmutable
	}
	if !cfg.Enabled || cfg.Hash == "" {
		return ErrNotConfigured
	}
	if len(newPassword) < a.MinPasswordLength {
		return ErrTooShort
	}
	if !VerifyPassword(current, cfg.Hash) {
		return ErrIncorrectCurrent
	}
	return a.Store.Save(PasswordConfig{Enabled: true, Hash: HashPassword(newPassword)})
}

func (a *Authenticator) resetPassword(code, newPassword string) error {
	cfg := a.Store.Load()
	if cfg.Source == SourceEnv {
		return ErrConfigImmutable
	}
	// Length is validated before the code is consumed so a typo does not
	// burn the single-use code.
	if newPassword != "" && len(newPassword) < a.MinPasswordLength {
		return ErrTooShort
	}
	if err := a.Issuer.ConsumeAt(code, a.Now()); err != nil {
		return err
	}
	if newPassword == "" {
		return a.Store.Save(PasswordConfig{Enabled: false})
	}
	return a.Store.Save(PasswordConfig{Enabled: true, Hash: HashPassword(newPassword)})
}

func (a *Authenticator) removePassword(current string) error {
	cfg := a.Store.Load()
	if cfg.Source == SourceEnv {
		return ErrConfigImmutable
	}
	if !cfg.Enabled || cfg.Hash == "" {
		return ErrNotConfigured
	}
	if !VerifyPassword(current, cfg.Hash) {
		return ErrIncorrectCurrent
	}
	return a.Store.Save(PasswordConfig{Enabled: false})
}

func (a *Authenticator) lock() error {
	cfg := a.Store.Load()
	if !cfg.Enabled || cfg.Hash == "" {
		return ErrNotEnabled
	}
	return nil
}

// EmergencyCode issues a fresh emergency code.
func (a *Authenticator) EmergencyCode() (EmergencyCode, error) {
	return a.Issuer.IssueAt(a.Now())
}

// Policy returns the external view of the password config.
func (a *Authenticator) Policy() Policy {
	return a.Store.Policy()
}

// ceilSeconds rounds a duration up to whole seconds, so a caller told to
// wait N seconds never retries a hair too early.
func ceilSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
