// Package passwd implements the "startpage passwd" CLI subcommand family:
// the password lifecycle verbs plus emergency code issuance and lock.
// These act on the data directory directly and do not need the server to
// be running.
package passwd

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/term"

	"github.com/ctrlcmdshft/excalith-start-page/internal/auth"
	"github.com/ctrlcmdshft/excalith-start-page/internal/db"
	"github.com/ctrlcmdshft/excalith-start-page/internal/session"
)

// Options captures the flags shared by every passwd verb.
type Options struct {
	DataDir string
	DBPath  string
	Code    string
	Disable bool
}

// Run dispatches one of the passwd verbs.
func Run(args []string) error {
	if len(args) < 1 {
		usage()
		return errors.New("missing passwd verb")
	}
	verb := args[0]

	fs := flag.NewFlagSet("passwd "+verb, flag.ContinueOnError)
	var opt Options
	fs.StringVar(&opt.DataDir, "data-dir", "./data", "data directory (password config, secrets)")
	fs.StringVar(&opt.DBPath, "db", "./data/startpage.db", "sqlite event database path (empty disables event logging)")
	if verb == "resetpass" {
		fs.StringVar(&opt.Code, "code", "", "emergency code (required)")
		fs.BoolVar(&opt.Disable, "disable", false, "disable the password gate instead of setting a new password")
	}
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}

	fsys := afero.NewOsFs()
	envHash := strings.TrimSpace(os.Getenv(auth.PasswordHashEnv))
	store := auth.NewStore(fsys, opt.DataDir, envHash, nil)
	guard := auth.NewLockoutGuard(auth.DefaultMaxAttempts, auth.DefaultLockoutDuration)
	issuer := auth.NewEmergencyIssuer(fsys, opt.DataDir)
	a := auth.New(store, guard, issuer, nil, auth.DefaultMinPasswordLength)

	switch verb {
	case "setpass":
		return runSetpass(a, opt, fs.Args())
	case "changepass":
		return runChangepass(a, opt, fs.Args())
	case "resetpass":
		return runResetpass(a, opt, fs.Args())
	case "removepass":
		return runRemovepass(a, opt, fs.Args())
	case "emergency":
		return runEmergency(a, opt)
	case "lock":
		return runLock(a, fsys, opt)
	case "-h", "--help", "help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown passwd verb: %s", verb)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "startpage passwd <setpass|changepass|resetpass|removepass|emergency|lock> [flags]")
}

func runSetpass(a *auth.Authenticator, opt Options, args []string) error {
	newPassword, err := argOrPrompt(args, 0, "New password", true)
	if err != nil {
		return err
	}
	if err := a.Execute(auth.SetPassword{NewPassword: newPassword}); err != nil {
		return friendlyErr(err)
	}
	recordEvent(opt, db.EventPasswordSet, "via cli")
	fmt.Println("password set; the gate is now enabled")
	return nil
}

func runChangepass(a *auth.Authenticator, opt Options, args []string) error {
	current, err := argOrPrompt(args, 0, "Current password", false)
	if err != nil {
		return err
	}
	newPassword, err := argOrPrompt(args, 1, "New password", true)
	if err != nil {
		return err
	}
	if err := a.Execute(auth.ChangePassword{Current: current, New: newPassword}); err != nil {
		return friendlyErr(err)
	}
	recordEvent(opt, db.EventPasswordChanged, "via cli")
	fmt.Println("password changed")
	return nil
}

func runResetpass(a *auth.Authenticator, opt Options, args []string) error {
	code := strings.TrimSpace(opt.Code)
	if code == "" {
		return errors.New("-code is required; issue one with: startpage passwd emergency")
	}
	newPassword := ""
	if !opt.Disable {
		var err error
		newPassword, err = argOrPrompt(args, 0, "New password", true)
		if err != nil {
			return err
		}
	}
	if err := a.Execute(auth.ResetPassword{Code: code, NewPassword: newPassword}); err != nil {
		return friendlyErr(err)
	}
	recordEvent(opt, db.EventPasswordReset, "via cli")
	if opt.Disable {
		fmt.Println("password removed; the gate is now disabled")
	} else {
		fmt.Println("password reset")
	}
	return nil
}

func runRemovepass(a *auth.Authenticator, opt Options, args []string) error {
	current, err := argOrPrompt(args, 0, "Current password", false)
	if err != nil {
		return err
	}
	if err := a.Execute(auth.RemovePassword{Current: current}); err != nil {
		return friendlyErr(err)
	}
	recordEvent(opt, db.EventPasswordRemoved, "via cli")
	fmt.Println("password removed; the gate is now disabled")
	return nil
}

func runEmergency(a *auth.Authenticator, opt Options) error {
	code, err := a.EmergencyCode()
	if err != nil {
		return friendlyErr(err)
	}
	recordEvent(opt, db.EventEmergencyIssued, "via cli")
	fmt.Printf("emergency code: %s\n", code.Code)
	fmt.Printf("valid until:    %s\n", code.ValidUntil.UTC().Format(time.RFC3339))
	fmt.Println("use it with:    startpage passwd resetpass -code <code>")
	return nil
}

// runLock rotates the session signing secret, which invalidates every
// outstanding session cookie at once. Cookies cannot be cleared from
// here, so rotation is the server-side equivalent of a forced logout.
func runLock(a *auth.Authenticator, fsys afero.Fs, opt Options) error {
	if err := a.Execute(auth.Lock{}); err != nil {
		return friendlyErr(err)
	}
	if _, err := session.RotateSecret(fsys, opt.DataDir); err != nil {
		return err
	}
	recordEvent(opt, db.EventSecretRotated, "lock via cli")
	fmt.Println("all sessions invalidated; browsers must log in again")
	return nil
}

// friendlyErr rewrites sentinel errors into operator-facing messages.
func friendlyErr(err error) error {
	switch {
	case errors.Is(err, auth.ErrConfigImmutable):
		return fmt.Errorf("password is managed via %s; update the environment variable instead", auth.PasswordHashEnv)
	case errors.Is(err, auth.ErrAlreadySet):
		return errors.New("a password is already set; use changepass")
	case errors.Is(err, auth.ErrNotConfigured):
		return errors.New("no password is set; use setpass")
	case errors.Is(err, auth.ErrNotEnabled):
		return errors.New("the password gate is not enabled")
	case errors.Is(err, auth.ErrTooShort):
		return fmt.Errorf("password must be at least %d characters", auth.DefaultMinPasswordLength)
	case errors.Is(err, auth.ErrIncorrectCurrent):
		return errors.New("current password is incorrect")
	case errors.Is(err, auth.ErrInvalidCode):
		return errors.New("emergency code is invalid, expired, or already used")
	}
	return err
}

// recordEvent best-effort appends to the audit log; CLI verbs must not
// fail because the event database is unavailable.
func recordEvent(opt Options, kind, detail string) {
	if opt.DBPath == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d, err := db.Open(ctx, opt.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: event not recorded: %v\n", err)
		return
	}
	defer d.Close()
	if _, err := d.RecordEvent(ctx, kind, detail, ""); err != nil {
		fmt.Fprintf(os.Stderr, "warning: event not recorded: %v\n", err)
	}
}

// argOrPrompt takes a positional argument when present and prompts
// otherwise. Prompts suppress echo on a real terminal.
func argOrPrompt(args []string, i int, label string, confirm bool) (string, error) {
	if len(args) > i {
		v := strings.TrimSpace(args[i])
		if v == "" {
			return "", errors.New("password cannot be empty")
		}
		return v, nil
	}
	return promptPassword(label, confirm)
}

func promptPassword(label string, confirm bool) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		for {
			fmt.Fprintf(os.Stderr, "%s: ", label)
			p1b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			p1 := strings.TrimSpace(string(p1b))
			if p1 == "" {
				fmt.Fprintln(os.Stderr, "password cannot be empty")
				continue
			}
			if !confirm {
				return p1, nil
			}
			fmt.Fprint(os.Stderr, "Confirm password: ")
			p2b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return "", err
			}
			if p1 != strings.TrimSpace(string(p2b)) {
				fmt.Fprintln(os.Stderr, "passwords do not match")
				continue
			}
			return p1, nil
		}
	}

	// Non-interactive fallback (e.g. piped input). Echo suppression isn't possible.
	r := bufio.NewReader(os.Stdin)
	for {
		fmt.Fprintf(os.Stderr, "%s: ", label)
		p1, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		p1 = strings.TrimSpace(p1)
		if p1 == "" {
			fmt.Fprintln(os.Stderr, "password cannot be empty")
			continue
		}
		if !confirm {
			return p1, nil
		}
		fmt.Fprint(os.Stderr, "Confirm password: ")
		p2, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		if p1 != strings.TrimSpace(p2) {
			fmt.Fprintln(os.Stderr, "passwords do not match")
			continue
		}
		return p1, nil
	}
}
