// Package daemon boots the start-page auth server: it resolves secrets,
// opens the event database, and wires the HTTP API together.
package daemon

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/ctrlcmdshft/excalith-start-page/internal/auth"
	"github.com/ctrlcmdshft/excalith-start-page/internal/config"
	"github.com/ctrlcmdshft/excalith-start-page/internal/db"
	"github.com/ctrlcmdshft/excalith-start-page/internal/httpapi"
	"github.com/ctrlcmdshft/excalith-start-page/internal/session"
)

type Options struct {
	Config config.Config
	Logger *slog.Logger
}

func Run(ctx context.Context, opt Options) error {
	c := opt.Config
	lg := opt.Logger
	if lg == nil {
		lg = slog.Default()
	}
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}

	fsys := afero.NewOsFs()
	if err := fsys.MkdirAll(c.DataDir, 0o700); err != nil {
		return err
	}

	envHash := strings.TrimSpace(os.Getenv(auth.PasswordHashEnv))
	store := auth.NewStore(fsys, c.DataDir, envHash, lg)
	// Resolve the config once at boot so a broken file shows up in the
	// log immediately instead of on the first login.
	boot := store.Load()
	lg.Info("password gate", "enabled", boot.Enabled, "source", boot.Source)

	secret, err := session.LoadOrCreateSecret(fsys, c.DataDir, os.Getenv(c.Session.SecretEnv))
	if err != nil {
		return err
	}
	sessions := session.NewManager(secret, c.Session.CookieName,
		time.Duration(c.Session.MaxAgeDays)*24*time.Hour, c.HTTP.TLS.CertPath != "")

	guard := auth.NewLockoutGuard(c.Auth.MaxAttempts, time.Duration(c.Auth.LockoutSeconds)*time.Second)
	issuer := auth.NewEmergencyIssuer(fsys, c.DataDir)

	d, err := db.Open(ctx, c.DB.Path)
	if err != nil {
		return err
	}
	defer d.Close()
	_ = os.Chmod(c.DB.Path, 0o600)

	api := &httpapi.Server{
		Auth:        auth.New(store, guard, issuer, sessions, c.Auth.MinPasswordLength),
		Sessions:    sessions,
		DB:          d,
		Logger:      lg,
		BindAddr:    c.HTTP.Bind,
		Port:        c.HTTP.Port,
		CertPath:    c.HTTP.TLS.CertPath,
		KeyPath:     c.HTTP.TLS.KeyPath,
		RememberTTL: time.Duration(c.Auth.RememberDays) * 24 * time.Hour,
	}

	lg.Info("listening", "bind", c.HTTP.Bind, "port", c.HTTP.Port, "tls", c.HTTP.TLS.CertPath != "")
	return api.ListenAndServe()
}
