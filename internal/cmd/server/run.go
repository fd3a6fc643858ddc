// Package server implements the "startpage server" CLI subcommand.
package server

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ctrlcmdshft/excalith-start-page/internal/config"
	"github.com/ctrlcmdshft/excalith-start-page/internal/daemon"
	"github.com/ctrlcmdshft/excalith-start-page/internal/logging"
	"github.com/ctrlcmdshft/excalith-start-page/internal/version"
)

type Options struct {
	ConfigPath string
	LogLevel   string

	DBPath   string
	DataDir  string
	BindAddr string
	Port     int
	CertPath string
	KeyPath  string
}

func Run(args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	var opt Options
	var showVersion bool
	fs.StringVar(&opt.ConfigPath, "config", "", "path to startpage.yaml (when set, other flags are ignored)")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")
	fs.StringVar(&opt.LogLevel, "log-level", "info", "log level: debug|info|warning|error")
	fs.StringVar(&opt.DBPath, "db", "./data/startpage.db", "sqlite event database path")
	fs.StringVar(&opt.DataDir, "data-dir", "./data", "data directory (password config, secrets)")
	fs.StringVar(&opt.BindAddr, "bind", "127.0.0.1", "bind address")
	fs.IntVar(&opt.Port, "port", 4416, "HTTP port")
	fs.StringVar(&opt.CertPath, "tls-cert", "", "TLS certificate path")
	fs.StringVar(&opt.KeyPath, "tls-key", "", "TLS key path (required with -tls-cert)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showVersion {
		fmt.Printf("startpage server %s\n", version.Version)
		return nil
	}

	if opt.ConfigPath != "" {
		c, err := config.Load(opt.ConfigPath)
		if err != nil {
			return err
		}
		base := filepath.Dir(opt.ConfigPath)
		c.DataDir = resolvePath(base, c.DataDir)
		c.DB.Path = resolvePath(base, c.DB.Path)
		c.HTTP.TLS.CertPath = resolvePath(base, c.HTTP.TLS.CertPath)
		c.HTTP.TLS.KeyPath = resolvePath(base, c.HTTP.TLS.KeyPath)

		level := c.Log.Level
		// CLI overrides config.
		if strings.TrimSpace(opt.LogLevel) != "" {
			level = opt.LogLevel
		}
		lg, _, err := logging.New(logging.Options{Level: level, DefaultSlog: true})
		if err != nil {
			return err
		}
		return daemon.Run(context.Background(), daemon.Options{Config: c, Logger: lg})
	}

	lg, _, err := logging.New(logging.Options{Level: opt.LogLevel, DefaultSlog: true})
	if err != nil {
		return err
	}

	c := config.Default()
	c.DataDir = opt.DataDir
	c.DB.Path = opt.DBPath
	c.HTTP.Bind = opt.BindAddr
	c.HTTP.Port = opt.Port
	c.HTTP.TLS.CertPath = opt.CertPath
	c.HTTP.TLS.KeyPath = opt.KeyPath
	return daemon.Run(context.Background(), daemon.Options{Config: c, Logger: lg})
}

func resolvePath(baseDir, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}
