package auth

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Source identifies where the active password config came from.
type Source string

const (
	SourceEnv  Source = "env"
	SourceFile Source = "file"
	SourceNone Source = "none"
)

// PasswordConfigFile is the file-backed config name inside the data dir.
const PasswordConfigFile = ".password.json"

// PasswordHashEnv is the environment override. When set, the password
// gate is enabled with this hash and the file config is ignored.
const PasswordHashEnv = "STARTPAGE_PASSWORD_HASH"

// PasswordConfig is the resolved password policy.
// An env-sourced config is read-only; mutation commands must fail with
// ErrConfigImmutable instead of silently doing nothing.
type PasswordConfig struct {
	Enabled bool
	Hash    string
	Source  Source
}

// Policy is the external view of the password config. The hash is only
// populated when the gate is enabled, so a configured-but-disabled hash
// never leaks.
type Policy struct {
	Enabled      bool    `json:"enabled"`
	HasPassword  bool    `json:"hasPassword"`
	PasswordHash *string `json:"passwordHash"`
	Source       Source  `json:"source"`
}

// fileConfig mirrors the on-disk .password.json schema.
type fileConfig struct {
	Enabled      bool    `json:"enabled"`
	PasswordHash *string `json:"passwordHash"`
}

// Store resolves and persists the password config from two sources: an
// immutable environment-supplied hash (always wins) and a local file.
type Store struct {
	fs      afero.Fs
	path    string
	envHash string
	logger  *slog.Logger

	// mu serializes file writes; concurrent admin commands must not
	// interleave read-modify-write cycles.
	mu sync.Mutex
}

// NewStore builds a Store rooted at dir. envHash is the value of the
// environment override captured at startup; pass "" when unset.
func NewStore(fsys afero.Fs, dir string, envHash string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		fs:      fsys,
		path:    filepath.Join(dir, PasswordConfigFile),
		envHash: strings.ToLower(strings.TrimSpace(envHash)),
		logger:  logger,
	}
}

// Load resolves the active password config. The env override wins when
// present; otherwise the file is read, created with a disabled default
// when absent. An unreadable or corrupt file fails open to disabled.
func (s *Store) Load() PasswordConfig {
	if s.envHash != "" {
		return PasswordConfig{Enabled: true, Hash: s.envHash, Source: SourceEnv}
	}

	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if os.IsNotExist(err) {
			def := PasswordConfig{Enabled: false, Source: SourceFile}
			if werr := s.write(def); werr != nil {
				s.logger.Error("create default password config", "path", s.path, "error", werr)
				return PasswordConfig{Enabled: false, Source: SourceNone}
			}
			return def
		}
		s.logger.Error("read password config", "path", s.path, "error", err)
		return PasswordConfig{Enabled: false, Source: SourceNone}
	}

	var fc fileConfig
	if err := json.Unmarshal(b, &fc); err != nil {
		s.logger.Error("parse password config", "path", s.path, "error", err)
		return PasswordConfig{Enabled: false, Source: SourceNone}
	}

	cfg := PasswordConfig{Enabled: fc.Enabled, Source: SourceFile}
	if fc.PasswordHash != nil {
		cfg.Hash = strings.ToLower(strings.TrimSpace(*fc.PasswordHash))
	}
	return cfg
}

// Save persists a new file-backed config. It fails with ErrConfigImmutable
// when the active source is the environment override.
func (s *Store) Save(cfg PasswordConfig) error {
	if s.envHash != "" {
		return ErrConfigImmutable
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cfg)
}

// write marshals and atomically replaces the config file. Callers other
// than the initial default creation must hold mu.
func (s *Store) write(cfg PasswordConfig) error {
	fc := fileConfig{Enabled: cfg.Enabled}
	if cfg.Hash != "" {
		h := cfg.Hash
		fc.PasswordHash = &h
	}
	b, err := json.MarshalIndent(fc, "", "\t")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.fs, s.path, b)
}

// Policy returns the external view of the current config.
func (s *Store) Policy() Policy {
	cfg := s.Load()
	p := Policy{
		Enabled:     cfg.Enabled,
		HasPassword: cfg.Hash != "",
		Source:      cfg.Source,
	}
	if cfg.Enabled && cfg.Hash != "" {
		h := cfg.Hash
		p.PasswordHash = &h
	}
	return p
}

// writeFileAtomic writes b to a temp file in the target directory and
// renames it over path, so a crash mid-write never leaves a torn file.
func writeFileAtomic(fsys afero.Fs, path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := afero.TempFile(fsys, dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	_ = fsys.Chmod(tmpName, 0o600)
	if err := fsys.Rename(tmpName, path); err != nil {
		_ = fsys.Remove(tmpName)
		return err
	}
	return nil
}
