package session

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// SecretFile stores the cookie signing secret inside the data dir.
const SecretFile = ".session_secret"

// LoadOrCreateSecret returns the cookie signing secret. envValue wins
// when non-empty; otherwise the secret file is read, generated on first
// run. The secret is read once at startup and treated as immutable
// thereafter.
func LoadOrCreateSecret(fsys afero.Fs, dir string, envValue string) ([]byte, error) {
	if v := strings.TrimSpace(envValue); v != "" {
		return []byte(v), nil
	}

	path := filepath.Join(dir, SecretFile)
	b, err := afero.ReadFile(fsys, path)
	if err == nil {
		if s := strings.TrimSpace(string(b)); s != "" {
			return []byte(s), nil
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	return RotateSecret(fsys, dir)
}

// RotateSecret replaces the secret file with fresh randomness. Every
// session signed with the old secret stops verifying, which is how a
// CLI lock logs out all browsers at once.
func RotateSecret(fsys afero.Fs, dir string) ([]byte, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	tok := base64.RawURLEncoding.EncodeToString(raw)
	if err := fsys.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, SecretFile)
	if err := afero.WriteFile(fsys, path, []byte(tok+"\n"), 0o600); err != nil {
		return nil, err
	}
	return []byte(tok), nil
}
