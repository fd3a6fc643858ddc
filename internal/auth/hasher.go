package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashPassword returns the SHA-256 digest of password as lowercase hex.
// The format is unsalted so it round-trips with STARTPAGE_PASSWORD_HASH;
// online brute force is mitigated by the lockout guard, not the digest.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword recomputes the digest and compares it to storedHash.
// The comparison is constant-time.
func VerifyPassword(password, storedHash string) bool {
	if storedHash == "" {
		return false
	}
	got := HashPassword(password)
	want := strings.ToLower(strings.TrimSpace(storedHash))
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// IsHexDigest reports whether s looks like a SHA-256 hex digest.
func IsHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
