package auth

import (
	"crypto/subtle"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const (
	// EmergencyCodeValidity bounds the window an issued code stays usable.
	EmergencyCodeValidity = time.Hour
	// EmergencyCodeFile is the persisted code record inside the data dir.
	EmergencyCodeFile = ".emergency.json"

	emergencyCodeBytes = 24
)

// EmergencyCode is a one-time credential that lets the operator clear or
// replace the password without knowing the current one.
type EmergencyCode struct {
	Code       string    `json:"code"`
	IssuedAt   time.Time `json:"issuedAt"`
	ValidUntil time.Time `json:"validUntil"`
	Consumed   bool      `json:"consumed"`
}

// EmergencyIssuer issues and consumes emergency codes. Only one code is
// active at a time; issuing replaces any prior unused code. The record is
// persisted atomically so a crash never leaves a torn file.
type EmergencyIssuer struct {
	fs   afero.Fs
	path string
	mu   sync.Mutex
}

// NewEmergencyIssuer builds an issuer storing its record under dir.
func NewEmergencyIssuer(fsys afero.Fs, dir string) *EmergencyIssuer {
	return &EmergencyIssuer{fs: fsys, path: filepath.Join(dir, EmergencyCodeFile)}
}

// Issue generates a fresh code valid for EmergencyCodeValidity.
func (e *EmergencyIssuer) Issue() (EmergencyCode, error) {
	return e.IssueAt(time.Now())
}

// IssueAt is Issue with an injected clock for tests.
func (e *EmergencyIssuer) IssueAt(now time.Time) (EmergencyCode, error) {
	tok, err := NewToken(emergencyCodeBytes)
	if err != nil {
		return EmergencyCode{}, err
	}
	code := EmergencyCode{
		Code:       tok,
		IssuedAt:   now,
		ValidUntil: now.Add(EmergencyCodeValidity),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.write(code); err != nil {
		return EmergencyCode{}, err
	}
	return code, nil
}

// Consume validates the presented code and marks it used. A missing,
// mismatched, already consumed, or expired code yields ErrInvalidCode.
func (e *EmergencyIssuer) Consume(code string) error {
	return e.ConsumeAt(code, time.Now())
}

// ConsumeAt is Consume with an injected clock for tests.
func (e *EmergencyIssuer) ConsumeAt(code string, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.read()
	if err != nil {
		return ErrInvalidCode
	}
	if cur.Consumed || now.After(cur.ValidUntil) {
		return ErrInvalidCode
	}
	if subtle.ConstantTimeCompare([]byte(code), []byte(cur.Code)) != 1 {
		return ErrInvalidCode
	}

	cur.Consumed = true
	if err := e.write(cur); err != nil {
		return err
	}
	return nil
}

// read loads the persisted record. Must hold mu.
func (e *EmergencyIssuer) read() (EmergencyCode, error) {
	b, err := afero.ReadFile(e.fs, e.path)
	if err != nil {
		return EmergencyCode{}, err
	}
	var c EmergencyCode
	if err := json.Unmarshal(b, &c); err != nil {
		return EmergencyCode{}, err
	}
	if c.Code == "" {
		return EmergencyCode{}, os.ErrNotExist
	}
	return c, nil
}

// write persists the record atomically. Must hold mu.
func (e *EmergencyIssuer) write(c EmergencyCode) error {
	b, err := json.MarshalIndent(c, "", "\t")
	if err != nil {
		return err
	}
	return writeFileAtomic(e.fs, e.path, b)
}
