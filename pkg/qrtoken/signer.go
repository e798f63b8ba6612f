// Package qrtoken signs the payload encoded into a session's QR code so a
// scanned value can be tied back to exactly one session.
package qrtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformed = errors.New("malformed qr payload")
	ErrSignature = errors.New("invalid qr payload signature")
	ErrExpired   = errors.New("qr payload expired")
)

// Signer creates and validates QR payloads of the form "<session>.<unix expiry>.<hmac>".
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner constructs a signer. now may be nil.
func NewSigner(secret string, now func() time.Time) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("qr signing secret missing")
	}
	if now == nil {
		now = time.Now
	}
	return &Signer{secret: []byte(secret), now: now}, nil
}

// Generate returns the payload for a session valid until expiresAt.
func (s *Signer) Generate(sessionID string, expiresAt time.Time) (string, error) {
	if sessionID == "" || strings.Contains(sessionID, ".") {
		return "", fmt.Errorf("%w: bad session id", ErrMalformed)
	}
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	return strings.Join([]string{sessionID, ts, s.sign(sessionID, ts)}, "."), nil
}

// Parse validates the payload and returns the session id it carries.
func (s *Signer) Parse(payload string) (string, time.Time, error) {
	parts := strings.Split(payload, ".")
	if len(parts) != 3 || parts[0] == "" {
		return "", time.Time{}, ErrMalformed
	}
	sessionID, ts, signature := parts[0], parts[1], parts[2]

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", time.Time{}, ErrMalformed
	}
	if !hmac.Equal([]byte(s.sign(sessionID, ts)), []byte(signature)) {
		return "", time.Time{}, ErrSignature
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return sessionID, expiresAt, ErrExpired
	}
	return sessionID, expiresAt, nil
}

func (s *Signer) sign(sessionID, ts string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(sessionID + "|" + ts))
	return hex.EncodeToString(mac.Sum(nil))
}
