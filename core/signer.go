package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// Signer produces the X-Signature header for registry requests: an HMAC-SHA256
// over "<unix timestamp>.<body>", hex encoded.
type Signer struct {
	secret []byte
	skew   time.Duration
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), skew: 5 * time.Minute}
}

func (s *Signer) Sign(ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(ts.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify is the receiving side of Sign, for registry providers that accept
// requests from HTTPRegistry. It rejects signatures whose timestamp is further
// than the allowed skew from now.
func (s *Signer) Verify(ts, now time.Time, body []byte, signature string) error {
	diff := now.Sub(ts)
	if diff < 0 {
		diff = -diff
	}
	if diff > s.skew {
		return ErrBadSignature
	}
	expected := s.Sign(ts, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}
