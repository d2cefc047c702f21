package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/yuckyman/url-portal/internal/portal/domain"
	"github.com/yuckyman/url-portal/shared/clock"
)

// SignatureVerifier checks HMAC-SHA256 trigger signatures over "{key}:{timestamp}".
// An empty secret disables verification entirely.
type SignatureVerifier struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewSignatureVerifier creates a verifier. ttl bounds how far a timestamp may
// drift from the current time in either direction.
func NewSignatureVerifier(secret string, ttl time.Duration, clk clock.Clock) *SignatureVerifier {
	return &SignatureVerifier{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clk,
	}
}

// Enabled reports whether a secret is configured
func (v *SignatureVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Verify returns nil when the trigger is authentic or verification is disabled.
// A nil timestamp means the caller sent none.
func (v *SignatureVerifier) Verify(key string, timestamp *int64, signature string) error {
	if !v.Enabled() {
		return nil
	}

	if timestamp == nil || signature == "" {
		return domain.ErrMissingCredentials
	}

	now := v.clock.Now().Unix()
	drift := now - *timestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(v.ttl/time.Second) {
		return domain.ErrStaleTimestamp
	}

	expected := v.Sign(key, *timestamp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return domain.ErrBadSignature
	}

	return nil
}

// Sign returns the hex signature a caller must present for key at timestamp.
// It returns "" when verification is disabled.
func (v *SignatureVerifier) Sign(key string, timestamp int64) string {
	if !v.Enabled() {
		return ""
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(key + ":" + strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}
