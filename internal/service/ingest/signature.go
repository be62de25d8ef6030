package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload. Used by tests and by
// operators generating fixtures.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature against the HMAC-SHA256 of the raw
// payload. Accepted forms are bare hex, "sha256=<hex>" and "v1,<base64>";
// a space-separated list passes if any entry matches. Comparison is
// constant time.
//
// An empty secret disables verification and returns nil. Callers log that
// case; it is meant for local development only.
func VerifySignature(secret string, payload []byte, signature string) error {
	if secret == "" {
		return nil
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Fields(signature) {
		if got, ok := decodeSignature(candidate); ok && hmac.Equal(got, expected) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func decodeSignature(s string) ([]byte, bool) {
	switch {
	case strings.HasPrefix(s, "sha256="):
		b, err := hex.DecodeString(strings.TrimPrefix(s, "sha256="))
		return b, err == nil
	case strings.HasPrefix(s, "v1,"):
		b, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, "v1,"))
		return b, err == nil
	}
	b, err := hex.DecodeString(s)
	return b, err == nil
}
