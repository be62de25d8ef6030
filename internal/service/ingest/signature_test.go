package ingest

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"email.opened"}`)
	secret := "whsec_test"
	sig := Sign(secret, payload)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	b64 := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	tests := []struct {
		name      string
		signature string
		wantErr   bool
	}{
		{"bare hex", sig, false},
		{"prefixed hex", "sha256=" + sig, false},
		{"versioned base64", "v1," + b64, false},
		{"one of several", "v1,bm9wZQ== v1," + b64, false},
		{"wrong", Sign("other", payload), true},
		{"empty", "", true},
		{"garbage", "not-hex", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(secret, payload, tt.signature)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	sig := Sign("s", []byte(`{"a":1}`))
	assert.ErrorIs(t, VerifySignature("s", []byte(`{"a":2}`), sig), ErrInvalidSignature)
}

func TestVerifySignature_NoSecretSkips(t *testing.T) {
	assert.NoError(t, VerifySignature("", []byte("anything"), ""))
}
