package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader is the HTTP header carrying the payload signature
const SignatureHeader = "X-Signature"

const signaturePrefix = "sha256="

// Sign computes the HMAC-SHA256 signature of payload under secret.
// Format: "sha256=<hex_signature>", matching what CRM callers send.
func Sign(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether signature is a valid HMAC-SHA256 signature of
// payload under secret. Comparison is constant-time; a malformed or
// mis-prefixed signature never verifies.
func Verify(secret string, payload []byte, signature string) bool {
	if !strings.HasPrefix(signature, signaturePrefix) {
		return false
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hmac.Equal(h.Sum(nil), provided)
}
