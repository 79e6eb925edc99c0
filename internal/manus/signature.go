package manus

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader is the header the task provider stamps on webhook
// deliveries.
const SignatureHeader = "x-manus-signature"

// Signature computes the hex HMAC-SHA256 of the raw request body.
func Signature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a delivered signature in constant time.
func VerifySignature(body []byte, secret, signature string) bool {
	expected := Signature(body, secret)
	return hmac.Equal([]byte(expected), []byte(signature))
}
