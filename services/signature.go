package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignHex returns the hex HMAC-SHA256 of payload under secret.
func SignHex(secret string, payload []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature in constant time.
// An empty secret or signature never verifies.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignHex(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// CallbackSignaturePayload is the string the provider signs on payment-link redirects.
func CallbackSignaturePayload(linkID, referenceID, status, paymentID string) []byte {
	return []byte(linkID + "|" + referenceID + "|" + status + "|" + paymentID)
}
