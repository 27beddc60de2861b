package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// validateEventSignature checks X-Collabhub-Signature against
// HMAC-SHA256(body, secret). An empty secret rejects everything; modules are
// always created with one.
func validateEventSignature(r *http.Request, secret string) bool {
	if secret == "" {
		return false
	}
	sig := r.Header.Get("X-Collabhub-Signature")
	if sig == "" {
		return false
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return false
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body)) // restore for downstream handlers

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
