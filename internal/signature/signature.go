// Package signature signs webhook bodies with HMAC-SHA256.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	HeaderName   = "X-Webhook-Signature"
	headerPrefix = "sha256="
	secretPrefix = "whsec_"
)

// Sign returns the base64 encoded HMAC-SHA256 of body keyed by secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Header returns the X-Webhook-Signature value for body.
func Header(secret string, body []byte) string {
	return headerPrefix + Sign(secret, body)
}

// Verify checks a header value produced by Header in constant time.
func Verify(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, headerPrefix)
	if !ok {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(Sign(secret, body)))
}

// NewSecret generates a signing secret from 32 random bytes.
func NewSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return secretPrefix + base64.StdEncoding.EncodeToString(b), nil
}
