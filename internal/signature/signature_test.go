package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestSign(t *testing.T) {
	tests := []struct {
		name   string
		body   []byte
		secret string
	}{
		{
			name:   "basic payload",
			body:   []byte(`{"event":"ticket.created","data":{"id":"123"}}`),
			secret: "whsec_abc",
		},
		{
			name:   "empty payload",
			body:   []byte(`{}`),
			secret: "secret",
		},
		{
			name:   "empty secret",
			body:   []byte(`{"test":true}`),
			secret: "",
		},
		{
			name:   "unicode payload",
			body:   []byte(`{"title":"café","price":"€10"}`),
			secret: "unicode-key-日本語",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Sign(tt.secret, tt.body)

			decoded, err := base64.StdEncoding.DecodeString(sig)
			if err != nil {
				t.Fatalf("signature is not valid base64: %v", err)
			}
			if len(decoded) != 32 {
				t.Fatalf("expected 32 bytes, got %d", len(decoded))
			}

			mac := hmac.New(sha256.New, []byte(tt.secret))
			mac.Write(tt.body)
			expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
			if sig != expected {
				t.Errorf("signature mismatch:\n  got:  %s\n  want: %s", sig, expected)
			}
		})
	}
}

func TestSign_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := Sign("Jefe", []byte("what do ya want for nothing?"))
	want := "W9zBRr9gdU5qBCQmCJV1x1oAPwidJzmDnexYuWTsOEM="
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestSign_Deterministic(t *testing.T) {
	body := []byte(`{"id":"d-1"}`)
	if Sign("s", body) != Sign("s", body) {
		t.Error("same input produced different signatures")
	}
	if Sign("s1", body) == Sign("s2", body) {
		t.Error("different secrets produced the same signature")
	}
}

func TestVerify(t *testing.T) {
	body := []byte(`{"id":"d-1","event":"ticket.created"}`)
	header := Header("whsec_x", body)

	if !strings.HasPrefix(header, "sha256=") {
		t.Fatalf("header missing prefix: %s", header)
	}
	if !Verify("whsec_x", body, header) {
		t.Error("valid signature rejected")
	}
	if Verify("whsec_y", body, header) {
		t.Error("wrong secret accepted")
	}
	if Verify("whsec_x", []byte(`{"id":"d-2"}`), header) {
		t.Error("tampered body accepted")
	}
	if Verify("whsec_x", body, strings.TrimPrefix(header, "sha256=")) {
		t.Error("header without prefix accepted")
	}
}

func TestNewSecret(t *testing.T) {
	a, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	b, err := NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	if a == b {
		t.Error("secrets should be unique")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(a, "whsec_"))
	if err != nil {
		t.Fatalf("secret body is not base64: %v", err)
	}
	if len(raw) != 32 {
		t.Errorf("expected 32 random bytes, got %d", len(raw))
	}
}
