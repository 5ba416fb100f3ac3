package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.captured","project_reference":"ref-1"}`)

	if !VerifyWebhookSignature(secret, body, signBody(secret, body)) {
		t.Error("valid signature rejected")
	}
	if VerifyWebhookSignature(secret, body, signBody("wrong_secret", body)) {
		t.Error("signature from the wrong secret accepted")
	}
	if VerifyWebhookSignature(secret, []byte("tampered"), signBody(secret, body)) {
		t.Error("signature over a different body accepted")
	}
}

func TestVerifyWebhookSignature_Malformed(t *testing.T) {
	secret := "whsec_test"
	body := []byte("{}")

	cases := []string{
		"",
		"sha256=",
		"deadbeef",
		"md5=deadbeef",
		"sha256=not-hex-but-wrong-anyway",
	}
	for _, sig := range cases {
		if VerifyWebhookSignature(secret, body, sig) {
			t.Errorf("malformed signature %q accepted", sig)
		}
	}
}
