package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"
)

func signBody(t *testing.T, body []byte, secret string, ts int64) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignature_Valid(t *testing.T) {
	body := []byte(`{"type":"payment_intent.succeeded"}`)
	header := signBody(t, body, "whsec_test", time.Now().Unix())
	if err := VerifyWebhookSignature(body, header, "whsec_test"); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
}

func TestVerifyWebhookSignature_WrongSecret(t *testing.T) {
	body := []byte(`{}`)
	header := signBody(t, body, "whsec_other", time.Now().Unix())
	if err := VerifyWebhookSignature(body, header, "whsec_test"); err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestVerifyWebhookSignature_TamperedBody(t *testing.T) {
	body := []byte(`{"amount":100}`)
	header := signBody(t, body, "whsec_test", time.Now().Unix())
	if err := VerifyWebhookSignature([]byte(`{"amount":999}`), header, "whsec_test"); err == nil {
		t.Fatal("expected mismatch for tampered body")
	}
}

func TestVerifyWebhookSignature_StaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	header := signBody(t, body, "whsec_test", time.Now().Add(-10*time.Minute).Unix())
	if err := VerifyWebhookSignature(body, header, "whsec_test"); err == nil {
		t.Fatal("expected stale timestamp rejection")
	}
}

func TestVerifyWebhookSignature_MalformedHeader(t *testing.T) {
	for _, header := range []string{"", "t=abc,v1=", "v1=deadbeef", "t=123"} {
		if err := VerifyWebhookSignature([]byte(`{}`), header, "whsec_test"); err == nil {
			t.Fatalf("expected error for header %q", header)
		}
	}
}
