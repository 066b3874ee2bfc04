package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/KavinduTheekshana/CeylonAyurvedaApp-sub001/services"
)

func testClient(server *httptest.Server) *Client {
	return &Client{
		baseURL:    server.URL,
		secretKey:  "sk_test",
		httpClient: &http.Client{Timeout: 5 * time.Second},
	}
}

func TestMapIntentStatus(t *testing.T) {
	cases := []struct {
		status   string
		declined bool
		want     services.IntentStatus
	}{
		{"succeeded", false, services.IntentSucceeded},
		{"processing", false, services.IntentProcessing},
		{"canceled", false, services.IntentFailed},
		{"requires_payment_method", true, services.IntentFailed},
		{"requires_payment_method", false, services.IntentRequiresAction},
		{"requires_action", false, services.IntentRequiresAction},
		{"requires_confirmation", false, services.IntentRequiresAction},
	}
	for _, tc := range cases {
		intent := intentResponse{Status: tc.status}
		if tc.declined {
			intent.LastPaymentError = &struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}{Code: "card_declined", Message: "declined"}
		}
		if got := mapIntentStatus(intent); got != tc.want {
			t.Errorf("status=%s declined=%v: got %s, want %s", tc.status, tc.declined, got, tc.want)
		}
	}
}

func TestCreateIntent_SendsMinorUnits(t *testing.T) {
	var gotAmount, gotCurrency string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotAmount = r.PostFormValue("amount")
		gotCurrency = r.PostFormValue("currency")
		w.Write([]byte(`{"id":"pi_1","client_secret":"cs_1","status":"requires_action"}`))
	}))
	defer server.Close()

	id, secret, err := testClient(server).CreateIntent(context.Background(), decimal.RequireFromString("250.50"), "GBP", map[string]string{"investment_reference": "INV-1"})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if id != "pi_1" || secret != "cs_1" {
		t.Fatalf("unexpected intent %s / %s", id, secret)
	}
	if gotAmount != "25050" {
		t.Fatalf("expected 25050 pence, got %s", gotAmount)
	}
	if gotCurrency != "gbp" {
		t.Fatalf("expected lowercase currency, got %s", gotCurrency)
	}
}

func TestGetIntentStatus_ReturnsRawBody(t *testing.T) {
	raw := `{"id":"pi_1","status":"succeeded"}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(raw))
	}))
	defer server.Close()

	status, body, err := testClient(server).GetIntentStatus(context.Background(), "pi_1")
	if err != nil {
		t.Fatalf("GetIntentStatus: %v", err)
	}
	if status != services.IntentSucceeded {
		t.Fatalf("expected succeeded, got %s", status)
	}
	if body != raw {
		t.Fatalf("raw body must round-trip for the audit trail, got %q", body)
	}
}

func TestDo_ServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	_, _, err := testClient(server).GetIntentStatus(context.Background(), "pi_1")
	if err == nil {
		t.Fatal("expected error")
	}
	var terr *transientError
	if !errors.As(err, &terr) {
		t.Fatalf("expected transientError for 5xx, got %T: %v", err, err)
	}
	// Reconciliation checks the marker method, not the concrete type.
	var marked interface{ Transient() bool }
	if !errors.As(err, &marked) || !marked.Transient() {
		t.Fatalf("5xx error must carry Transient() true: %v", err)
	}
}

func TestDo_NetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // connection refused from here on

	_, _, err := testClient(server).GetIntentStatus(context.Background(), "pi_1")
	if err == nil {
		t.Fatal("expected error")
	}
	var marked interface{ Transient() bool }
	if !errors.As(err, &marked) || !marked.Transient() {
		t.Fatalf("network failure must carry Transient() true: %v", err)
	}
}

func TestDo_ClientErrorIsNotTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"type":"invalid_request_error"}}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, _, err := testClient(server).GetIntentStatus(context.Background(), "pi_unknown")
	if err == nil {
		t.Fatal("expected error")
	}
	var terr *transientError
	if errors.As(err, &terr) {
		t.Fatal("4xx must not be transient")
	}
}
