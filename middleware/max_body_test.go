package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimitMiddleware_CapsReads(t *testing.T) {
	t.Setenv("MAX_REQUEST_BODY_BYTES", "16")

	var readErr error
	h := BodyLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/investments", strings.NewReader(strings.Repeat("a", 64)))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if readErr == nil {
		t.Fatal("expected read past the cap to fail")
	}
}

func TestBodyLimitMiddleware_AllowsSmallBody(t *testing.T) {
	t.Setenv("MAX_REQUEST_BODY_BYTES", "1024")

	var got []byte
	h := BodyLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/investments", strings.NewReader(`{"amount":"100"}`))
	h.ServeHTTP(httptest.NewRecorder(), req)

	if string(got) != `{"amount":"100"}` {
		t.Fatalf("body mangled: %q", got)
	}
}
