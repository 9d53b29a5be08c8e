package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lukasbauer/kaskada/internal/metrics"
)

const testSecret = "test-secret"

func TestHealthz(t *testing.T) {
	ts := newTestServer(RouterConfig{}, Services{})

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := rec.Body.String(); body != "ok" {
		t.Errorf("body = %q, want %q", body, "ok")
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(RouterConfig{JWTSecret: testSecret}, Services{})

	req := httptest.NewRequest(http.MethodOptions, "/api/conversations", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "*")
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(got, "Authorization") {
		t.Errorf("Access-Control-Allow-Headers = %q, want Authorization allowed", got)
	}
}

func TestAuth(t *testing.T) {
	ts := newTestServer(RouterConfig{JWTSecret: testSecret}, Services{})

	valid, _, err := IssueToken(testSecret, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	otherSecret, _, _ := IssueToken("other-secret", "user-1", time.Hour)
	expired, _, _ := IssueToken(testSecret, "user-1", -time.Minute)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + otherSecret, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"valid", "Bearer " + valid, http.StatusOK},
		{"lowercase scheme", "bearer " + valid, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			ts.handler.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	token, expiresAt, err := IssueToken(testSecret, "user-42", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if time.Until(expiresAt) <= 0 {
		t.Errorf("expiresAt = %v, want in the future", expiresAt)
	}

	subject, err := ParseToken(testSecret, token)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if subject != "user-42" {
		t.Errorf("subject = %q, want %q", subject, "user-42")
	}

	noSubject, _, _ := IssueToken(testSecret, "", time.Hour)
	if _, err := ParseToken(testSecret, noSubject); err == nil {
		t.Error("ParseToken() without subject should fail")
	}
}

func TestAuthDisabledUsesAnonymousOwner(t *testing.T) {
	ts := newTestServer(RouterConfig{}, Services{})
	if _, err := ts.store.CreateConversation(t.Context(), "", "Mine"); err != nil {
		t.Fatal(err)
	}
	if _, err := ts.store.CreateConversation(t.Context(), "someone", "Theirs"); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"Mine"`) {
		t.Errorf("body = %s, want the anonymous conversation", body)
	}
	if strings.Contains(body, `"Theirs"`) {
		t.Errorf("body = %s, must not list another owner's conversation", body)
	}
}

func TestMetricsRecordsRoutePattern(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	ts := newTestServer(RouterConfig{}, Services{Metrics: m})

	for range 2 {
		rec := httptest.NewRecorder()
		ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/conversations/does-not-exist", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "GET /healthz", "200")); got != 2 {
		t.Errorf("healthz requests = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "GET /api/conversations/{id}", "404")); got != 1 {
		t.Errorf("conversation 404s = %v, want 1", got)
	}

	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "voice_http_requests_total") {
		t.Error("metrics output missing voice_http_requests_total")
	}
}

func TestRoutesWithoutMetrics(t *testing.T) {
	ts := newTestServer(RouterConfig{}, Services{})

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCancelUnknownTurn(t *testing.T) {
	ts := newTestServer(RouterConfig{}, Services{})

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/turns/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
