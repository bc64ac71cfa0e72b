package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/norrbit/leadbridge/internal/channels/facebook"
	"github.com/norrbit/leadbridge/internal/contacts"
	"github.com/norrbit/leadbridge/pkg/logging"
)

func newTestRouter(t *testing.T, repo contacts.Repository) http.Handler {
	t.Helper()
	webhook := facebook.NewWebhookHandler(facebook.WebhookConfig{
		VerifyToken: "verify-token",
		AppSecret:   "app-secret",
		Contacts:    repo,
	})
	return New(&Config{
		Logger:          logging.Default(),
		WebhookHandler:  webhook,
		ContactsHandler: contacts.NewHandler(repo, logging.Default()),
		MetricsHandler:  http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		AdminJWTSecret: "admin-secret",
	})
}

func TestHealthCheck(t *testing.T) {
	r := newTestRouter(t, contacts.NewInMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestWebhookVerificationRouted(t *testing.T) {
	r := newTestRouter(t, contacts.NewInMemoryRepository())

	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=1234", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := w.Body.String(); got != "1234" {
		t.Errorf("expected challenge echoed, got %q", got)
	}
}

func TestWebhookEventRouted(t *testing.T) {
	r := newTestRouter(t, contacts.NewInMemoryRepository())

	// No signature header, so the handler must reject rather than 404.
	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestMetricsRouted(t *testing.T) {
	r := newTestRouter(t, contacts.NewInMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAdminRequiresJWT(t *testing.T) {
	r := newTestRouter(t, contacts.NewInMemoryRepository())

	req := httptest.NewRequest(http.MethodGet, "/admin/contacts", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestAdminContactsWithJWT(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	if _, err := repo.CreateFromLead(context.Background(), &contacts.NewLeadParams{
		ExternalLeadID: "L1",
		Source:         "facebook_lead_ads",
	}); err != nil {
		t.Fatalf("seed contact: %v", err)
	}
	r := newTestRouter(t, repo)

	req := httptest.NewRequest(http.MethodGet, "/admin/contacts", nil)
	req.Header.Set("Authorization", "Bearer "+signedAdminToken(t, "admin-secret"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp contacts.ListContactsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp.Count != 1 {
		t.Errorf("expected 1 contact, got %d", resp.Count)
	}
}

func signedAdminToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "admin-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
