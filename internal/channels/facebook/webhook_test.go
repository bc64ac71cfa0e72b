package facebook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/norrbit/leadbridge/internal/contacts"
	"github.com/norrbit/leadbridge/internal/dedup"
)

const testAppSecret = "test_secret"

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

type fakeFetcher struct {
	leads map[string]*LeadData
	calls int
}

func (f *fakeFetcher) FetchLeadData(ctx context.Context, leadID string) *LeadData {
	f.calls++
	return f.leads[leadID]
}

type fakeNotifier struct {
	contactIDs []string
}

func (f *fakeNotifier) NotifyNewLead(ctx context.Context, contactID string, c CanonicalFields, meta LeadMetadata) error {
	f.contactIDs = append(f.contactIDs, contactID)
	return nil
}

func leadgenEvent(leadIDs ...string) WebhookEvent {
	var changes []Change
	for _, id := range leadIDs {
		changes = append(changes, Change{
			Field: "leadgen",
			Value: LeadgenValue{LeadgenID: id, FormID: "F1", AdID: "A1", PageID: "P1"},
		})
	}
	return WebhookEvent{Object: "page", Entry: []Entry{{ID: "P1", Changes: changes}}}
}

func postEvent(t *testing.T, h *WebhookHandler, event WebhookEvent, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", bytes.NewReader(body))
	if sign {
		req.Header.Set("X-Hub-Signature-256", signBody(testAppSecret, body))
	}
	w := httptest.NewRecorder()
	h.HandleEvent(w, req)
	return w
}

func decodeProcessed(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		Success   bool `json:"success"`
		Processed int  `json:"processed"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatal("expected success=true")
	}
	return resp.Processed
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler(WebhookConfig{
		VerifyToken: "my_verify_token",
		AppSecret:   testAppSecret,
		Contacts:    contacts.NewInMemoryRepository(),
	})

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=my_verify_token&hub.challenge=CHALLENGE_123",
			nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "CHALLENGE_123" {
			t.Fatalf("expected CHALLENGE_123, got %s", w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X",
			nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("wrong mode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/facebook?hub.mode=unsubscribe&hub.verify_token=my_verify_token&hub.challenge=X",
			nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("unconfigured token rejects", func(t *testing.T) {
		bare := NewWebhookHandler(WebhookConfig{Contacts: contacts.NewInMemoryRepository()})
		req := httptest.NewRequest(http.MethodGet,
			"/webhooks/facebook?hub.mode=subscribe&hub.verify_token=&hub.challenge=X",
			nil)
		w := httptest.NewRecorder()
		bare.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}

func TestExtractLeads(t *testing.T) {
	event := WebhookEvent{Entry: []Entry{
		{Changes: []Change{
			{Field: "leadgen", Value: LeadgenValue{LeadgenID: "L1", FormID: "F1", AdID: "A1", AdgroupID: "G1", PageID: "P1"}},
			{Field: "feed"},
		}},
		{Changes: []Change{
			{Field: "leadgen", Value: LeadgenValue{LeadgenID: "L2"}},
		}},
	}}

	leads := ExtractLeads(event)
	if len(leads) != 2 {
		t.Fatalf("expected 2 leads, got %d", len(leads))
	}
	if leads[0] != (LeadMetadata{LeadID: "L1", FormID: "F1", AdID: "A1", AdGroupID: "G1", PageID: "P1"}) {
		t.Errorf("unexpected metadata: %+v", leads[0])
	}
	// Missing sub-fields degrade to empty strings.
	if leads[1].LeadID != "L2" || leads[1].FormID != "" {
		t.Errorf("unexpected lenient metadata: %+v", leads[1])
	}
}

func TestHandleEventCreatesAndEnriches(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	fetcher := &fakeFetcher{leads: map[string]*LeadData{
		"L1": {ID: "L1", FieldData: []FieldData{
			{Name: "full_name", Values: []string{"Anna Svensson"}},
			{Name: "telefon", Values: []string{"0701234567"}},
			{Name: "email", Values: []string{"anna@example.se"}},
			{Name: "takyta", Values: []string{"120 kvm"}},
		}},
	}}
	notifier := &fakeNotifier{}
	h := NewWebhookHandler(WebhookConfig{
		VerifyToken: "t",
		AppSecret:   testAppSecret,
		Contacts:    repo,
		Fetcher:     fetcher,
		Notifier:    notifier,
	})

	w := postEvent(t, h, leadgenEvent("L1"), true)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := decodeProcessed(t, w); got != 1 {
		t.Fatalf("processed = %d, want 1", got)
	}

	stored, err := repo.List(context.Background(), contacts.ListFilter{})
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected 1 contact, got %d (err=%v)", len(stored), err)
	}
	c := stored[0]
	if c.ExternalLeadID != "L1" {
		t.Errorf("external lead id = %q", c.ExternalLeadID)
	}
	if c.Status != contacts.StatusLead {
		t.Errorf("status = %q", c.Status)
	}
	if c.FirstName != "Anna" || c.LastName != "Svensson" {
		t.Errorf("name = %q %q", c.FirstName, c.LastName)
	}
	if c.Phone != "0701234567" || c.Email != "anna@example.se" {
		t.Errorf("contact details = %q %q", c.Phone, c.Email)
	}
	if !bytes.Contains([]byte(c.Notes), []byte("Takyta: 120 kvm")) {
		t.Errorf("notes missing custom answer: %q", c.Notes)
	}
	if bytes.Contains([]byte(c.Notes), []byte(contacts.PendingMarker)) {
		t.Errorf("pending marker not replaced: %q", c.Notes)
	}
	if len(notifier.contactIDs) != 1 || notifier.contactIDs[0] != c.ID {
		t.Errorf("notifier calls = %v", notifier.contactIDs)
	}
}

func TestHandleEventIdempotent(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	fetcher := &fakeFetcher{leads: map[string]*LeadData{}}
	h := NewWebhookHandler(WebhookConfig{
		AppSecret: testAppSecret,
		Contacts:  repo,
		Fetcher:   fetcher,
	})

	event := leadgenEvent("L1")

	first := postEvent(t, h, event, true)
	if got := decodeProcessed(t, first); got != 1 {
		t.Fatalf("first delivery processed = %d, want 1", got)
	}

	second := postEvent(t, h, event, true)
	if second.Code != http.StatusOK {
		t.Fatalf("second delivery status = %d, want 200", second.Code)
	}
	if got := decodeProcessed(t, second); got != 0 {
		t.Fatalf("second delivery processed = %d, want 0", got)
	}

	stored, _ := repo.List(context.Background(), contacts.ListFilter{})
	if len(stored) != 1 {
		t.Fatalf("expected exactly 1 contact after redelivery, got %d", len(stored))
	}
}

func TestHandleEventDuplicateWithinBatch(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: repo})

	w := postEvent(t, h, leadgenEvent("L1", "L1"), true)
	if got := decodeProcessed(t, w); got != 1 {
		t.Fatalf("processed = %d, want 1", got)
	}
}

func TestHandleEventMissingSignature(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: repo})

	w := postEvent(t, h, leadgenEvent("L1"), false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	stored, _ := repo.List(context.Background(), contacts.ListFilter{})
	if len(stored) != 0 {
		t.Fatalf("expected no side effects, found %d contacts", len(stored))
	}
}

func TestHandleEventTamperedBody(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: repo})

	body, _ := json.Marshal(leadgenEvent("L1"))
	sig := signBody(testAppSecret, body)
	body[len(body)-2] ^= 0x01

	req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	w := httptest.NewRecorder()
	h.HandleEvent(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestHandleEventMalformedPayload(t *testing.T) {
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: contacts.NewInMemoryRepository()})

	t.Run("invalid JSON", func(t *testing.T) {
		body := []byte("{")
		req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", signBody(testAppSecret, body))
		w := httptest.NewRecorder()
		h.HandleEvent(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("missing entry", func(t *testing.T) {
		body := []byte(`{"object":"page"}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/facebook", bytes.NewReader(body))
		req.Header.Set("X-Hub-Signature-256", signBody(testAppSecret, body))
		w := httptest.NewRecorder()
		h.HandleEvent(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestHandleEventEnrichmentFailureIsSoft(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	// Fetcher knows nothing, so every fetch returns nil.
	fetcher := &fakeFetcher{leads: map[string]*LeadData{}}
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: repo, Fetcher: fetcher})

	w := postEvent(t, h, leadgenEvent("L1"), true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decodeProcessed(t, w); got != 1 {
		t.Fatalf("processed = %d, want 1", got)
	}

	stored, _ := repo.List(context.Background(), contacts.ListFilter{})
	if len(stored) != 1 {
		t.Fatalf("expected bare contact to survive, got %d", len(stored))
	}
	if !bytes.Contains([]byte(stored[0].Notes), []byte(contacts.PendingMarker)) {
		t.Errorf("pending marker should remain without enrichment: %q", stored[0].Notes)
	}
}

func TestHandleEventIgnoresNonLeadgenChanges(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: repo})

	event := WebhookEvent{Entry: []Entry{{Changes: []Change{{Field: "feed"}}}}}
	w := postEvent(t, h, event, true)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if got := decodeProcessed(t, w); got != 0 {
		t.Fatalf("processed = %d, want 0", got)
	}
}

type staticSeen struct {
	seen   bool
	marked []string
}

func (s *staticSeen) Seen(ctx context.Context, leadID string) bool { return s.seen }
func (s *staticSeen) Mark(ctx context.Context, leadID string)      { s.marked = append(s.marked, leadID) }

func TestHandleEventSeenFilterShortCircuits(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	h := NewWebhookHandler(WebhookConfig{
		AppSecret: testAppSecret,
		Contacts:  repo,
		Seen:      &staticSeen{seen: true},
	})

	w := postEvent(t, h, leadgenEvent("L1"), true)
	if got := decodeProcessed(t, w); got != 0 {
		t.Fatalf("processed = %d, want 0", got)
	}
	stored, _ := repo.List(context.Background(), contacts.ListFilter{})
	if len(stored) != 0 {
		t.Fatalf("seen filter should prevent creation, got %d contacts", len(stored))
	}
}

func TestHandleEventMarksSeenOnlyOnSettledLeads(t *testing.T) {
	repo := contacts.NewInMemoryRepository()
	filter := &staticSeen{}
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: repo, Seen: filter})

	postEvent(t, h, leadgenEvent("L1"), true)
	if len(filter.marked) != 1 || filter.marked[0] != "L1" {
		t.Fatalf("created lead should be marked, got %v", filter.marked)
	}

	// A duplicate settled by the store is marked too, so future
	// redeliveries short-circuit before the database.
	postEvent(t, h, leadgenEvent("L1"), true)
	if len(filter.marked) != 2 {
		t.Fatalf("duplicate lead should be marked, got %v", filter.marked)
	}
}

// flakyRepo fails the first CreateFromLead calls, mimicking a transient
// database outage during a delivery.
type flakyRepo struct {
	contacts.Repository
	failures int
}

func (r *flakyRepo) CreateFromLead(ctx context.Context, params *contacts.NewLeadParams) (string, error) {
	if r.failures > 0 {
		r.failures--
		return "", errors.New("connection refused")
	}
	return r.Repository.CreateFromLead(ctx, params)
}

func TestHandleEventCreateFailureAllowsRedelivery(t *testing.T) {
	srv := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	filter := dedup.New(rdb, time.Hour, nil)

	inner := contacts.NewInMemoryRepository()
	repo := &flakyRepo{Repository: inner, failures: 1}
	h := NewWebhookHandler(WebhookConfig{AppSecret: testAppSecret, Contacts: repo, Seen: filter})

	// The store is down for the first delivery; nothing is created and the
	// batch still succeeds with nothing counted.
	first := postEvent(t, h, leadgenEvent("L1"), true)
	if first.Code != http.StatusOK {
		t.Fatalf("first delivery status = %d, want 200", first.Code)
	}
	if got := decodeProcessed(t, first); got != 0 {
		t.Fatalf("first delivery processed = %d, want 0", got)
	}

	// Redelivery with a healthy store must not be short-circuited by the
	// dedup filter: the failed create never marked the lead as seen.
	second := postEvent(t, h, leadgenEvent("L1"), true)
	if got := decodeProcessed(t, second); got != 1 {
		t.Fatalf("redelivery processed = %d, want 1", got)
	}
	stored, _ := inner.List(context.Background(), contacts.ListFilter{})
	if len(stored) != 1 {
		t.Fatalf("expected redelivery to create the contact, got %d", len(stored))
	}

	// A third delivery now short-circuits on the filter.
	third := postEvent(t, h, leadgenEvent("L1"), true)
	if got := decodeProcessed(t, third); got != 0 {
		t.Fatalf("third delivery processed = %d, want 0", got)
	}
}
