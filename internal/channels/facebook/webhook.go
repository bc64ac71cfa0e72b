package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/norrbit/leadbridge/internal/contacts"
	"github.com/norrbit/leadbridge/internal/observability/metrics"
	"github.com/norrbit/leadbridge/pkg/logging"
)

// Source tag stamped onto contacts created by this ingestion channel.
const leadSource = "facebook_lead_ads"

// LeadFetcher retrieves the full answers for a lead. A nil result means the
// base record stands without enrichment.
type LeadFetcher interface {
	FetchLeadData(ctx context.Context, leadID string) *LeadData
}

// SeenFilter is an advisory fast-path duplicate check. Reporting a lead as
// unseen is always safe; the store's unique key is the real guarantee. Mark
// is called only once the store has settled the lead (created or duplicate),
// so a transiently failed create stays unmarked and a redelivery retries it.
type SeenFilter interface {
	Seen(ctx context.Context, leadID string) bool
	Mark(ctx context.Context, leadID string)
}

// Notifier tells the back office about a freshly created contact.
type Notifier interface {
	NotifyNewLead(ctx context.Context, contactID string, c CanonicalFields, meta LeadMetadata) error
}

// WebhookHandler handles Facebook Lead Ads webhook verification and
// inbound lead deliveries.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	contacts    contacts.Repository
	fetcher     LeadFetcher
	seen        SeenFilter
	notifier    Notifier
	metrics     *metrics.WebhookMetrics
	logger      *logging.Logger
}

// WebhookConfig wires the handler's collaborators. Fetcher, Seen, Notifier
// and Metrics are optional; the handler degrades gracefully without them.
type WebhookConfig struct {
	VerifyToken string
	AppSecret   string
	Contacts    contacts.Repository
	Fetcher     LeadFetcher
	Seen        SeenFilter
	Notifier    Notifier
	Metrics     *metrics.WebhookMetrics
	Logger      *logging.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Contacts == nil {
		panic("facebook: contacts repository required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		verifyToken: cfg.VerifyToken,
		appSecret:   cfg.AppSecret,
		contacts:    cfg.Contacts,
		fetcher:     cfg.Fetcher,
		seen:        cfg.Seen,
		notifier:    cfg.Notifier,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	writeJSONError(w, http.StatusForbidden, "verification failed")
}

// HandleEvent handles POST webhook deliveries. Signature and payload-shape
// failures abort the whole request; everything after that is per-lead and
// soft, so a batch always runs to completion once accepted.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.metrics.ObserveDelivery("read_error")
		writeJSONError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if !VerifySignature(h.appSecret, body, signature) {
		h.logger.Warn("facebook: webhook signature rejected", "have_header", signature != "")
		h.metrics.ObserveDelivery("unauthorized")
		writeJSONError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.metrics.ObserveDelivery("malformed")
		writeJSONError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if len(event.Entry) == 0 {
		h.metrics.ObserveDelivery("malformed")
		writeJSONError(w, http.StatusBadRequest, "missing entry")
		return
	}

	processed := 0
	for _, meta := range ExtractLeads(event) {
		if h.processLead(r.Context(), meta) {
			processed++
		}
	}

	h.metrics.ObserveDelivery("ok")
	h.metrics.ObserveBatchLatency("ok", time.Since(start).Seconds())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"processed": processed,
	})
}

// ExtractLeads projects the leadgen changes out of a webhook event. It is
// lenient on shape: missing sub-fields become empty strings, never errors.
func ExtractLeads(event WebhookEvent) []LeadMetadata {
	var leads []LeadMetadata
	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			if change.Field != "leadgen" {
				continue
			}
			leads = append(leads, LeadMetadata{
				LeadID:    change.Value.LeadgenID,
				FormID:    change.Value.FormID,
				AdID:      change.Value.AdID,
				AdGroupID: change.Value.AdgroupID,
				PageID:    change.Value.PageID,
			})
		}
	}
	return leads
}

// processLead runs the create → fetch → normalize → enrich pipeline for one
// lead. It reports whether a new contact was created; duplicates and per-lead
// failures return false without aborting the batch.
func (h *WebhookHandler) processLead(ctx context.Context, meta LeadMetadata) bool {
	if meta.LeadID == "" {
		h.logger.Warn("facebook: leadgen change without lead id, skipping")
		h.metrics.ObserveLead("invalid")
		return false
	}

	log := h.logger.With("lead_id", meta.LeadID)

	if h.seen != nil && h.seen.Seen(ctx, meta.LeadID) {
		log.Debug("facebook: lead already seen, skipping")
		h.metrics.ObserveLead("duplicate")
		return false
	}

	contactID, err := h.contacts.CreateFromLead(ctx, &contacts.NewLeadParams{
		ExternalLeadID: meta.LeadID,
		FormID:         meta.FormID,
		AdID:           meta.AdID,
		PageID:         meta.PageID,
		Source:         leadSource,
		ReceivedAt:     time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, contacts.ErrDuplicateLead) {
			log.Debug("facebook: duplicate lead delivery, skipping")
			h.metrics.ObserveLead("duplicate")
			h.markSeen(ctx, meta.LeadID)
			return false
		}
		// Not marked as seen: the next delivery of this lead retries the create.
		log.Error("facebook: create contact failed", "error", err)
		h.metrics.ObserveLead("error")
		return false
	}

	log.Info("facebook: lead contact created", "contact_id", contactID)
	h.metrics.ObserveLead("created")
	h.markSeen(ctx, meta.LeadID)

	// Enrichment from here on is best effort; the base record stands.
	if h.fetcher == nil {
		return true
	}
	lead := h.fetcher.FetchLeadData(ctx, meta.LeadID)
	if lead == nil {
		log.Warn("facebook: lead enrichment unavailable, keeping bare contact", "contact_id", contactID)
		h.metrics.ObserveEnrichment("failed")
		return true
	}
	h.metrics.ObserveEnrichment("ok")

	norm := Normalize(lead.FieldData)
	if norm.Canonical.Phone == "" {
		log.Warn("facebook: no phone number in lead answers", "contact_id", contactID)
	}

	update := &contacts.EnrichmentUpdate{
		FirstName:   norm.Canonical.FirstName,
		LastName:    norm.Canonical.LastName,
		Email:       norm.Canonical.Email,
		Phone:       norm.Canonical.Phone,
		Company:     norm.Canonical.Company,
		City:        norm.Canonical.City,
		CustomNotes: norm.Notes(),
	}
	if err := h.contacts.ApplyEnrichment(ctx, contactID, update); err != nil {
		log.Error("facebook: enrichment update failed, contact keeps metadata only",
			"contact_id", contactID, "error", err)
	}

	if h.notifier != nil {
		if err := h.notifier.NotifyNewLead(ctx, contactID, norm.Canonical, meta); err != nil {
			log.Warn("facebook: new lead notification failed", "error", err)
		}
	}

	return true
}

func (h *WebhookHandler) markSeen(ctx context.Context, leadID string) {
	if h.seen != nil {
		h.seen.Mark(ctx, leadID)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
