package contacts

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle stage of a contact in the back office.
type Status string

const (
	StatusLead     Status = "lead"
	StatusCustomer Status = "customer"
	StatusArchived Status = "archived"
)

// PendingMarker is seeded into a freshly created lead's notes and replaced
// by the enrichment pass, so a note's shape shows whether answers arrived.
const PendingMarker = "[väntar på svar]"

// Contact is a persisted CRM contact. ExternalLeadID is the idempotency key:
// at most one contact exists per external lead id.
type Contact struct {
	ID             string    `json:"id"`
	ExternalLeadID string    `json:"external_lead_id"`
	Status         Status    `json:"status"`
	Source         string    `json:"source"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	Company        string    `json:"company"`
	City           string    `json:"city"`
	Notes          string    `json:"notes"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewLeadParams carries the webhook metadata used to seed a new contact.
type NewLeadParams struct {
	ExternalLeadID string
	FormID         string
	AdID           string
	PageID         string
	Source         string
	ReceivedAt     time.Time
}

// Validate validates the params for creating a lead contact.
func (p *NewLeadParams) Validate() error {
	if strings.TrimSpace(p.ExternalLeadID) == "" {
		return ErrMissingLeadID
	}
	return nil
}

// SeedNotes builds the initial notes block for a new lead contact. The
// pending marker at the end is replaced once enrichment answers arrive.
func (p *NewLeadParams) SeedNotes() string {
	received := p.ReceivedAt
	if received.IsZero() {
		received = time.Now().UTC()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Facebook lead %s\n", p.ExternalLeadID)
	if p.FormID != "" {
		fmt.Fprintf(&b, "Formulär: %s\n", p.FormID)
	}
	if p.AdID != "" {
		fmt.Fprintf(&b, "Annons: %s\n", p.AdID)
	}
	fmt.Fprintf(&b, "Mottagen: %s\n\n", received.UTC().Format(time.RFC3339))
	b.WriteString(PendingMarker)
	return b.String()
}

// EnrichmentUpdate is a partial update: empty fields are left untouched,
// never written over existing values. CustomNotes replaces the pending
// marker inside the existing notes rather than the whole notes column.
type EnrichmentUpdate struct {
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Company     string
	City        string
	CustomNotes string
}

// ListFilter narrows a contact listing.
type ListFilter struct {
	Status string
	Limit  int
	Offset int
}
