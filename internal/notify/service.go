package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/norrbit/leadbridge/internal/channels/facebook"
	"github.com/norrbit/leadbridge/pkg/logging"
)

// Service mails the back office when a new lead lands.
type Service struct {
	email         EmailSender
	recipients    []string
	publicBaseURL string
	logger        *logging.Logger
}

// NewService creates a notification service. With no sender or no recipients
// the service is a no-op. publicBaseURL, when set, is used to link the mail
// to the contact in the admin API.
func NewService(email EmailSender, recipients []string, publicBaseURL string, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		email:         email,
		recipients:    recipients,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		logger:        logger,
	}
}

// NotifyNewLead sends a summary of a freshly ingested lead to every
// configured recipient. Notification is best effort: per-recipient failures
// are collected but never block lead processing.
func (s *Service) NotifyNewLead(ctx context.Context, contactID string, c facebook.CanonicalFields, meta facebook.LeadMetadata) error {
	if s == nil || s.email == nil || len(s.recipients) == 0 {
		return nil
	}

	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		name = "Okänd"
	}

	subject := fmt.Sprintf("Ny lead: %s", name)

	var b strings.Builder
	fmt.Fprintf(&b, "En ny lead har kommit in via Facebook Lead Ads.\n\n")
	fmt.Fprintf(&b, "Namn: %s\n", name)
	if c.Email != "" {
		fmt.Fprintf(&b, "E-post: %s\n", c.Email)
	}
	if c.Phone != "" {
		fmt.Fprintf(&b, "Telefon: %s\n", c.Phone)
	}
	if c.Company != "" {
		fmt.Fprintf(&b, "Företag: %s\n", c.Company)
	}
	if c.City != "" {
		fmt.Fprintf(&b, "Ort: %s\n", c.City)
	}
	fmt.Fprintf(&b, "\nLead-id: %s\nFormulär: %s\nKontakt: %s\n", meta.LeadID, meta.FormID, contactID)
	if s.publicBaseURL != "" {
		fmt.Fprintf(&b, "Länk: %s/admin/contacts/%s\n", s.publicBaseURL, contactID)
	}

	var errs []error
	for _, recipient := range s.recipients {
		msg := EmailMessage{
			To:      recipient,
			Subject: subject,
			Body:    b.String(),
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("notify: new lead email failed", "to", recipient, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
