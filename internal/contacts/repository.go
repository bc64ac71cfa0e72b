package contacts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for contact storage.
type Repository interface {
	// CreateFromLead persists a new lead contact and returns its id.
	// Returns ErrDuplicateLead when a contact with the same external lead
	// id already exists; the existing record is left untouched.
	CreateFromLead(ctx context.Context, params *NewLeadParams) (string, error)

	// ApplyEnrichment merges the non-empty fields of the update into the
	// contact. The pending marker in the notes is replaced by CustomNotes.
	ApplyEnrichment(ctx context.Context, id string, update *EnrichmentUpdate) error

	GetByID(ctx context.Context, id string) (*Contact, error)
	List(ctx context.Context, filter ListFilter) ([]*Contact, error)
}

// InMemoryRepository is a Repository backed by process memory. It is used
// in development when no database is configured, and in handler tests.
type InMemoryRepository struct {
	mu       sync.RWMutex
	contacts map[string]*Contact
	byLeadID map[string]string
}

// NewInMemoryRepository creates a new in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		contacts: make(map[string]*Contact),
		byLeadID: make(map[string]string),
	}
}

// CreateFromLead creates a new lead contact in memory.
func (r *InMemoryRepository) CreateFromLead(ctx context.Context, params *NewLeadParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byLeadID[params.ExternalLeadID]; exists {
		return "", ErrDuplicateLead
	}

	now := time.Now().UTC()
	contact := &Contact{
		ID:             uuid.New().String(),
		ExternalLeadID: params.ExternalLeadID,
		Status:         StatusLead,
		Source:         params.Source,
		Notes:          params.SeedNotes(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.contacts[contact.ID] = contact
	r.byLeadID[params.ExternalLeadID] = contact.ID

	return contact.ID, nil
}

// ApplyEnrichment merges non-empty update fields into the stored contact.
func (r *InMemoryRepository) ApplyEnrichment(ctx context.Context, id string, update *EnrichmentUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	contact, ok := r.contacts[id]
	if !ok {
		return ErrContactNotFound
	}

	setIfPresent(&contact.FirstName, update.FirstName)
	setIfPresent(&contact.LastName, update.LastName)
	setIfPresent(&contact.Email, update.Email)
	setIfPresent(&contact.Phone, update.Phone)
	setIfPresent(&contact.Company, update.Company)
	setIfPresent(&contact.City, update.City)
	contact.Notes = strings.Replace(contact.Notes, PendingMarker, update.CustomNotes, 1)
	contact.UpdatedAt = time.Now().UTC()

	return nil
}

// GetByID retrieves a contact by id.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contact, ok := r.contacts[id]
	if !ok {
		return nil, ErrContactNotFound
	}

	copied := *contact
	return &copied, nil
}

// List returns contacts ordered newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter ListFilter) ([]*Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []*Contact
	for _, c := range r.contacts {
		if filter.Status != "" && string(c.Status) != filter.Status {
			continue
		}
		copied := *c
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	if filter.Offset >= len(all) {
		return nil, nil
	}
	all = all[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}
	return all, nil
}

func setIfPresent(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
