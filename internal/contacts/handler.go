package contacts

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/norrbit/leadbridge/pkg/logging"
)

// Handler handles HTTP requests for contacts
type Handler struct {
	repo   Repository
	logger *logging.Logger
}

// NewHandler creates a new contacts handler
func NewHandler(repo Repository, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		repo:   repo,
		logger: logger,
	}
}

// ListContactsResponse is the response for listing contacts
type ListContactsResponse struct {
	Contacts []*Contact `json:"contacts"`
	Count    int        `json:"count"`
	Offset   int        `json:"offset"`
	Limit    int        `json:"limit"`
}

// ListContacts handles GET /admin/contacts requests
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Limit:  50,
		Offset: 0,
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 && limit <= 100 {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	if status := r.URL.Query().Get("status"); status != "" {
		filter.Status = status
	}

	contacts, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list contacts", "error", err)
		http.Error(w, "failed to list contacts", http.StatusInternalServerError)
		return
	}

	response := ListContactsResponse{
		Contacts: contacts,
		Count:    len(contacts),
		Offset:   filter.Offset,
		Limit:    filter.Limit,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// GetContact handles GET /admin/contacts/{contactID} requests
func (h *Handler) GetContact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "contactID")
	if id == "" {
		http.Error(w, "missing contact id", http.StatusBadRequest)
		return
	}

	contact, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrContactNotFound) {
			http.Error(w, "contact not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to get contact", "error", err, "contact_id", id)
		http.Error(w, "failed to get contact", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(contact)
}
