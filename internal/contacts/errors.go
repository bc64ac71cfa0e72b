package contacts

import "errors"

var (
	// ErrMissingLeadID is returned when the external lead id is absent
	ErrMissingLeadID = errors.New("external lead id is required")

	// ErrDuplicateLead signals that a contact for the external lead id
	// already exists. Callers treat it as "already processed", not a failure.
	ErrDuplicateLead = errors.New("lead already processed")

	// ErrContactNotFound is returned when a contact is not found
	ErrContactNotFound = errors.New("contact not found")
)
