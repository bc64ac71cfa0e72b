package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores contacts in the relational database. The unique
// index on external_lead_id is what guarantees at-most-one contact per lead
// even under concurrent duplicate deliveries.
type PostgresRepository struct {
	pool querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("contacts: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

func newPostgresRepositoryWithQuerier(q querier) *PostgresRepository {
	if q == nil {
		panic("contacts: querier required")
	}
	return &PostgresRepository{pool: q}
}

// CreateFromLead inserts a new lead contact. A conflicting external lead id,
// whether observed before the insert or raced into existence by a concurrent
// delivery, maps to ErrDuplicateLead.
func (r *PostgresRepository) CreateFromLead(ctx context.Context, params *NewLeadParams) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}

	id := uuid.New()
	query := `
		INSERT INTO contacts (id, external_lead_id, status, source, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (external_lead_id) DO NOTHING
		RETURNING id
	`
	var inserted string
	err := r.pool.QueryRow(ctx, query,
		id,
		params.ExternalLeadID,
		StatusLead,
		params.Source,
		params.SeedNotes(),
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrDuplicateLead
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", ErrDuplicateLead
		}
		return "", fmt.Errorf("contacts: insert lead: %w", err)
	}

	return inserted, nil
}

// ApplyEnrichment merges the non-empty update fields into the row and swaps
// the pending marker in the notes for the custom answers.
func (r *PostgresRepository) ApplyEnrichment(ctx context.Context, id string, update *EnrichmentUpdate) error {
	query := `
		UPDATE contacts SET
			first_name = COALESCE(NULLIF($2, ''), first_name),
			last_name  = COALESCE(NULLIF($3, ''), last_name),
			email      = COALESCE(NULLIF($4, ''), email),
			phone      = COALESCE(NULLIF($5, ''), phone),
			company    = COALESCE(NULLIF($6, ''), company),
			city       = COALESCE(NULLIF($7, ''), city),
			notes      = REPLACE(notes, $8, $9),
			updated_at = now()
		WHERE id = $1
	`
	ct, err := r.pool.Exec(ctx, query,
		id,
		update.FirstName,
		update.LastName,
		update.Email,
		update.Phone,
		update.Company,
		update.City,
		PendingMarker,
		update.CustomNotes,
	)
	if err != nil {
		return fmt.Errorf("contacts: apply enrichment: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrContactNotFound
	}
	return nil
}

const contactColumns = `
	id, external_lead_id, status, source,
	COALESCE(first_name, ''), COALESCE(last_name, ''),
	COALESCE(email, ''), COALESCE(phone, ''),
	COALESCE(company, ''), COALESCE(city, ''),
	COALESCE(notes, ''), created_at, updated_at
`

// GetByID fetches a single contact.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	contact, err := scanContact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContactNotFound
		}
		return nil, fmt.Errorf("contacts: select contact: %w", err)
	}
	return contact, nil
}

// List returns contacts ordered newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Contact, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT ` + contactColumns + `
		FROM contacts
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, filter.Status, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("contacts: list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*Contact
	for rows.Next() {
		contact, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("contacts: scan contact: %w", err)
		}
		contacts = append(contacts, contact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("contacts: iterate contacts: %w", err)
	}
	return contacts, nil
}

func scanContact(row pgx.Row) (*Contact, error) {
	var c Contact
	if err := row.Scan(
		&c.ID,
		&c.ExternalLeadID,
		&c.Status,
		&c.Source,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.Company,
		&c.City,
		&c.Notes,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}
