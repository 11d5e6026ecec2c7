package supplier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dispatchflow/fault"
)

// ErrNotFound signals the requested supplier company does not exist.
var ErrNotFound = fault.NotFound("supplier: company not found")

// Repository provides read access to supplier companies.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a supplier company by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Company, error) {
	const query = `
		SELECT id, legal_name, included_km, included_minutes, is_active, created_at
		FROM supplier_companies
		WHERE id = $1
	`

	var company Company
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&company.ID,
		&company.LegalName,
		&company.IncludedKm,
		&company.IncludedMinutes,
		&company.IsActive,
		&company.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("supplier: query by id: %w", err)
	}

	return company, nil
}

// ActiveIDs returns the subset of ids that resolve to currently active
// companies. Used by dispatch creation to reject inactive or unknown
// suppliers before fanning out quotes.
func (r *Repository) ActiveIDs(ctx context.Context, tx pgx.Tx, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	const query = `
		SELECT id
		FROM supplier_companies
		WHERE id = ANY($1) AND is_active
	`

	rows, err := tx.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("supplier: query active ids: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("supplier: scan active id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("supplier: iterate active ids: %w", err)
	}

	return out, nil
}

// List fetches up to limit active supplier companies ordered by name.
func (r *Repository) List(ctx context.Context, limit int) ([]Company, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, legal_name, included_km, included_minutes, is_active, created_at
		FROM supplier_companies
		WHERE is_active
		ORDER BY legal_name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("supplier: list: %w", err)
	}
	defer rows.Close()

	companies := make([]Company, 0, limit)
	for rows.Next() {
		var company Company
		if err := rows.Scan(&company.ID, &company.LegalName, &company.IncludedKm, &company.IncludedMinutes, &company.IsActive, &company.CreatedAt); err != nil {
			return nil, fmt.Errorf("supplier: scan company: %w", err)
		}
		companies = append(companies, company)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("supplier: iterate companies: %w", err)
	}

	return companies, nil
}
