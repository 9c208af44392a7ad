package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// RingStore implements domain.RingStore using PostgreSQL.
type RingStore struct {
	pool *pgxpool.Pool
}

var _ domain.RingStore = (*RingStore)(nil)

// NewRingStore creates a new RingStore backed by the given connection pool.
func NewRingStore(pool *pgxpool.Pool) *RingStore {
	return &RingStore{pool: pool}
}

const ringSelectCols = `id, name, type, account_ids, severity, confidence,
	exposure, evidence, status, ai_summary, created_at, updated_at`

// Create inserts a new ring. Returns domain.ErrAlreadyExists on id conflict.
func (s *RingStore) Create(ctx context.Context, r domain.FraudRing) error {
	accountsJSON, err := json.Marshal(r.AccountIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal ring account ids: %w", err)
	}
	evidenceJSON, err := json.Marshal(r.Evidence)
	if err != nil {
		return fmt.Errorf("postgres: marshal ring evidence: %w", err)
	}

	const query = `
		INSERT INTO fraud_rings (
			id, name, type, account_ids, severity, confidence,
			exposure, evidence, status, ai_summary, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		r.ID, r.Name, r.Type, accountsJSON, r.Severity, r.Confidence,
		r.Exposure, evidenceJSON, r.Status, r.AISummary, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create ring %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyExists
	}
	return nil
}

// Update rewrites the detector-owned columns of an existing ring. Status and
// created_at are preserved; review workflows own status via UpdateStatus.
func (s *RingStore) Update(ctx context.Context, r domain.FraudRing) error {
	accountsJSON, err := json.Marshal(r.AccountIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal ring account ids: %w", err)
	}
	evidenceJSON, err := json.Marshal(r.Evidence)
	if err != nil {
		return fmt.Errorf("postgres: marshal ring evidence: %w", err)
	}

	const query = `
		UPDATE fraud_rings SET
			name = $2, type = $3, account_ids = $4, severity = $5,
			confidence = $6, exposure = $7, evidence = $8,
			ai_summary = $9, updated_at = $10
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		r.ID, r.Name, r.Type, accountsJSON, r.Severity,
		r.Confidence, r.Exposure, evidenceJSON,
		r.AISummary, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update ring %s: %w", r.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanRing(row pgx.Row) (domain.FraudRing, error) {
	var r domain.FraudRing
	var accountsJSON, evidenceJSON []byte
	err := row.Scan(
		&r.ID, &r.Name, &r.Type, &accountsJSON, &r.Severity, &r.Confidence,
		&r.Exposure, &evidenceJSON, &r.Status, &r.AISummary, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return domain.FraudRing{}, err
	}
	if accountsJSON != nil {
		if err := json.Unmarshal(accountsJSON, &r.AccountIDs); err != nil {
			return domain.FraudRing{}, fmt.Errorf("unmarshal ring account ids: %w", err)
		}
	}
	if evidenceJSON != nil {
		if err := json.Unmarshal(evidenceJSON, &r.Evidence); err != nil {
			return domain.FraudRing{}, fmt.Errorf("unmarshal ring evidence: %w", err)
		}
	}
	return r, nil
}

// GetByID returns the ring with the given id, or domain.ErrNotFound.
func (s *RingStore) GetByID(ctx context.Context, id string) (domain.FraudRing, error) {
	query := `SELECT ` + ringSelectCols + ` FROM fraud_rings WHERE id = $1`
	r, err := scanRing(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FraudRing{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.FraudRing{}, fmt.Errorf("postgres: get ring %s: %w", id, err)
	}
	return r, nil
}

// ListOpen returns all rings whose status is open, ordered by last update.
func (s *RingStore) ListOpen(ctx context.Context) ([]domain.FraudRing, error) {
	query := `SELECT ` + ringSelectCols + ` FROM fraud_rings WHERE status = 'open' ORDER BY updated_at DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open rings: %w", err)
	}
	defer rows.Close()

	var rings []domain.FraudRing
	for rows.Next() {
		r, err := scanRing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ring: %w", err)
		}
		rings = append(rings, r)
	}
	return rings, rows.Err()
}

// List returns rings with pagination and optional time filtering on updated_at.
func (s *RingStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.FraudRing, error) {
	query := `SELECT ` + ringSelectCols + ` FROM fraud_rings WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND updated_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND updated_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY updated_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list rings: %w", err)
	}
	defer rows.Close()

	var rings []domain.FraudRing
	for rows.Next() {
		r, err := scanRing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan ring: %w", err)
		}
		rings = append(rings, r)
	}
	return rings, rows.Err()
}

// UpdateStatus moves a ring through its review lifecycle.
func (s *RingStore) UpdateStatus(ctx context.Context, id string, status domain.RingStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fraud_rings SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("postgres: update ring status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
