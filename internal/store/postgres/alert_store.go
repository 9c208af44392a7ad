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

// AlertStore implements domain.AlertStore using PostgreSQL. Rows are
// append-only apart from the acknowledged flag.
type AlertStore struct {
	pool *pgxpool.Pool
}

var _ domain.AlertStore = (*AlertStore)(nil)

// NewAlertStore creates a new AlertStore backed by the given connection pool.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

const alertSelectCols = `id, type, severity, title, description, entity_ids,
	COALESCE(ring_id, ''), acknowledged, ai_explanation, created_at`

// Append inserts one alert.
func (s *AlertStore) Append(ctx context.Context, a domain.LunarAlert) error {
	entityJSON, err := json.Marshal(a.EntityIDs)
	if err != nil {
		return fmt.Errorf("postgres: marshal alert entity ids: %w", err)
	}

	const query = `
		INSERT INTO lunar_alerts (
			id, type, severity, title, description,
			entity_ids, ring_id, acknowledged, ai_explanation, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10)`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.Type, a.Severity, a.Title, a.Description,
		entityJSON, a.RingID, a.Acknowledged, a.AIExplanation, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append alert %s: %w", a.ID, err)
	}
	return nil
}

func scanAlert(row pgx.Row) (domain.LunarAlert, error) {
	var a domain.LunarAlert
	var entityJSON []byte
	err := row.Scan(
		&a.ID, &a.Type, &a.Severity, &a.Title, &a.Description,
		&entityJSON, &a.RingID, &a.Acknowledged, &a.AIExplanation, &a.CreatedAt,
	)
	if err != nil {
		return domain.LunarAlert{}, err
	}
	if entityJSON != nil {
		if err := json.Unmarshal(entityJSON, &a.EntityIDs); err != nil {
			return domain.LunarAlert{}, fmt.Errorf("unmarshal entity ids: %w", err)
		}
	}
	return a, nil
}

// ListRecent returns the most recent alerts, newest first.
func (s *AlertStore) ListRecent(ctx context.Context, limit int) ([]domain.LunarAlert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM lunar_alerts ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []domain.LunarAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetByID returns the alert with the given id, or domain.ErrNotFound.
func (s *AlertStore) GetByID(ctx context.Context, id string) (domain.LunarAlert, error) {
	query := `SELECT ` + alertSelectCols + ` FROM lunar_alerts WHERE id = $1`
	a, err := scanAlert(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LunarAlert{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.LunarAlert{}, fmt.Errorf("postgres: get alert %s: %w", id, err)
	}
	return a, nil
}

// Acknowledge sets the acknowledged flag on an alert. Returns
// domain.ErrNotFound if no such alert exists.
func (s *AlertStore) Acknowledge(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE lunar_alerts SET acknowledged = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: acknowledge alert %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
