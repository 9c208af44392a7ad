package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL. The table
// is an append-only log.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a new SnapshotStore backed by the given pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

const snapshotSelectCols = `id, total_nodes, total_edges, fraud_edges, fraud_nodes, avg_risk_score, created_at`

// Append inserts one snapshot row.
func (s *SnapshotStore) Append(ctx context.Context, snap domain.GraphSnapshot) error {
	const query = `
		INSERT INTO graph_snapshots (total_nodes, total_edges, fraud_edges, fraud_nodes, avg_risk_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, query,
		snap.TotalNodes, snap.TotalEdges, snap.FraudEdges, snap.FraudNodes,
		snap.AvgRiskScore, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append graph snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot, or domain.ErrNotFound if none exist.
func (s *SnapshotStore) Latest(ctx context.Context) (domain.GraphSnapshot, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM graph_snapshots ORDER BY created_at DESC LIMIT 1`

	var snap domain.GraphSnapshot
	err := s.pool.QueryRow(ctx, query).Scan(
		&snap.ID, &snap.TotalNodes, &snap.TotalEdges, &snap.FraudEdges,
		&snap.FraudNodes, &snap.AvgRiskScore, &snap.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.GraphSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.GraphSnapshot{}, fmt.Errorf("postgres: latest graph snapshot: %w", err)
	}
	return snap, nil
}

// ListRecent returns the most recent snapshots, newest first. A limit of
// zero or less returns all snapshots.
func (s *SnapshotStore) ListRecent(ctx context.Context, limit int) ([]domain.GraphSnapshot, error) {
	query := `SELECT ` + snapshotSelectCols + ` FROM graph_snapshots ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent graph snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.GraphSnapshot
	for rows.Next() {
		var snap domain.GraphSnapshot
		if err := rows.Scan(
			&snap.ID, &snap.TotalNodes, &snap.TotalEdges, &snap.FraudEdges,
			&snap.FraudNodes, &snap.AvgRiskScore, &snap.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan graph snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
