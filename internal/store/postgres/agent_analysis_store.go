package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// AgentAnalysisStore implements domain.AgentAnalysisStore using PostgreSQL.
// The table is an append-only log; existing rows are never updated.
type AgentAnalysisStore struct {
	pool *pgxpool.Pool
}

var _ domain.AgentAnalysisStore = (*AgentAnalysisStore)(nil)

// NewAgentAnalysisStore creates a new AgentAnalysisStore backed by the given pool.
func NewAgentAnalysisStore(pool *pgxpool.Pool) *AgentAnalysisStore {
	return &AgentAnalysisStore{pool: pool}
}

// Append inserts one agent record. Findings and metrics are stored as JSONB.
func (s *AgentAnalysisStore) Append(ctx context.Context, a domain.AgentAnalysis) error {
	findingsJSON, err := json.Marshal(a.Findings)
	if err != nil {
		return fmt.Errorf("postgres: marshal findings: %w", err)
	}
	metricsJSON, err := json.Marshal(a.Metrics)
	if err != nil {
		return fmt.Errorf("postgres: marshal metrics: %w", err)
	}

	const query = `
		INSERT INTO agent_analysis_logs (
			id, agent_type, agent_name, status,
			started_at, completed_at, findings, summary, metrics, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.AgentType, a.AgentName, a.Status,
		a.StartedAt, a.CompletedAt, findingsJSON, a.Summary, metricsJSON, a.Error,
	)
	if err != nil {
		return fmt.Errorf("postgres: append agent analysis %s: %w", a.ID, err)
	}
	return nil
}

// ListRecent returns the most recent agent records, newest first.
func (s *AgentAnalysisStore) ListRecent(ctx context.Context, limit int) ([]domain.AgentAnalysis, error) {
	const query = `
		SELECT id, agent_type, agent_name, status,
		       started_at, completed_at, findings, summary, metrics, error
		FROM agent_analysis_logs
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent agent analyses: %w", err)
	}
	defer rows.Close()

	var records []domain.AgentAnalysis
	for rows.Next() {
		var a domain.AgentAnalysis
		var findingsJSON, metricsJSON []byte

		if err := rows.Scan(
			&a.ID, &a.AgentType, &a.AgentName, &a.Status,
			&a.StartedAt, &a.CompletedAt, &findingsJSON, &a.Summary, &metricsJSON, &a.Error,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan agent analysis: %w", err)
		}

		if findingsJSON != nil {
			if err := json.Unmarshal(findingsJSON, &a.Findings); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal findings: %w", err)
			}
		}
		if metricsJSON != nil {
			if err := json.Unmarshal(metricsJSON, &a.Metrics); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal metrics: %w", err)
			}
		}

		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent agent analyses rows: %w", err)
	}
	return records, nil
}
