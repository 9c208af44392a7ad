package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/store/memory"
)

type stubAgent struct {
	agentType domain.AgentType
	name      string
	analyze   func(ctx context.Context, snap Snapshot) (Result, error)
}

func (s *stubAgent) Type() domain.AgentType { return s.agentType }
func (s *stubAgent) Name() string           { return s.name }
func (s *stubAgent) Analyze(ctx context.Context, snap Snapshot) (Result, error) {
	return s.analyze(ctx, snap)
}

func okAgent(name string, findings ...domain.Finding) *stubAgent {
	return &stubAgent{
		agentType: domain.AgentStructural,
		name:      name,
		analyze: func(context.Context, Snapshot) (Result, error) {
			return Result{Findings: findings, Summary: name + " done"}, nil
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func emptySnapshot() Snapshot {
	return Snapshot{Graph: &domain.KnowledgeGraph{BuiltAt: time.Now().UTC()}}
}

func TestRunnerAllAgentsComplete(t *testing.T) {
	store := memory.NewAgentAnalysisStore()
	agents := []Agent{okAgent("alpha"), okAgent("beta"), okAgent("gamma")}
	r := NewRunner(agents, time.Second, store, testLogger())

	records, err := r.Run(context.Background(), emptySnapshot())
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Records come back in registration order regardless of scheduling.
	assert.Equal(t, "alpha", records[0].AgentName)
	assert.Equal(t, "beta", records[1].AgentName)
	assert.Equal(t, "gamma", records[2].AgentName)
	for _, rec := range records {
		assert.Equal(t, domain.AgentCompleted, rec.Status)
		assert.NotEmpty(t, rec.ID)
		require.NotNil(t, rec.CompletedAt)
		assert.False(t, rec.CompletedAt.Before(rec.StartedAt))
	}

	persisted, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, persisted, 3)
}

func TestRunnerIsolatesFailingAgent(t *testing.T) {
	failing := &stubAgent{
		agentType: domain.AgentTemporal,
		name:      "broken",
		analyze: func(context.Context, Snapshot) (Result, error) {
			return Result{}, errors.New("burst window underflow")
		},
	}
	agents := []Agent{okAgent("alpha"), failing, okAgent("gamma")}
	r := NewRunner(agents, time.Second, nil, testLogger())

	records, err := r.Run(context.Background(), emptySnapshot())
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, domain.AgentCompleted, records[0].Status)
	assert.Equal(t, domain.AgentFailed, records[1].Status)
	assert.Contains(t, records[1].Error, "burst window underflow")
	assert.Equal(t, domain.AgentCompleted, records[2].Status)
}

func TestRunnerIsolatesPanickingAgent(t *testing.T) {
	panicking := &stubAgent{
		agentType: domain.AgentBehavioral,
		name:      "volatile",
		analyze: func(context.Context, Snapshot) (Result, error) {
			panic("index out of range")
		},
	}
	r := NewRunner([]Agent{panicking, okAgent("alpha")}, time.Second, nil, testLogger())

	records, err := r.Run(context.Background(), emptySnapshot())
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, domain.AgentFailed, records[0].Status)
	assert.Contains(t, records[0].Error, "panicked")
	assert.Equal(t, domain.AgentCompleted, records[1].Status)
}

func TestRunnerEnforcesDeadline(t *testing.T) {
	slow := &stubAgent{
		agentType: domain.AgentStructural,
		name:      "slow",
		analyze: func(ctx context.Context, _ Snapshot) (Result, error) {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-time.After(5 * time.Second):
				return Result{}, nil
			}
		},
	}
	r := NewRunner([]Agent{slow, okAgent("fast")}, 50*time.Millisecond, nil, testLogger())

	start := time.Now()
	records, err := r.Run(context.Background(), emptySnapshot())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, domain.AgentFailed, records[0].Status)
	assert.Equal(t, domain.AgentCompleted, records[1].Status)
}

func TestRunnerReportsPersistFailure(t *testing.T) {
	store := &failingAnalysisStore{}
	r := NewRunner([]Agent{okAgent("alpha")}, time.Second, store, testLogger())

	records, err := r.Run(context.Background(), emptySnapshot())
	require.ErrorIs(t, err, domain.ErrPersistence)

	// The in-memory records survive the persistence failure.
	require.Len(t, records, 1)
	assert.Equal(t, domain.AgentCompleted, records[0].Status)
}

type failingAnalysisStore struct{}

func (f *failingAnalysisStore) Append(context.Context, domain.AgentAnalysis) error {
	return errors.New("connection reset")
}

func (f *failingAnalysisStore) ListRecent(context.Context, int) ([]domain.AgentAnalysis, error) {
	return nil, nil
}
