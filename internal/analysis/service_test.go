package analysis

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

type serviceFixture struct {
	svc    *Service
	agents domain.AgentAnalysisStore
	alerts domain.AlertStore
	rings  domain.RingStore
	snaps  domain.SnapshotStore
}

func newFixture(t *testing.T) serviceFixture {
	t.Helper()
	agents := memory.NewAgentAnalysisStore()
	alerts := memory.NewAlertStore()
	rings := memory.NewRingStore()
	snaps := memory.NewSnapshotStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return serviceFixture{
		svc:    NewService(DefaultConfig(), agents, alerts, rings, snaps, logger),
		agents: agents,
		alerts: alerts,
		rings:  rings,
		snaps:  snaps,
	}
}

func completedAt(agentType domain.AgentType, done time.Time) domain.AgentAnalysis {
	return domain.AgentAnalysis{
		ID:          string(agentType) + "-" + done.Format(time.RFC3339Nano),
		AgentType:   agentType,
		AgentName:   string(agentType) + "-agent",
		Status:      domain.AgentCompleted,
		StartedAt:   done.Add(-5 * time.Second),
		CompletedAt: &done,
	}
}

func TestLoadLatestEmptyStore(t *testing.T) {
	f := newFixture(t)

	_, ok := f.svc.LoadLatest(context.Background())
	assert.False(t, ok)
}

func TestLoadLatestCoherentRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentStructural, base)))
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentTemporal, base.Add(10*time.Second))))
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentBehavioral, base.Add(30*time.Second))))

	require.NoError(t, f.alerts.Append(ctx, domain.LunarAlert{ID: "al-1", Type: domain.AlertRing, CreatedAt: base}))
	require.NoError(t, f.rings.Create(ctx, domain.FraudRing{ID: "r1", Status: domain.RingOpen, AccountIDs: []string{"a", "b"}}))
	require.NoError(t, f.snaps.Append(ctx, domain.GraphSnapshot{AvgRiskScore: 0.66, CreatedAt: base}))

	combined, ok := f.svc.LoadLatest(ctx)
	require.True(t, ok)
	assert.Len(t, combined.Agents, 3)
	assert.Len(t, combined.Alerts, 1)
	assert.Len(t, combined.Rings, 1)
	assert.InDelta(t, 0.66, combined.OverallRiskScore, 1e-9)
	assert.Equal(t, base.Add(30*time.Second), combined.GeneratedAt)
}

func TestLoadLatestRequiresAllAgentTypes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentStructural, base)))
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentTemporal, base.Add(5*time.Second))))

	_, ok := f.svc.LoadLatest(ctx)
	assert.False(t, ok, "two of three agent types is not a complete run")
}

func TestLoadLatestRejectsIncoherentRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// The behavioral record predates the others by well over the window, so
	// the three types never completed as one run.
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentBehavioral, base.Add(-5*time.Minute))))
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentStructural, base)))
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentTemporal, base.Add(10*time.Second))))

	_, ok := f.svc.LoadLatest(ctx)
	assert.False(t, ok)
}

func TestLoadLatestIgnoresFailedRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	failed := completedAt(domain.AgentBehavioral, base)
	failed.Status = domain.AgentFailed
	require.NoError(t, f.agents.Append(ctx, failed))
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentStructural, base)))
	require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentTemporal, base.Add(5*time.Second))))

	_, ok := f.svc.LoadLatest(ctx)
	assert.False(t, ok)
}

func TestLoadLatestPrefersNewestPerType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// An older coherent run followed by a newer one; recovery must pick the
	// newer records.
	for _, offset := range []time.Duration{0, time.Hour} {
		require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentStructural, base.Add(offset))))
		require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentTemporal, base.Add(offset+5*time.Second))))
		require.NoError(t, f.agents.Append(ctx, completedAt(domain.AgentBehavioral, base.Add(offset+10*time.Second))))
	}

	combined, ok := f.svc.LoadLatest(ctx)
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Hour+10*time.Second), combined.GeneratedAt)
}

func TestLoadLatestDegradesOnStoreError(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(DefaultConfig(), failingAgentStore{}, f.alerts, f.rings, f.snaps, logger)

	_, ok := svc.LoadLatest(context.Background())
	assert.False(t, ok)
}

func TestSaveRunPersistsEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	combined := domain.CombinedAnalysis{
		ID:     "run-1",
		Alerts: []domain.LunarAlert{{ID: "al-1", Type: domain.AlertCorrelation}},
		Rings:  []domain.FraudRing{{ID: "r1", Status: domain.RingOpen, AccountIDs: []string{"a", "b"}}},
	}
	snap := domain.GraphSnapshot{TotalNodes: 2, AvgRiskScore: 0.3, CreatedAt: time.Now().UTC()}

	require.NoError(t, f.svc.SaveRun(ctx, combined, snap))

	alert, err := f.alerts.GetByID(ctx, "al-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertCorrelation, alert.Type)

	ring, err := f.rings.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RingOpen, ring.Status)

	latest, err := f.snaps.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.TotalNodes)
}

func TestSaveRunUpdatesExistingRing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.rings.Create(ctx, domain.FraudRing{ID: "r1", Severity: 2, Status: domain.RingOpen, AccountIDs: []string{"a", "b"}}))

	combined := domain.CombinedAnalysis{
		Rings: []domain.FraudRing{{ID: "r1", Severity: 4, Status: domain.RingOpen, AccountIDs: []string{"a", "b"}}},
	}
	require.NoError(t, f.svc.SaveRun(ctx, combined, domain.GraphSnapshot{}))

	ring, err := f.rings.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, ring.Severity)

	open, err := f.rings.ListOpen(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 1, "updating never duplicates a ring")
}

func TestSaveRunSurfacesPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(DefaultConfig(), f.agents, failingAlertStore{}, f.rings, f.snaps, logger)

	combined := domain.CombinedAnalysis{
		Alerts: []domain.LunarAlert{{ID: "al-1"}},
	}
	err := svc.SaveRun(context.Background(), combined, domain.GraphSnapshot{})
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

type failingAgentStore struct{}

func (failingAgentStore) Append(context.Context, domain.AgentAnalysis) error { return nil }
func (failingAgentStore) ListRecent(context.Context, int) ([]domain.AgentAnalysis, error) {
	return nil, errors.New("connection refused")
}

type failingAlertStore struct{}

func (failingAlertStore) Append(context.Context, domain.LunarAlert) error {
	return errors.New("disk full")
}
func (failingAlertStore) ListRecent(context.Context, int) ([]domain.LunarAlert, error) {
	return nil, nil
}
func (failingAlertStore) GetByID(context.Context, string) (domain.LunarAlert, error) {
	return domain.LunarAlert{}, domain.ErrNotFound
}
func (failingAlertStore) Acknowledge(context.Context, string) error { return nil }
