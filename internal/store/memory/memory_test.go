package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

func TestAccountStoreUpsertAndList(t *testing.T) {
	s := NewAccountStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, domain.Account{ID: "cl2", Role: domain.RoleClient}))
	require.NoError(t, s.UpsertBatch(ctx, []domain.Account{
		{ID: "cl1", Role: domain.RoleClient},
		{ID: "aff1", Role: domain.RoleAffiliate},
	}))

	// Upserting again replaces, never duplicates.
	require.NoError(t, s.Upsert(ctx, domain.Account{ID: "cl2", Role: domain.RoleClient, Name: "renamed"}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	accounts, err := s.List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, "aff1", accounts[0].ID)
	assert.Equal(t, "cl2", accounts[2].ID)
	assert.Equal(t, "renamed", accounts[2].Name)

	page, err := s.List(ctx, domain.ListOpts{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "cl1", page[0].ID)

	_, err = s.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTradeStoreSettlementBackfill(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	open := domain.Trade{
		AccountID:  "cl1",
		ContractID: "c-100",
		Direction:  domain.DirectionCall,
		Symbol:     "R_50",
		Stake:      10,
		Timestamp:  at,
		Status:     domain.TradeOpen,
	}
	require.NoError(t, s.InsertBatch(ctx, []domain.Trade{open}))

	settled, err := s.ListSettled(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, settled)

	// Re-ingesting the same contract after settlement fills the exit fields
	// on the existing row.
	profit := 8.5
	exit := 18.5
	won := open
	won.ExitPrice = &exit
	won.Profit = &profit
	won.Status = domain.TradeWon
	require.NoError(t, s.InsertBatch(ctx, []domain.Trade{won}))

	settled, err = s.ListSettled(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, settled, 1)
	assert.Equal(t, domain.TradeWon, settled[0].Status)
	require.NotNil(t, settled[0].Profit)
	assert.InDelta(t, 8.5, *settled[0].Profit, 1e-9)

	byAccount, err := s.ListByAccount(ctx, "cl1", domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, byAccount, 1)
}

func TestTradeStoreWindowing(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	var batch []domain.Trade
	for i := 0; i < 5; i++ {
		batch = append(batch, domain.Trade{
			AccountID:  "cl1",
			ContractID: string(rune('a' + i)),
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			Status:     domain.TradeWon,
		})
	}
	require.NoError(t, s.InsertBatch(ctx, batch))

	since := base.Add(2 * time.Hour)
	windowed, err := s.ListSettled(ctx, domain.ListOpts{Since: &since})
	require.NoError(t, err)
	require.Len(t, windowed, 3)
	assert.Equal(t, since, windowed[0].Timestamp)

	last, err := s.GetLastTimestamp(ctx)
	require.NoError(t, err)
	assert.Equal(t, base.Add(4*time.Hour), last)
}

func TestTradeStoreDeleteBefore(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.InsertBatch(ctx, []domain.Trade{
		{AccountID: "cl1", ContractID: "old", Timestamp: base.Add(-48 * time.Hour), Status: domain.TradeLost},
		{AccountID: "cl1", ContractID: "new", Timestamp: base, Status: domain.TradeWon},
	}))

	aged, err := s.ListBefore(ctx, base)
	require.NoError(t, err)
	require.Len(t, aged, 1)
	assert.Equal(t, "old", aged[0].ContractID)

	deleted, err := s.DeleteBefore(ctx, base)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	remaining, err := s.ListSettled(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "new", remaining[0].ContractID)
}

func TestAlertStoreLifecycle(t *testing.T) {
	s := NewAlertStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append(ctx, domain.LunarAlert{ID: "al-1", CreatedAt: base}))
	require.NoError(t, s.Append(ctx, domain.LunarAlert{ID: "al-2", CreatedAt: base.Add(time.Minute)}))
	assert.ErrorIs(t, s.Append(ctx, domain.LunarAlert{ID: "al-1"}), domain.ErrAlreadyExists)

	recent, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "al-2", recent[0].ID)

	require.NoError(t, s.Acknowledge(ctx, "al-1"))
	got, err := s.GetByID(ctx, "al-1")
	require.NoError(t, err)
	assert.True(t, got.Acknowledged)

	assert.ErrorIs(t, s.Acknowledge(ctx, "missing"), domain.ErrNotFound)
}

func TestRingStoreUpdatePreservesReviewState(t *testing.T) {
	s := NewRingStore()
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	ring := domain.FraudRing{
		ID:         "r1",
		AccountIDs: []string{"a", "b"},
		Severity:   2,
		Status:     domain.RingOpen,
		CreatedAt:  created,
	}
	require.NoError(t, s.Create(ctx, ring))
	assert.ErrorIs(t, s.Create(ctx, ring), domain.ErrAlreadyExists)

	require.NoError(t, s.UpdateStatus(ctx, "r1", domain.RingReviewing))

	// A re-detection update rewrites the evidence fields but must not undo
	// the reviewer's status change.
	update := ring
	update.Severity = 4
	update.Status = domain.RingOpen
	update.CreatedAt = time.Now().UTC()
	require.NoError(t, s.Update(ctx, update))

	got, err := s.GetByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Severity)
	assert.Equal(t, domain.RingReviewing, got.Status)
	assert.Equal(t, created, got.CreatedAt)

	open, err := s.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open, "reviewing rings are not open")

	assert.ErrorIs(t, s.Update(ctx, domain.FraudRing{ID: "missing"}), domain.ErrNotFound)
}

func TestSnapshotStoreLatest(t *testing.T) {
	s := NewSnapshotStore()
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	_, err := s.Latest(ctx)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, s.Append(ctx, domain.GraphSnapshot{TotalNodes: 10, CreatedAt: base}))
	require.NoError(t, s.Append(ctx, domain.GraphSnapshot{TotalNodes: 12, CreatedAt: base.Add(time.Hour)}))

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 12, latest.TotalNodes)
	assert.Equal(t, int64(2), latest.ID)

	recent, err := s.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 12, recent[0].TotalNodes)
}
