package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/store/memory"
)

type fakeBlobArchiver struct {
	trades    int64
	snaps     int64
	tradesErr error
	calls     []string
}

func (f *fakeBlobArchiver) ArchiveTrades(_ context.Context, _ time.Time) (int64, error) {
	f.calls = append(f.calls, "trades")
	return f.trades, f.tradesErr
}

func (f *fakeBlobArchiver) ArchiveSnapshots(_ context.Context, _ time.Time) (int64, error) {
	f.calls = append(f.calls, "snapshots")
	return f.snaps, nil
}

func agedTradeStore(t *testing.T, age time.Duration) *memory.TradeStore {
	t.Helper()
	s := memory.NewTradeStore()
	require.NoError(t, s.InsertBatch(context.Background(), []domain.Trade{
		{ContractID: "aged", Timestamp: time.Now().UTC().Add(-age), Status: domain.TradeWon},
		{ContractID: "fresh", Timestamp: time.Now().UTC(), Status: domain.TradeWon},
	}))
	return s
}

func TestArchiverPrunesAfterArchive(t *testing.T) {
	ctx := context.Background()
	trades := agedTradeStore(t, 100*24*time.Hour)
	blob := &fakeBlobArchiver{trades: 1, snaps: 2}

	a := NewArchiver(blob, trades, 90, discardLogger())
	require.NoError(t, a.Run(ctx))

	assert.Equal(t, []string{"trades", "snapshots"}, blob.calls)

	remaining, err := trades.ListSettled(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh", remaining[0].ContractID)
}

func TestArchiverSkipsPruneWhenNothingArchived(t *testing.T) {
	ctx := context.Background()
	trades := agedTradeStore(t, 100*24*time.Hour)
	blob := &fakeBlobArchiver{trades: 0}

	a := NewArchiver(blob, trades, 90, discardLogger())
	require.NoError(t, a.Run(ctx))

	remaining, err := trades.ListSettled(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "nothing archived means nothing pruned")
}

func TestArchiverFailedUploadKeepsRows(t *testing.T) {
	ctx := context.Background()
	trades := agedTradeStore(t, 100*24*time.Hour)
	blob := &fakeBlobArchiver{tradesErr: errors.New("NoSuchBucket")}

	a := NewArchiver(blob, trades, 90, discardLogger())
	assert.Error(t, a.Run(ctx))

	remaining, err := trades.ListSettled(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2, "a failed cold copy must never lose rows")
	assert.NotContains(t, blob.calls, "snapshots")
}
