package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// Archiver moves aged rows out of the database into cold storage and prunes
// archived trades from the hot store.
type Archiver struct {
	blobArchiver  domain.Archiver
	trades        domain.TradeStore
	retentionDays int
	logger        *slog.Logger
}

// NewArchiver creates an Archiver. Trades older than retentionDays are
// archived and then deleted from the store.
func NewArchiver(blobArchiver domain.Archiver, trades domain.TradeStore, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		blobArchiver:  blobArchiver,
		trades:        trades,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run executes a single archive pass. Trades are pruned only after the cold
// copy succeeds, so a failed upload never loses rows.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(a.retentionDays) * 24 * time.Hour)
	a.logger.Info("starting archive pass",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	tradesArchived, err := a.blobArchiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving trades before %v: %w", cutoff, err)
	}

	var pruned int64
	if tradesArchived > 0 {
		pruned, err = a.trades.DeleteBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("pruning archived trades: %w", err)
		}
	}

	snapsArchived, err := a.blobArchiver.ArchiveSnapshots(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archiving snapshots before %v: %w", cutoff, err)
	}

	a.logger.Info("archive pass complete",
		slog.Int64("trades_archived", tradesArchived),
		slog.Int64("trades_pruned", pruned),
		slog.Int64("snapshots_archived", snapsArchived),
	)
	return nil
}

// RunLoop runs archive passes on the given interval until the context is
// cancelled. The first pass waits a full interval.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	a.logger.Info("archiver started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := a.Run(ctx); err != nil {
				a.logger.Error("archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
