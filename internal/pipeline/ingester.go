package pipeline

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
	"github.com/lunarwatch/lunarwatch/internal/platform/deriv"
)

// rosterPath is the blob key for the externally provisioned account roster.
const rosterPath = "roster/accounts.jsonl"

// TradeSource pulls settled contracts for the currently authorized account.
type TradeSource interface {
	Connect(ctx context.Context) error
	Authorize(ctx context.Context, token string) (deriv.AccountInfo, error)
	ProfitTable(ctx context.Context, accountID string, since time.Time) ([]domain.Trade, error)
}

// Ingester pulls the account roster and each account's settled trades into
// the stores. One ingestion pass authorizes account by account, so a bad
// credential skips that account rather than aborting the pass.
type Ingester struct {
	source   TradeSource
	tokens   deriv.TokenProvider
	roster   domain.BlobReader // optional
	accounts domain.AccountStore
	trades   domain.TradeStore
	logger   *slog.Logger
}

// NewIngester creates an Ingester. roster may be nil when the account roster
// is maintained directly in the store.
func NewIngester(
	source TradeSource,
	tokens deriv.TokenProvider,
	roster domain.BlobReader,
	accounts domain.AccountStore,
	trades domain.TradeStore,
	logger *slog.Logger,
) *Ingester {
	return &Ingester{
		source:   source,
		tokens:   tokens,
		roster:   roster,
		accounts: accounts,
		trades:   trades,
		logger:   logger.With(slog.String("component", "ingester")),
	}
}

// RunLoop runs ingestion passes on the given interval until the context is
// cancelled. The first pass runs immediately.
func (i *Ingester) RunLoop(ctx context.Context, interval time.Duration) error {
	if err := i.RunOnce(ctx); err != nil {
		i.logger.Error("ingestion pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			i.logger.Info("ingestion loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := i.RunOnce(ctx); err != nil {
				i.logger.Error("ingestion pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce executes one full ingestion pass: refresh the roster, then pull
// settled trades per account since the newest trade already stored.
func (i *Ingester) RunOnce(ctx context.Context) error {
	if err := i.refreshRoster(ctx); err != nil {
		// Roster refresh failure is not fatal; the previously stored roster
		// still drives trade ingestion.
		i.logger.Warn("roster refresh failed", slog.String("error", err.Error()))
	}

	accounts, err := i.accounts.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("pipeline: list accounts: %w", err)
	}
	if len(accounts) == 0 {
		i.logger.Info("no accounts to ingest")
		return nil
	}

	since, err := i.trades.GetLastTimestamp(ctx)
	if err != nil {
		i.logger.Warn("could not get last trade timestamp, starting from 24h ago",
			slog.String("error", err.Error()),
		)
		since = time.Now().UTC().Add(-24 * time.Hour)
	}

	if err := i.source.Connect(ctx); err != nil {
		return fmt.Errorf("pipeline: connect trade source: %w", err)
	}

	var ingested int
	for _, acct := range accounts {
		if acct.TokenRef == "" {
			continue
		}

		n, err := i.ingestAccount(ctx, acct, since)
		if err != nil {
			i.logger.Error("account ingestion failed",
				slog.String("account_id", acct.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		ingested += n
	}

	i.logger.Info("ingestion pass complete",
		slog.Int("accounts", len(accounts)),
		slog.Int("trades", ingested),
	)
	return nil
}

// ingestAccount authorizes as one account and stores its settled trades.
func (i *Ingester) ingestAccount(ctx context.Context, acct domain.Account, since time.Time) (int, error) {
	token, err := i.tokens.Token(ctx, acct.TokenRef)
	if err != nil {
		return 0, fmt.Errorf("resolve credential: %w", err)
	}

	if _, err := i.source.Authorize(ctx, token); err != nil {
		return 0, fmt.Errorf("authorize: %w", err)
	}

	trades, err := i.source.ProfitTable(ctx, acct.ID, since)
	if err != nil {
		return 0, fmt.Errorf("profit table: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	if err := i.trades.InsertBatch(ctx, trades); err != nil {
		return 0, fmt.Errorf("insert trades: %w", err)
	}
	return len(trades), nil
}

// refreshRoster reads the JSONL roster from blob storage and upserts every
// valid account. Accounts violating the referral-tree rules are dropped with
// a warning; the rest of the roster still loads.
func (i *Ingester) refreshRoster(ctx context.Context) error {
	if i.roster == nil {
		return nil
	}

	ok, err := i.roster.Exists(ctx, rosterPath)
	if err != nil {
		return fmt.Errorf("pipeline: check roster: %w", err)
	}
	if !ok {
		return nil
	}

	rc, err := i.roster.Get(ctx, rosterPath)
	if err != nil {
		return fmt.Errorf("pipeline: read roster: %w", err)
	}
	defer rc.Close()

	var parsed []domain.Account
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var acct domain.Account
		if err := json.Unmarshal(line, &acct); err != nil {
			i.logger.Warn("skipping malformed roster line", slog.String("error", err.Error()))
			continue
		}
		parsed = append(parsed, acct)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("pipeline: scan roster: %w", err)
	}

	known := make(map[string]domain.Account, len(parsed))
	for _, acct := range parsed {
		known[acct.ID] = acct
	}

	valid := parsed[:0]
	for _, acct := range parsed {
		if err := acct.ValidateReferral(known); err != nil {
			i.logger.Warn("dropping account with invalid referral",
				slog.String("account_id", acct.ID),
				slog.String("referrer_id", acct.ReferrerID),
			)
			continue
		}
		valid = append(valid, acct)
	}

	if len(valid) == 0 {
		return nil
	}
	if err := i.accounts.UpsertBatch(ctx, valid); err != nil {
		return fmt.Errorf("pipeline: upsert roster: %w", err)
	}

	i.logger.Info("roster refreshed", slog.Int("accounts", len(valid)))
	return nil
}
