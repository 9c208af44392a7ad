// Package memory provides in-memory implementations of the domain store
// interfaces, used by tests and by the analyze mode when no database is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// AccountStore is an in-memory domain.AccountStore.
type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates an empty AccountStore.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]domain.Account)}
}

// Upsert inserts or replaces the account keyed by id.
func (s *AccountStore) Upsert(_ context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
	return nil
}

// UpsertBatch upserts all given accounts.
func (s *AccountStore) UpsertBatch(_ context.Context, accounts []domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range accounts {
		s.accounts[a.ID] = a
	}
	return nil
}

// GetByID returns the account or domain.ErrNotFound.
func (s *AccountStore) GetByID(_ context.Context, id string) (domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

// List returns accounts ordered by id with pagination.
func (s *AccountStore) List(_ context.Context, opts domain.ListOpts) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, opts), nil
}

// Count returns the number of stored accounts.
func (s *AccountStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.accounts)), nil
}

// TradeStore is an in-memory domain.TradeStore.
type TradeStore struct {
	mu     sync.RWMutex
	trades []domain.Trade
	nextID int64
}

var _ domain.TradeStore = (*TradeStore)(nil)

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{nextID: 1}
}

// InsertBatch appends trades, assigning ids. A trade with the same
// account_id and contract_id as an existing one replaces its settlement
// fields, mirroring the database upsert.
func (s *TradeStore) InsertBatch(_ context.Context, trades []domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		replaced := false
		for i := range s.trades {
			if s.trades[i].AccountID == t.AccountID && s.trades[i].ContractID == t.ContractID {
				s.trades[i].ExitPrice = t.ExitPrice
				s.trades[i].Profit = t.Profit
				s.trades[i].Status = t.Status
				replaced = true
				break
			}
		}
		if replaced {
			continue
		}
		t.ID = s.nextID
		s.nextID++
		s.trades = append(s.trades, t)
	}
	return nil
}

func inWindow(ts time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && ts.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && ts.After(*opts.Until) {
		return false
	}
	return true
}

// ListByAccount returns trades for one account, most recent first.
func (s *TradeStore) ListByAccount(_ context.Context, accountID string, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Trade
	for _, t := range s.trades {
		if t.AccountID == accountID && inWindow(t.Timestamp, opts) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return paginate(out, opts), nil
}

// ListSettled returns settled trades in chronological order.
func (s *TradeStore) ListSettled(_ context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Trade
	for _, t := range s.trades {
		if t.Settled() && inWindow(t.Timestamp, opts) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return paginate(out, opts), nil
}

// GetLastTimestamp returns the newest trade timestamp or the zero time.
func (s *TradeStore) GetLastTimestamp(_ context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last time.Time
	for _, t := range s.trades {
		if t.Timestamp.After(last) {
			last = t.Timestamp
		}
	}
	return last, nil
}

// ListBefore returns trades with timestamp strictly before the given time.
func (s *TradeStore) ListBefore(_ context.Context, before time.Time) ([]domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Trade
	for _, t := range s.trades {
		if t.Timestamp.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// DeleteBefore removes trades older than the given time.
func (s *TradeStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.trades[:0]
	var deleted int64
	for _, t := range s.trades {
		if t.Timestamp.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}
	s.trades = kept
	return deleted, nil
}

// paginate applies Limit/Offset to an already-sorted slice.
func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
