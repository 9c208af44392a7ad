package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists the account roster.
type AccountStore interface {
	Upsert(ctx context.Context, account Account) error
	UpsertBatch(ctx context.Context, accounts []Account) error
	GetByID(ctx context.Context, id string) (Account, error)
	List(ctx context.Context, opts ListOpts) ([]Account, error)
	Count(ctx context.Context) (int64, error)
}

// TradeStore persists ingested trades.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByAccount(ctx context.Context, accountID string, opts ListOpts) ([]Trade, error)
	ListSettled(ctx context.Context, opts ListOpts) ([]Trade, error)
	GetLastTimestamp(ctx context.Context) (time.Time, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AgentAnalysisStore is the append-only log of agent runs. Append never
// updates an existing record; each run writes fresh rows.
type AgentAnalysisStore interface {
	Append(ctx context.Context, analysis AgentAnalysis) error
	ListRecent(ctx context.Context, limit int) ([]AgentAnalysis, error)
}

// AlertStore persists alerts. Writes are append-only except for the
// acknowledged flag, which review workflows flip.
type AlertStore interface {
	Append(ctx context.Context, alert LunarAlert) error
	ListRecent(ctx context.Context, limit int) ([]LunarAlert, error)
	GetByID(ctx context.Context, id string) (LunarAlert, error)
	Acknowledge(ctx context.Context, id string) error
}

// RingStore persists fraud rings. The detector creates and updates rings;
// review workflows mutate only the status.
type RingStore interface {
	Create(ctx context.Context, ring FraudRing) error
	Update(ctx context.Context, ring FraudRing) error
	GetByID(ctx context.Context, id string) (FraudRing, error)
	ListOpen(ctx context.Context) ([]FraudRing, error)
	List(ctx context.Context, opts ListOpts) ([]FraudRing, error)
	UpdateStatus(ctx context.Context, id string, status RingStatus) error
}

// SnapshotStore is the append-only log of graph snapshots.
type SnapshotStore interface {
	Append(ctx context.Context, snap GraphSnapshot) error
	Latest(ctx context.Context) (GraphSnapshot, error)
	ListRecent(ctx context.Context, limit int) ([]GraphSnapshot, error)
}
