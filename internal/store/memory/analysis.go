package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// AgentAnalysisStore is an in-memory append-only domain.AgentAnalysisStore.
type AgentAnalysisStore struct {
	mu      sync.RWMutex
	records []domain.AgentAnalysis
}

var _ domain.AgentAnalysisStore = (*AgentAnalysisStore)(nil)

// NewAgentAnalysisStore creates an empty AgentAnalysisStore.
func NewAgentAnalysisStore() *AgentAnalysisStore {
	return &AgentAnalysisStore{}
}

// Append stores one agent record. Records are never rewritten.
func (s *AgentAnalysisStore) Append(_ context.Context, a domain.AgentAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, a)
	return nil
}

// ListRecent returns up to limit records ordered newest first by StartedAt.
func (s *AgentAnalysisStore) ListRecent(_ context.Context, limit int) ([]domain.AgentAnalysis, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AgentAnalysis, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// AlertStore is an in-memory domain.AlertStore.
type AlertStore struct {
	mu     sync.RWMutex
	alerts map[string]domain.LunarAlert
	order  []string
}

var _ domain.AlertStore = (*AlertStore)(nil)

// NewAlertStore creates an empty AlertStore.
func NewAlertStore() *AlertStore {
	return &AlertStore{alerts: make(map[string]domain.LunarAlert)}
}

// Append stores one alert, or domain.ErrAlreadyExists on id collision.
func (s *AlertStore) Append(_ context.Context, a domain.LunarAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alerts[a.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.alerts[a.ID] = a
	s.order = append(s.order, a.ID)
	return nil
}

// ListRecent returns up to limit alerts, newest first by CreatedAt.
func (s *AlertStore) ListRecent(_ context.Context, limit int) ([]domain.LunarAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LunarAlert, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.alerts[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// GetByID returns the alert or domain.ErrNotFound.
func (s *AlertStore) GetByID(_ context.Context, id string) (domain.LunarAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return domain.LunarAlert{}, domain.ErrNotFound
	}
	return a, nil
}

// Acknowledge flips the acknowledged flag, or domain.ErrNotFound.
func (s *AlertStore) Acknowledge(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Acknowledged = true
	s.alerts[id] = a
	return nil
}

// RingStore is an in-memory domain.RingStore.
type RingStore struct {
	mu    sync.RWMutex
	rings map[string]domain.FraudRing
}

var _ domain.RingStore = (*RingStore)(nil)

// NewRingStore creates an empty RingStore.
func NewRingStore() *RingStore {
	return &RingStore{rings: make(map[string]domain.FraudRing)}
}

// Create stores a new ring, or domain.ErrAlreadyExists.
func (s *RingStore) Create(_ context.Context, r domain.FraudRing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rings[r.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.rings[r.ID] = cloneRing(r)
	return nil
}

// Update rewrites detector-owned fields of an existing ring. Status and
// CreatedAt are preserved so review state survives re-detection.
func (s *RingStore) Update(_ context.Context, r domain.FraudRing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rings[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = cur.Status
	r.CreatedAt = cur.CreatedAt
	s.rings[r.ID] = cloneRing(r)
	return nil
}

// GetByID returns the ring or domain.ErrNotFound.
func (s *RingStore) GetByID(_ context.Context, id string) (domain.FraudRing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[id]
	if !ok {
		return domain.FraudRing{}, domain.ErrNotFound
	}
	return cloneRing(r), nil
}

// ListOpen returns rings whose status is open, most recently updated first.
func (s *RingStore) ListOpen(_ context.Context) ([]domain.FraudRing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FraudRing
	for _, r := range s.rings {
		if r.Status == domain.RingOpen {
			out = append(out, cloneRing(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// List returns all rings with pagination, most recently updated first.
func (s *RingStore) List(_ context.Context, opts domain.ListOpts) ([]domain.FraudRing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FraudRing
	for _, r := range s.rings {
		if inWindow(r.UpdatedAt, opts) {
			out = append(out, cloneRing(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return paginate(out, opts), nil
}

// UpdateStatus moves a ring through its review lifecycle.
func (s *RingStore) UpdateStatus(_ context.Context, id string, status domain.RingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rings[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
	s.rings[id] = r
	return nil
}

func cloneRing(r domain.FraudRing) domain.FraudRing {
	out := r
	out.AccountIDs = append([]string(nil), r.AccountIDs...)
	out.Evidence = append([]string(nil), r.Evidence...)
	return out
}

// SnapshotStore is an in-memory append-only domain.SnapshotStore.
type SnapshotStore struct {
	mu     sync.RWMutex
	snaps  []domain.GraphSnapshot
	nextID int64
}

var _ domain.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates an empty SnapshotStore.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{nextID: 1}
}

// Append stores one snapshot, assigning its id.
func (s *SnapshotStore) Append(_ context.Context, snap domain.GraphSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap.ID = s.nextID
	s.nextID++
	s.snaps = append(s.snaps, snap)
	return nil
}

// Latest returns the most recent snapshot or domain.ErrNotFound.
func (s *SnapshotStore) Latest(_ context.Context) (domain.GraphSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.snaps) == 0 {
		return domain.GraphSnapshot{}, domain.ErrNotFound
	}
	latest := s.snaps[0]
	for _, snap := range s.snaps[1:] {
		if snap.CreatedAt.After(latest.CreatedAt) {
			latest = snap
		}
	}
	return latest, nil
}

// ListRecent returns up to limit snapshots, newest first.
func (s *SnapshotStore) ListRecent(_ context.Context, limit int) ([]domain.GraphSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.GraphSnapshot, len(s.snaps))
	copy(out, s.snaps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}
