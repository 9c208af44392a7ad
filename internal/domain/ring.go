package domain

import (
	"sort"
	"time"
)

// RingStatus is the review lifecycle of a fraud ring. The detector creates
// rings open; review workflows move them through reviewing to closed.
type RingStatus string

const (
	RingOpen      RingStatus = "open"
	RingReviewing RingStatus = "reviewing"
	RingClosed    RingStatus = "closed"
)

// FraudRing is a cluster of accounts whose pairwise correlation evidence
// exceeds the suspicious threshold, treated as one coordinated-fraud unit.
// AISummary is produced by an external narrative call and may be empty.
type FraudRing struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	AccountIDs []string   `json:"account_ids"`
	Severity   int        `json:"severity"` // 1..5
	Confidence float64    `json:"confidence"`
	Exposure   float64    `json:"exposure"`
	Evidence   []string   `json:"evidence"`
	Status     RingStatus `json:"status"`
	AISummary  string     `json:"ai_summary,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// MemberKey returns a canonical identity for the ring's member set, used to
// detect that a re-run produced the same ring.
func (r FraudRing) MemberKey() string {
	ids := append([]string(nil), r.AccountIDs...)
	sort.Strings(ids)
	key := ""
	for i, id := range ids {
		if i > 0 {
			key += ","
		}
		key += id
	}
	return key
}

// SameMembers reports whether two rings cover exactly the same accounts.
func (r FraudRing) SameMembers(other FraudRing) bool {
	return r.MemberKey() == other.MemberKey()
}
