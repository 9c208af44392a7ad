package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// TemporalConfig tunes burst detection.
type TemporalConfig struct {
	// Bucket is the width of the time buckets trades are grouped into.
	Bucket time.Duration
	// BurstAccounts is the minimum number of distinct accounts active in one
	// bucket for it to count as a synchronized burst.
	BurstAccounts int
}

// DefaultTemporalConfig returns the production defaults.
func DefaultTemporalConfig() TemporalConfig {
	return TemporalConfig{Bucket: 10 * time.Second, BurstAccounts: 3}
}

// TemporalAgent looks for bursts of synchronized trade activity across
// accounts that referral relationships do not explain.
type TemporalAgent struct {
	cfg TemporalConfig
}

// NewTemporalAgent creates a TemporalAgent.
func NewTemporalAgent(cfg TemporalConfig) *TemporalAgent {
	if cfg.Bucket <= 0 || cfg.BurstAccounts <= 0 {
		cfg = DefaultTemporalConfig()
	}
	return &TemporalAgent{cfg: cfg}
}

func (a *TemporalAgent) Type() domain.AgentType { return domain.AgentTemporal }
func (a *TemporalAgent) Name() string           { return "temporal-burst" }

// Analyze buckets settled trades by opening time and reports buckets where
// several accounts fired together. A burst among accounts with no referral
// relationship is critical; a burst inside one downline is informational,
// since a promotion or signal group plausibly explains it.
func (a *TemporalAgent) Analyze(ctx context.Context, snap Snapshot) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	parents := referralParents(snap.Graph)

	buckets := make(map[int64]map[string]bool)
	for accountID, trades := range snap.TradesByAccount {
		for _, t := range trades {
			if !t.Settled() {
				continue
			}
			b := t.Timestamp.UnixNano() / int64(a.cfg.Bucket)
			if buckets[b] == nil {
				buckets[b] = make(map[string]bool)
			}
			buckets[b][accountID] = true
		}
	}

	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	var findings []domain.Finding
	bursts := 0
	maxAccounts := 0
	for _, k := range keys {
		accounts := buckets[k]
		if len(accounts) < a.cfg.BurstAccounts {
			continue
		}
		bursts++
		if len(accounts) > maxAccounts {
			maxAccounts = len(accounts)
		}

		ids := make([]string, 0, len(accounts))
		for id := range accounts {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		sev := domain.SeverityInfo
		if !allReferralRelated(ids, parents) {
			sev = domain.SeverityCritical
		}
		at := time.Unix(0, k*int64(a.cfg.Bucket)).UTC()
		findings = append(findings, domain.Finding{
			ID:          uuid.NewString(),
			AgentType:   domain.AgentTemporal,
			Severity:    sev,
			Title:       "synchronized trade burst",
			Description: fmt.Sprintf("%d accounts traded within %s of %s", len(ids), a.cfg.Bucket, at.Format(time.RFC3339)),
			EntityIDs:   ids,
		})
	}

	summary := fmt.Sprintf("%d buckets scanned, %d synchronized bursts (max %d accounts)", len(buckets), bursts, maxAccounts)
	metrics := map[string]float64{
		"bursts":             float64(bursts),
		"max_burst_accounts": float64(maxAccounts),
	}
	return Result{Findings: findings, Summary: summary, Metrics: metrics}, nil
}

// allReferralRelated reports whether every pair in ids is connected through
// the referral tree.
func allReferralRelated(ids []string, parents map[string]string) bool {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			if !referralRelated(ids[i], ids[j], parents) {
				return false
			}
		}
	}
	return true
}
