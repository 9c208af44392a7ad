// Package correlation scores account pairs for coordinated trading. The
// scorer matches trades across two accounts by opening time, then derives
// timing, direction, and amount sub-scores from the matched pairs.
package correlation

import (
	"sort"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// ScorerConfig holds the tunable parameters of the pairwise scoring model.
type ScorerConfig struct {
	// MatchWindow is the maximum opening-time gap between two trades for
	// them to be considered a matched pair.
	MatchWindow time.Duration
	// AmountCeiling is the relative stake difference beyond which the amount
	// similarity of a matched pair is zero.
	AmountCeiling float64

	TimingWeight    float64
	DirectionWeight float64
	AmountWeight    float64

	FlaggedThreshold    float64
	SuspiciousThreshold float64
}

// DefaultScorerConfig returns the production defaults.
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		MatchWindow:         5 * time.Second,
		AmountCeiling:       0.5,
		TimingWeight:        0.4,
		DirectionWeight:     0.3,
		AmountWeight:        0.3,
		FlaggedThreshold:    0.75,
		SuspiciousThreshold: 0.45,
	}
}

// Scorer computes CorrelationResults. It is stateless and safe for
// concurrent use.
type Scorer struct {
	cfg ScorerConfig
}

// NewScorer creates a Scorer with the given configuration.
func NewScorer(cfg ScorerConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// candidate is one potential trade pairing inside the match window.
type candidate struct {
	ia, ib int
	delta  time.Duration
}

// Score computes the correlation between two accounts' trade histories.
// Only settled trades participate. The result is symmetric: swapping the
// two arguments yields an identical result, because the pair is
// canonicalized before matching. An empty or non-overlapping trade set is a
// NORMAL result with zero scores, not an error.
func (s *Scorer) Score(accountA, accountB string, tradesA, tradesB []domain.Trade) domain.CorrelationResult {
	if accountB < accountA {
		accountA, accountB = accountB, accountA
		tradesA, tradesB = tradesB, tradesA
	}

	result := domain.CorrelationResult{
		AccountA:   accountA,
		AccountB:   accountB,
		Status:     domain.CorrelationNormal,
		ComputedAt: time.Now().UTC(),
	}

	setA := settledSorted(tradesA)
	setB := settledSorted(tradesB)
	if len(setA) == 0 || len(setB) == 0 {
		return result
	}

	matched := s.matchPairs(setA, setB)
	if len(matched) == 0 {
		return result
	}

	result.MatchedPairs = make([]domain.MatchedPair, 0, len(matched))
	var (
		deltaSum    time.Duration
		sameDir     int
		oppositeDir int
		amountSum   float64
	)
	for _, c := range matched {
		ta, tb := setA[c.ia], setB[c.ib]
		result.MatchedPairs = append(result.MatchedPairs, domain.MatchedPair{
			ContractA: ta.ContractID,
			ContractB: tb.ContractID,
			Symbol:    ta.Symbol,
			Delta:     c.delta,
		})
		deltaSum += c.delta
		if ta.Symbol == tb.Symbol {
			if ta.Direction == tb.Direction {
				sameDir++
			} else {
				oppositeDir++
			}
		}
		amountSum += s.amountSimilarity(ta.Stake, tb.Stake)
	}

	n := float64(len(matched))

	// Timing: 1.0 at zero mean delta, decaying linearly to 0 at the window
	// boundary.
	meanDelta := time.Duration(int64(deltaSum) / int64(len(matched)))
	result.TimingScore = clamp01(1 - float64(meanDelta)/float64(s.cfg.MatchWindow))

	// Direction: mirrored hedging is as much a coordination signal as copy
	// trading, so the score measures pairing consistency only: the dominant
	// same-or-opposite relationship among same-symbol pairs.
	consistent := sameDir
	if oppositeDir > consistent {
		consistent = oppositeDir
	}
	result.DirectionScore = clamp01(float64(consistent) / n)

	result.AmountScore = clamp01(amountSum / n)

	result.OverallScore = clamp01(
		s.cfg.TimingWeight*result.TimingScore +
			s.cfg.DirectionWeight*result.DirectionScore +
			s.cfg.AmountWeight*result.AmountScore,
	)

	switch {
	case result.OverallScore >= s.cfg.FlaggedThreshold:
		result.Status = domain.CorrelationFlagged
	case result.OverallScore >= s.cfg.SuspiciousThreshold:
		result.Status = domain.CorrelationSuspicious
	default:
		result.Status = domain.CorrelationNormal
	}

	return result
}

// matchPairs greedily pairs trades across the two sets by nearest opening
// time, each trade consumed at most once. Candidates are ordered by delta
// with deterministic tie-breaks so the matching is reproducible bit for bit.
func (s *Scorer) matchPairs(setA, setB []domain.Trade) []candidate {
	var candidates []candidate
	for i, ta := range setA {
		for j, tb := range setB {
			delta := ta.Timestamp.Sub(tb.Timestamp)
			if delta < 0 {
				delta = -delta
			}
			if delta <= s.cfg.MatchWindow {
				candidates = append(candidates, candidate{ia: i, ib: j, delta: delta})
			}
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.delta != cj.delta {
			return ci.delta < cj.delta
		}
		if ci.ia != cj.ia {
			return ci.ia < cj.ia
		}
		return ci.ib < cj.ib
	})

	usedA := make(map[int]bool, len(setA))
	usedB := make(map[int]bool, len(setB))
	var matched []candidate
	for _, c := range candidates {
		if usedA[c.ia] || usedB[c.ib] {
			continue
		}
		usedA[c.ia] = true
		usedB[c.ib] = true
		matched = append(matched, c)
	}

	// Present matched pairs in account-A trade order, not discovery order.
	sort.Slice(matched, func(i, j int) bool { return matched[i].ia < matched[j].ia })
	return matched
}

// amountSimilarity is 1.0 for identical stakes, decaying linearly with the
// relative difference and reaching 0 at the configured ceiling.
func (s *Scorer) amountSimilarity(a, b float64) float64 {
	if a == b {
		return 1
	}
	max := a
	if b > max {
		max = b
	}
	if max <= 0 {
		return 0
	}
	rel := (a - b) / max
	if rel < 0 {
		rel = -rel
	}
	if rel >= s.cfg.AmountCeiling {
		return 0
	}
	return 1 - rel/s.cfg.AmountCeiling
}

// settledSorted filters to settled trades and orders them by timestamp, then
// contract id, so matching sees a canonical sequence.
func settledSorted(trades []domain.Trade) []domain.Trade {
	out := make([]domain.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Settled() {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ContractID < out[j].ContractID
	})
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
