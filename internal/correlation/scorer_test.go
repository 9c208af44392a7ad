package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func settledTrade(account, contract string, dir domain.TradeDirection, symbol string, stake float64, at time.Time) domain.Trade {
	profit := stake * 0.85
	return domain.Trade{
		AccountID:  account,
		ContractID: contract,
		Direction:  dir,
		Symbol:     symbol,
		Stake:      stake,
		EntryPrice: stake,
		Profit:     &profit,
		Timestamp:  at,
		Status:     domain.TradeWon,
	}
}

func TestScoreEmptySets(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	res := s.Score("acc-a", "acc-b", nil, nil)

	assert.Equal(t, domain.CorrelationNormal, res.Status)
	assert.Zero(t, res.OverallScore)
	assert.Zero(t, res.TimingScore)
	assert.Empty(t, res.MatchedPairs)
	assert.Equal(t, "acc-a", res.AccountA)
	assert.Equal(t, "acc-b", res.AccountB)
}

func TestScoreNoOverlap(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	tradesA := []domain.Trade{
		settledTrade("acc-a", "c1", domain.DirectionCall, "1HZ100V", 10, baseTime),
	}
	tradesB := []domain.Trade{
		settledTrade("acc-b", "c2", domain.DirectionCall, "1HZ100V", 10, baseTime.Add(time.Hour)),
	}

	res := s.Score("acc-a", "acc-b", tradesA, tradesB)

	assert.Equal(t, domain.CorrelationNormal, res.Status)
	assert.Zero(t, res.OverallScore)
	assert.Empty(t, res.MatchedPairs)
}

func TestScorePerfectSynchronization(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	var tradesA, tradesB []domain.Trade
	for i := 0; i < 3; i++ {
		at := baseTime.Add(time.Duration(i) * time.Minute)
		tradesA = append(tradesA, settledTrade("acc-a", "a", domain.DirectionCall, "1HZ100V", 10, at))
		tradesB = append(tradesB, settledTrade("acc-b", "b", domain.DirectionCall, "1HZ100V", 10, at))
	}

	res := s.Score("acc-a", "acc-b", tradesA, tradesB)

	assert.Equal(t, domain.CorrelationFlagged, res.Status)
	assert.InDelta(t, 1.0, res.TimingScore, 1e-9)
	assert.InDelta(t, 1.0, res.DirectionScore, 1e-9)
	assert.InDelta(t, 1.0, res.AmountScore, 1e-9)
	assert.InDelta(t, 1.0, res.OverallScore, 1e-9)
	require.Len(t, res.MatchedPairs, 3)
	assert.Equal(t, "1HZ100V", res.MatchedPairs[0].Symbol)
	assert.Equal(t, time.Duration(0), res.MatchedPairs[0].Delta)
}

func TestScoreMirroredHedgingStillCorrelates(t *testing.T) {
	// Opposite directions on the same symbol are a coordination signal, not
	// an exoneration.
	s := NewScorer(DefaultScorerConfig())
	tradesA := []domain.Trade{
		settledTrade("acc-a", "a1", domain.DirectionCall, "1HZ100V", 10, baseTime),
		settledTrade("acc-a", "a2", domain.DirectionCall, "1HZ100V", 10, baseTime.Add(time.Minute)),
	}
	tradesB := []domain.Trade{
		settledTrade("acc-b", "b1", domain.DirectionPut, "1HZ100V", 10, baseTime),
		settledTrade("acc-b", "b2", domain.DirectionPut, "1HZ100V", 10, baseTime.Add(time.Minute)),
	}

	res := s.Score("acc-a", "acc-b", tradesA, tradesB)

	assert.InDelta(t, 1.0, res.DirectionScore, 1e-9)
	assert.Equal(t, domain.CorrelationFlagged, res.Status)
}

func TestScoreSuspiciousBand(t *testing.T) {
	// One matched pair at a 4s delta inside a 5s window: timing 0.2,
	// direction 1.0, amount 1.0, overall 0.68.
	s := NewScorer(DefaultScorerConfig())
	tradesA := []domain.Trade{
		settledTrade("acc-a", "a1", domain.DirectionCall, "R_50", 25, baseTime),
	}
	tradesB := []domain.Trade{
		settledTrade("acc-b", "b1", domain.DirectionCall, "R_50", 25, baseTime.Add(4*time.Second)),
	}

	res := s.Score("acc-a", "acc-b", tradesA, tradesB)

	assert.InDelta(t, 0.2, res.TimingScore, 1e-9)
	assert.InDelta(t, 0.68, res.OverallScore, 1e-9)
	assert.Equal(t, domain.CorrelationSuspicious, res.Status)
}

func TestScoreAmountCeiling(t *testing.T) {
	// Relative stake difference at the ceiling zeroes the amount component.
	s := NewScorer(DefaultScorerConfig())
	tradesA := []domain.Trade{
		settledTrade("acc-a", "a1", domain.DirectionCall, "R_50", 10, baseTime),
	}
	tradesB := []domain.Trade{
		settledTrade("acc-b", "b1", domain.DirectionCall, "R_50", 20, baseTime),
	}

	res := s.Score("acc-a", "acc-b", tradesA, tradesB)

	assert.Zero(t, res.AmountScore)
	assert.InDelta(t, 0.7, res.OverallScore, 1e-9)
	assert.Equal(t, domain.CorrelationSuspicious, res.Status)
}

func TestScoreIgnoresOpenTrades(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	open := settledTrade("acc-a", "a1", domain.DirectionCall, "R_50", 10, baseTime)
	open.Status = domain.TradeOpen
	open.Profit = nil
	tradesB := []domain.Trade{
		settledTrade("acc-b", "b1", domain.DirectionCall, "R_50", 10, baseTime),
	}

	res := s.Score("acc-a", "acc-b", []domain.Trade{open}, tradesB)

	assert.Equal(t, domain.CorrelationNormal, res.Status)
	assert.Empty(t, res.MatchedPairs)
}

func TestScoreCanonicalizesPair(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	tradesA := []domain.Trade{
		settledTrade("acc-a", "a1", domain.DirectionCall, "R_50", 10, baseTime),
	}
	tradesB := []domain.Trade{
		settledTrade("acc-b", "b1", domain.DirectionPut, "R_50", 12, baseTime.Add(2*time.Second)),
	}

	forward := s.Score("acc-a", "acc-b", tradesA, tradesB)
	reversed := s.Score("acc-b", "acc-a", tradesB, tradesA)

	assert.Equal(t, "acc-a", reversed.AccountA)
	assert.Equal(t, "acc-b", reversed.AccountB)
	assert.Equal(t, forward.TimingScore, reversed.TimingScore)
	assert.Equal(t, forward.DirectionScore, reversed.DirectionScore)
	assert.Equal(t, forward.AmountScore, reversed.AmountScore)
	assert.Equal(t, forward.OverallScore, reversed.OverallScore)
	assert.Equal(t, forward.MatchedPairs, reversed.MatchedPairs)
}

func TestScoreGreedyMatchingIsDeterministic(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	tradesA := []domain.Trade{
		settledTrade("acc-a", "a1", domain.DirectionCall, "R_50", 10, baseTime),
		settledTrade("acc-a", "a2", domain.DirectionCall, "R_50", 10, baseTime.Add(2*time.Second)),
	}
	tradesB := []domain.Trade{
		settledTrade("acc-b", "b1", domain.DirectionCall, "R_50", 10, baseTime.Add(time.Second)),
	}

	first := s.Score("acc-a", "acc-b", tradesA, tradesB)
	second := s.Score("acc-a", "acc-b", tradesA, tradesB)

	// b1 sits 1s from a1 and 1s from a2; the tie breaks toward the earlier
	// account-A trade every time.
	require.Len(t, first.MatchedPairs, 1)
	assert.Equal(t, "a1", first.MatchedPairs[0].ContractA)
	assert.Equal(t, first.MatchedPairs, second.MatchedPairs)
	assert.Equal(t, first.OverallScore, second.OverallScore)
}

func TestScoreEachTradeMatchedOnce(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	tradesA := []domain.Trade{
		settledTrade("acc-a", "a1", domain.DirectionCall, "R_50", 10, baseTime),
	}
	tradesB := []domain.Trade{
		settledTrade("acc-b", "b1", domain.DirectionCall, "R_50", 10, baseTime.Add(time.Second)),
		settledTrade("acc-b", "b2", domain.DirectionCall, "R_50", 10, baseTime.Add(3*time.Second)),
	}

	res := s.Score("acc-a", "acc-b", tradesA, tradesB)

	require.Len(t, res.MatchedPairs, 1)
	assert.Equal(t, "b1", res.MatchedPairs[0].ContractB)
}
