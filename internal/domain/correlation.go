package domain

import "time"

// CorrelationStatus classifies how suspicious a scored account pair is.
type CorrelationStatus string

const (
	CorrelationFlagged    CorrelationStatus = "FLAGGED"
	CorrelationSuspicious CorrelationStatus = "SUSPICIOUS"
	CorrelationNormal     CorrelationStatus = "NORMAL"
)

// MatchedPair is one greedy-matched trade pair that contributed to a
// correlation score, with the timing delta that produced it.
type MatchedPair struct {
	ContractA string        `json:"contract_a"`
	ContractB string        `json:"contract_b"`
	Symbol    string        `json:"symbol"`
	Delta     time.Duration `json:"delta"`
}

// CorrelationResult is the full scoring output for an unordered account pair.
// AccountA < AccountB lexicographically so the pair has a single canonical
// form; results are always recomputed whole, never patched.
type CorrelationResult struct {
	AccountA       string            `json:"account_a"`
	AccountB       string            `json:"account_b"`
	TimingScore    float64           `json:"timing_score"`
	DirectionScore float64           `json:"direction_score"`
	AmountScore    float64           `json:"amount_score"`
	OverallScore   float64           `json:"overall_score"`
	Status         CorrelationStatus `json:"status"`
	MatchedPairs   []MatchedPair     `json:"matched_pairs,omitempty"`
	ComputedAt     time.Time         `json:"computed_at"`
}

// PairKey returns the canonical "a:b" identity of the pair.
func (r CorrelationResult) PairKey() string {
	return r.AccountA + ":" + r.AccountB
}

// CanonicalPair orders two account ids so (a, b) and (b, a) map to the same
// pair.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
