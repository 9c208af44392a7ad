package domain

import "time"

// AlertType classifies what kind of evidence raised the alert.
type AlertType string

const (
	AlertTrade       AlertType = "trade"
	AlertCorrelation AlertType = "correlation"
	AlertPattern     AlertType = "pattern"
	AlertRing        AlertType = "ring"
)

// LunarAlert is one actionable alert produced by the combiner or a review
// workflow. AIExplanation is filled by an optional external narrative call;
// alert generation never waits on it.
type LunarAlert struct {
	ID            string          `json:"id"`
	Type          AlertType       `json:"type"`
	Severity      FindingSeverity `json:"severity"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	EntityIDs     []string        `json:"entity_ids,omitempty"`
	RingID        string          `json:"ring_id,omitempty"`
	Acknowledged  bool            `json:"acknowledged"`
	AIExplanation string          `json:"ai_explanation,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}
