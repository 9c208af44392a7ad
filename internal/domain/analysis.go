package domain

import "time"

// AgentType identifies one analysis stage of the pipeline.
type AgentType string

const (
	AgentStructural AgentType = "structural"
	AgentTemporal   AgentType = "temporal"
	AgentBehavioral AgentType = "behavioral"
)

// AgentStatus is the lifecycle state of one agent run.
type AgentStatus string

const (
	AgentPending   AgentStatus = "pending"
	AgentRunning   AgentStatus = "running"
	AgentCompleted AgentStatus = "completed"
	AgentFailed    AgentStatus = "failed"
)

// FindingSeverity ranks a single finding or alert.
type FindingSeverity string

const (
	SeverityCritical FindingSeverity = "critical"
	SeverityWarning  FindingSeverity = "warning"
	SeverityInfo     FindingSeverity = "info"
)

// rank orders severities for floor comparisons.
func (s FindingSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// Finding is one anomaly surfaced by an agent.
type Finding struct {
	ID          string          `json:"id"`
	AgentType   AgentType       `json:"agent_type"`
	Severity    FindingSeverity `json:"severity"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	EntityIDs   []string        `json:"entity_ids,omitempty"`
	RingID      string          `json:"ring_id,omitempty"`
}

// AgentAnalysis is one record per agent per analysis run. A failed agent
// carries its error string; its findings are ignored by the combiner.
type AgentAnalysis struct {
	ID          string             `json:"id"`
	AgentType   AgentType          `json:"agent_type"`
	AgentName   string             `json:"agent_name"`
	Status      AgentStatus        `json:"status"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
	Findings    []Finding          `json:"findings,omitempty"`
	Summary     string             `json:"summary,omitempty"`
	Metrics     map[string]float64 `json:"metrics,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// CombinedAnalysis merges the completed agents of one run into a single
// report: the alerts raised, the rings in play, and an overall risk score in
// [0,1].
type CombinedAnalysis struct {
	ID               string          `json:"id"`
	Agents           []AgentAnalysis `json:"agents"`
	Alerts           []LunarAlert    `json:"alerts,omitempty"`
	Rings            []FraudRing     `json:"rings,omitempty"`
	OverallRiskScore float64         `json:"overall_risk_score"`
	Summary          string          `json:"summary"`
	GeneratedAt      time.Time       `json:"generated_at"`
}
