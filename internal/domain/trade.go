package domain

import "time"

// TradeDirection is the two-valued direction of a binary-options contract.
type TradeDirection string

const (
	DirectionCall TradeDirection = "CALL" // up
	DirectionPut  TradeDirection = "PUT"  // down
)

// Opposite returns the mirrored direction.
func (d TradeDirection) Opposite() TradeDirection {
	if d == DirectionCall {
		return DirectionPut
	}
	return DirectionCall
}

// TradeStatus is the lifecycle state of a contract.
type TradeStatus string

const (
	TradeOpen TradeStatus = "open"
	TradeWon  TradeStatus = "won"
	TradeLost TradeStatus = "lost"
	TradeSold TradeStatus = "sold"
)

// Trade is one contract placed by one account. ContractID is assigned by the
// broker and is unique per account+symbol+timestamp. Exit fields are set
// exactly once at settlement and are nil while the trade is open.
type Trade struct {
	ID         int64          `json:"id"`
	AccountID  string         `json:"account_id"`
	ContractID string         `json:"contract_id"`
	Direction  TradeDirection `json:"direction"`
	Symbol     string         `json:"symbol"`
	Stake      float64        `json:"stake"`
	EntryPrice float64        `json:"entry_price"`
	ExitPrice  *float64       `json:"exit_price,omitempty"`
	Profit     *float64       `json:"profit,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Status     TradeStatus    `json:"status"`
}

// Settled reports whether the trade has left the open state. Correlation
// scoring only ever sees settled trades.
func (t Trade) Settled() bool {
	switch t.Status {
	case TradeWon, TradeLost, TradeSold:
		return true
	default:
		return false
	}
}
