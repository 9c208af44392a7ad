package deriv

import (
	"strconv"
	"strings"
	"time"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

// formatContractID renders the upstream numeric contract id as the string
// form used across the stores.
func formatContractID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// request is the outer envelope for every call to the upstream API. Exactly
// one of the call fields is set per request.
type request struct {
	ReqID int64 `json:"req_id"`

	Authorize   string `json:"authorize,omitempty"`
	Ping        int    `json:"ping,omitempty"`
	ProfitTable int    `json:"profit_table,omitempty"`
	Balance     int    `json:"balance,omitempty"`

	// profit_table options
	Description int    `json:"description,omitempty"`
	Sort        string `json:"sort,omitempty"`
	DateFrom    int64  `json:"date_from,omitempty"`
	DateTo      int64  `json:"date_to,omitempty"`
	Limit       int    `json:"limit,omitempty"`
	Offset      int    `json:"offset,omitempty"`
}

// apiError is the error block the upstream embeds in a response envelope.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope carries the fields needed to route a raw response.
type envelope struct {
	ReqID   int64     `json:"req_id"`
	MsgType string    `json:"msg_type"`
	Error   *apiError `json:"error"`
}

// authorizeResponse is the payload of a successful authorize call.
type authorizeResponse struct {
	Authorize struct {
		LoginID  string  `json:"loginid"`
		Email    string  `json:"email"`
		FullName string  `json:"fullname"`
		Balance  float64 `json:"balance"`
		Currency string  `json:"currency"`
	} `json:"authorize"`
}

// profitTableResponse is the payload of a profit_table call.
type profitTableResponse struct {
	ProfitTable struct {
		Count        int                `json:"count"`
		Transactions []profitTableEntry `json:"transactions"`
	} `json:"profit_table"`
}

// profitTableEntry is one settled contract in the profit table.
type profitTableEntry struct {
	ContractID    int64   `json:"contract_id"`
	TransactionID int64   `json:"transaction_id"`
	Shortcode     string  `json:"shortcode"`
	Longcode      string  `json:"longcode"`
	ContractType  string  `json:"contract_type"`
	UnderlyingSym string  `json:"underlying_symbol"`
	BuyPrice      float64 `json:"buy_price"`
	SellPrice     float64 `json:"sell_price"`
	Payout        float64 `json:"payout"`
	PurchaseTime  int64   `json:"purchase_time"`
	SellTime      int64   `json:"sell_time"`
}

// toDomainTrade converts a settled profit-table entry to a domain trade for
// the given account. Entries the converter cannot classify return ok=false.
func (e profitTableEntry) toDomainTrade(accountID string) (domain.Trade, bool) {
	direction, symbol, ok := parseShortcode(e.Shortcode, e.ContractType, e.UnderlyingSym)
	if !ok {
		return domain.Trade{}, false
	}

	exit := e.SellPrice
	profit := e.SellPrice - e.BuyPrice

	status := domain.TradeLost
	if profit > 0 {
		status = domain.TradeWon
	}

	return domain.Trade{
		AccountID:  accountID,
		ContractID: formatContractID(e.ContractID),
		Direction:  direction,
		Symbol:     symbol,
		Stake:      e.BuyPrice,
		EntryPrice: e.BuyPrice,
		ExitPrice:  &exit,
		Profit:     &profit,
		Timestamp:  time.Unix(e.PurchaseTime, 0).UTC(),
		Status:     status,
	}, true
}

// parseShortcode extracts direction and symbol from a contract shortcode of
// the form "CALL_1HZ100V_19.54_...". ContractType and the underlying symbol
// fields are used as fallbacks when present.
func parseShortcode(shortcode, contractType, underlying string) (domain.TradeDirection, string, bool) {
	var direction domain.TradeDirection
	switch strings.ToUpper(contractType) {
	case "CALL":
		direction = domain.DirectionCall
	case "PUT":
		direction = domain.DirectionPut
	default:
		parts := strings.Split(shortcode, "_")
		if len(parts) < 2 {
			return "", "", false
		}
		switch strings.ToUpper(parts[0]) {
		case "CALL":
			direction = domain.DirectionCall
		case "PUT":
			direction = domain.DirectionPut
		default:
			return "", "", false
		}
	}

	symbol := underlying
	if symbol == "" {
		parts := strings.Split(shortcode, "_")
		if len(parts) < 2 {
			return "", "", false
		}
		symbol = parts[1]
	}

	return direction, symbol, true
}
