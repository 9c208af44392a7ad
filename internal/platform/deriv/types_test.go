package deriv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lunarwatch/lunarwatch/internal/domain"
)

func TestParseShortcode(t *testing.T) {
	tests := []struct {
		name         string
		shortcode    string
		contractType string
		underlying   string
		direction    domain.TradeDirection
		symbol       string
		ok           bool
	}{
		{
			name:         "contract type wins",
			shortcode:    "CALL_1HZ100V_19.54_1709890000_5T",
			contractType: "CALL",
			underlying:   "1HZ100V",
			direction:    domain.DirectionCall,
			symbol:       "1HZ100V",
			ok:           true,
		},
		{
			name:      "falls back to shortcode prefix",
			shortcode: "PUT_R_50_10.00_1709890000_5T",
			direction: domain.DirectionPut,
			symbol:    "R",
			ok:        true,
		},
		{
			name:         "lowercase contract type",
			shortcode:    "put_1HZ100V_10_1709890000_5T",
			contractType: "put",
			underlying:   "1HZ100V",
			direction:    domain.DirectionPut,
			symbol:       "1HZ100V",
			ok:           true,
		},
		{
			name:      "unclassifiable",
			shortcode: "DIGITMATCH_R_10_8",
			ok:        false,
		},
		{
			name:      "empty shortcode",
			shortcode: "",
			ok:        false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			direction, symbol, ok := parseShortcode(tt.shortcode, tt.contractType, tt.underlying)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.direction, direction)
				assert.Equal(t, tt.symbol, symbol)
			}
		})
	}
}

func TestToDomainTradeWon(t *testing.T) {
	entry := profitTableEntry{
		ContractID:   287456113128,
		Shortcode:    "CALL_1HZ100V_19.54_1709890000_5T",
		ContractType: "CALL",
		UnderlyingSym: "1HZ100V",
		BuyPrice:     10,
		SellPrice:    19.54,
		PurchaseTime: 1709890000,
		SellTime:     1709890300,
	}

	trade, ok := entry.toDomainTrade("cl1")
	require.True(t, ok)

	assert.Equal(t, "cl1", trade.AccountID)
	assert.Equal(t, "287456113128", trade.ContractID)
	assert.Equal(t, domain.DirectionCall, trade.Direction)
	assert.Equal(t, "1HZ100V", trade.Symbol)
	assert.Equal(t, 10.0, trade.Stake)
	assert.Equal(t, domain.TradeWon, trade.Status)
	require.NotNil(t, trade.Profit)
	assert.InDelta(t, 9.54, *trade.Profit, 1e-9)
	assert.Equal(t, time.Unix(1709890000, 0).UTC(), trade.Timestamp)
	assert.True(t, trade.Settled())
}

func TestToDomainTradeLost(t *testing.T) {
	entry := profitTableEntry{
		ContractID:   287456113129,
		Shortcode:    "PUT_1HZ100V_0.00_1709890000_5T",
		ContractType: "PUT",
		UnderlyingSym: "1HZ100V",
		BuyPrice:     10,
		SellPrice:    0,
		PurchaseTime: 1709890000,
	}

	trade, ok := entry.toDomainTrade("cl1")
	require.True(t, ok)

	assert.Equal(t, domain.TradeLost, trade.Status)
	require.NotNil(t, trade.Profit)
	assert.InDelta(t, -10.0, *trade.Profit, 1e-9)
	require.NotNil(t, trade.ExitPrice)
	assert.Zero(t, *trade.ExitPrice)
}

func TestToDomainTradeUnclassifiable(t *testing.T) {
	entry := profitTableEntry{
		ContractID: 1,
		Shortcode:  "DIGITDIFF_R_10_8",
		BuyPrice:   5,
	}

	_, ok := entry.toDomainTrade("cl1")
	assert.False(t, ok)
}
