package engine

import (
	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/market"
)

// AccountView is the read-only snapshot of account state a strategy sees on
// every step: enough to size and gate its own decisions without reaching
// into the ledger directly.
type AccountView struct {
	Cash       decimal.Decimal
	MarginUsed decimal.Decimal
	Equity     decimal.Decimal
	Positions  map[string]market.Position
}
