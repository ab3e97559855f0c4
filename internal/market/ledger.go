package market

import "github.com/shopspring/decimal"

// SymbolInfo carries the contract facts the ledger and matching engine need
// to convert a price move into a currency-denominated P&L: how much one
// full point of price movement is worth, the minimum price increment, and
// the currency the contract itself is quoted/settled in.
type SymbolInfo struct {
	Symbol        string
	TickSize      decimal.Decimal
	ValuePerPoint decimal.Decimal
	Currency      string
	InitialMargin decimal.Decimal
}

// RoundToTick rounds price to the nearest multiple of i.TickSize.
func (i SymbolInfo) RoundToTick(price decimal.Decimal) decimal.Decimal {
	if i.TickSize.IsZero() {
		return price
	}
	units := price.Div(i.TickSize).Round(0)
	return units.Mul(i.TickSize)
}

// Ledger is one account's cash, margin, and position book. AccountCurrency
// is the currency cash/margin figures are denominated in; positions may be
// held in instruments quoted in a different currency, in which case the
// ledger converts via its rate cache before combining figures.
type Ledger struct {
	AccountID        string
	AccountCurrency  string
	Cash             decimal.Decimal
	MarginUsed       decimal.Decimal
	Positions        map[string]*Position
	ClosedPositions  []Position
}

// NewLedger creates an empty ledger seeded with startingCash.
func NewLedger(accountID, currency string, startingCash decimal.Decimal) *Ledger {
	return &Ledger{
		AccountID:       accountID,
		AccountCurrency: currency,
		Cash:            startingCash,
		Positions:       make(map[string]*Position),
	}
}

// MarginAvailable is cash minus margin already committed to open positions.
func (l *Ledger) MarginAvailable() decimal.Decimal {
	return l.Cash.Sub(l.MarginUsed)
}
