// Package risk is the portfolio-level guardrail consulted before the
// matching engine accepts an order: a second, independent gate in front of
// the ledger's own margin check.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/enginerr"
)

// Policy bounds the portfolio the matching engine will allow to accumulate.
type Policy struct {
	MaxPositionSize decimal.Decimal
	MaxPositions    int
	MaxDrawdown     decimal.Decimal
	MinAccountSize  decimal.Decimal
	MaxRiskPerTrade decimal.Decimal
}

// DefaultPolicy returns conservative defaults applied when no policy is
// configured for a run.
func DefaultPolicy() Policy {
	return Policy{
		MaxPositionSize: decimal.NewFromInt(50_000),
		MaxPositions:    10,
		MaxDrawdown:     decimal.NewFromFloat(0.20),
		MinAccountSize:  decimal.NewFromInt(10_000),
		MaxRiskPerTrade: decimal.NewFromFloat(0.02),
	}
}

// CheckInput is the state the policy needs to evaluate a prospective order.
type CheckInput struct {
	OpenPositions      int
	AccountEquity      decimal.Decimal
	PeakEquity         decimal.Decimal
	ProposedNotional   decimal.Decimal
	IsNewPosition      bool
}

// Check returns a non-nil error wrapping enginerr.ErrInsufficientFunds if in
// would breach the policy.
func (p Policy) Check(in CheckInput) error {
	if in.AccountEquity.LessThan(p.MinAccountSize) {
		return fmt.Errorf("risk: account equity %s below minimum %s: %w", in.AccountEquity, p.MinAccountSize, enginerr.ErrInsufficientFunds)
	}
	if in.IsNewPosition && p.MaxPositions > 0 && in.OpenPositions >= p.MaxPositions {
		return fmt.Errorf("risk: max open positions (%d) reached: %w", p.MaxPositions, enginerr.ErrInsufficientFunds)
	}
	if p.MaxPositionSize.IsPositive() && in.ProposedNotional.GreaterThan(p.MaxPositionSize) {
		return fmt.Errorf("risk: proposed notional %s exceeds max position size %s: %w", in.ProposedNotional, p.MaxPositionSize, enginerr.ErrInsufficientFunds)
	}
	if p.MaxDrawdown.IsPositive() && in.PeakEquity.IsPositive() {
		drawdown := in.PeakEquity.Sub(in.AccountEquity).Div(in.PeakEquity)
		if drawdown.GreaterThan(p.MaxDrawdown) {
			return fmt.Errorf("risk: drawdown %s exceeds max %s: %w", drawdown, p.MaxDrawdown, enginerr.ErrInsufficientFunds)
		}
	}
	return nil
}
