package market

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderSide is the direction of an order.
type OrderSide int

const (
	SideBuy OrderSide = iota
	SideSell
)

func (s OrderSide) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// OrderKind is the full matrix of order shapes the paper matching engine
// accepts.
type OrderKind int

const (
	OrderMarket OrderKind = iota
	OrderLimit
	OrderStopMarket
	OrderStopLimit
	OrderMarketIfTouched
	OrderEnterLong
	OrderEnterShort
	OrderExitLong
	OrderExitShort
	OrderBracket
)

func (k OrderKind) String() string {
	switch k {
	case OrderMarket:
		return "market"
	case OrderLimit:
		return "limit"
	case OrderStopMarket:
		return "stop_market"
	case OrderStopLimit:
		return "stop_limit"
	case OrderMarketIfTouched:
		return "market_if_touched"
	case OrderEnterLong:
		return "enter_long"
	case OrderEnterShort:
		return "enter_short"
	case OrderExitLong:
		return "exit_long"
	case OrderExitShort:
		return "exit_short"
	case OrderBracket:
		return "bracket"
	default:
		return "unknown"
	}
}

// TimeInForce controls how long an unfilled order stays live.
type TimeInForce int

const (
	TIFGTC TimeInForce = iota // good till cancelled
	TIFIOC                    // immediate or cancel
	TIFFOK                    // fill or kill
	TIFDay                    // cancelled at session close
)

func (t TimeInForce) String() string {
	switch t {
	case TIFGTC:
		return "gtc"
	case TIFIOC:
		return "ioc"
	case TIFFOK:
		return "fok"
	case TIFDay:
		return "day"
	default:
		return "unknown"
	}
}

// OrderStatus is the order's current lifecycle state.
type OrderStatus int

const (
	OrderPending OrderStatus = iota
	OrderAccepted
	OrderFilled
	OrderPartiallyFilled
	OrderCancelled
	OrderRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderPending:
		return "pending"
	case OrderAccepted:
		return "accepted"
	case OrderFilled:
		return "filled"
	case OrderPartiallyFilled:
		return "partially_filled"
	case OrderCancelled:
		return "cancelled"
	case OrderRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Order is a single paper order in the matching engine's book.
type Order struct {
	ID          uuid.UUID
	AccountID   string
	Symbol      string
	Side        OrderSide
	Kind        OrderKind
	TIF         TimeInForce
	Quantity    decimal.Decimal
	LimitPrice  decimal.Decimal
	StopPrice   decimal.Decimal
	// BracketStopLoss/BracketTakeProfit are only meaningful for
	// OrderBracket: once the parent fills, a stop and a limit exit order
	// are generated using these prices.
	BracketStopLoss   decimal.Decimal
	BracketTakeProfit decimal.Decimal
	Status            OrderStatus
	SubmittedAt        time.Time
	UpdatedAt          time.Time
	FilledQuantity     decimal.Decimal
	AverageFillPrice   decimal.Decimal
	RejectReason       string
}

// IsExit reports whether the order kind closes an existing position rather
// than opening/adding to one.
func (o Order) IsExit() bool {
	return o.Kind == OrderExitLong || o.Kind == OrderExitShort
}

// IsTriggered reports whether this order kind requires a stop/touch trigger
// before it can be matched like a market or limit order.
func (o Order) IsTriggered() bool {
	switch o.Kind {
	case OrderStopMarket, OrderStopLimit, OrderMarketIfTouched:
		return true
	default:
		return false
	}
}

// Fill is a single matched quantity against an order at a price.
type Fill struct {
	OrderID  uuid.UUID
	Symbol   string
	Side     OrderSide
	Quantity decimal.Decimal
	Price    decimal.Decimal
	At       time.Time
	Slippage decimal.Decimal
	Commission decimal.Decimal
}
