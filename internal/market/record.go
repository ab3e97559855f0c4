package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaseDataType identifies which Record variant a given stream carries.
type BaseDataType int

const (
	BaseDataTick BaseDataType = iota
	BaseDataQuote
	BaseDataCandle
	BaseDataQuoteBar
)

func (t BaseDataType) String() string {
	switch t {
	case BaseDataTick:
		return "tick"
	case BaseDataQuote:
		return "quote"
	case BaseDataCandle:
		return "candle"
	case BaseDataQuoteBar:
		return "quote_bar"
	default:
		return "unknown"
	}
}

// Record is the union of every primitive and derived market data shape the
// engine moves through its pipeline. Every variant below implements it.
type Record interface {
	Symbol() string
	Time() time.Time
	// EndTime is Time for an instantaneous record (Tick/Quote) and the
	// close boundary of the bar for Candle/QuoteBar.
	EndTime() time.Time
	DataType() BaseDataType
	Resolution() Resolution
	// IsClosed reports whether a bar record is fully formed; always true
	// for instantaneous records.
	IsClosed() bool
}

// Aggressor identifies which side initiated a trade print.
type Aggressor int

const (
	AggressorNone Aggressor = iota
	AggressorBuy
	AggressorSell
)

func (a Aggressor) String() string {
	switch a {
	case AggressorBuy:
		return "buy"
	case AggressorSell:
		return "sell"
	default:
		return "none"
	}
}

// CandleKind distinguishes which transform produced a Candle/QuoteBar's
// OHLC values, since a strategy consuming a derived feed needs to know
// whether it is looking at raw trade prices or a smoothed/price-based
// reinterpretation of them.
type CandleKind int

const (
	CandleStick CandleKind = iota
	CandleHeikinAshi
	CandleRenko
)

func (k CandleKind) String() string {
	switch k {
	case CandleHeikinAshi:
		return "heikin_ashi"
	case CandleRenko:
		return "renko"
	default:
		return "candlestick"
	}
}

// Tick is a single trade print. Aggressor records which side crossed the
// spread to create the print, which consolidators use to split volume into
// its buy/sell components.
type Tick struct {
	Sym       string
	At        time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Aggressor Aggressor
}

func (t Tick) Symbol() string          { return t.Sym }
func (t Tick) Time() time.Time         { return t.At }
func (t Tick) EndTime() time.Time      { return t.At }
func (t Tick) DataType() BaseDataType  { return BaseDataTick }
func (t Tick) Resolution() Resolution  { return Instant() }
func (t Tick) IsClosed() bool          { return true }

// Quote is a best bid/ask snapshot. BidSize/AskSize are the standing size
// at the best bid/ask; quote-bar consolidators accumulate them into the
// bar's BidVolume/AskVolume.
type Quote struct {
	Sym     string
	At      time.Time
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	BidSize decimal.Decimal
	AskSize decimal.Decimal
}

func (q Quote) Symbol() string         { return q.Sym }
func (q Quote) Time() time.Time        { return q.At }
func (q Quote) EndTime() time.Time     { return q.At }
func (q Quote) DataType() BaseDataType { return BaseDataQuote }
func (q Quote) Resolution() Resolution { return Instant() }
func (q Quote) IsClosed() bool         { return true }

// Mid returns the midpoint of the bid/ask spread.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// Candle is an OHLCV trade bar over [Start, End). Volume is always
// AskVolume+BidVolume, split by each absorbed tick's Aggressor. Range is
// High-Low, rounded to the subscription's tick size when one is known.
type Candle struct {
	Sym       string
	Start     time.Time
	End       time.Time
	Res       Resolution
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	AskVolume decimal.Decimal
	BidVolume decimal.Decimal
	Range     decimal.Decimal
	Kind      CandleKind
	Closed    bool
}

func (c Candle) Symbol() string         { return c.Sym }
func (c Candle) Time() time.Time        { return c.Start }
func (c Candle) EndTime() time.Time     { return c.End }
func (c Candle) DataType() BaseDataType { return BaseDataCandle }
func (c Candle) Resolution() Resolution { return c.Res }
func (c Candle) IsClosed() bool         { return c.Closed }

// QuoteBar is an OHLC bar built from bid/ask quote sides over [Start, End).
// Range is AskHigh-BidLow and Spread is AskClose-BidClose, both rounded to
// the subscription's tick size when one is known.
type QuoteBar struct {
	Sym       string
	Start     time.Time
	End       time.Time
	Res       Resolution
	Bid       OHLC
	Ask       OHLC
	AskVolume decimal.Decimal
	BidVolume decimal.Decimal
	Range     decimal.Decimal
	Spread    decimal.Decimal
	Kind      CandleKind
	Closed    bool
}

// OHLC is the four-price shape shared by a QuoteBar's bid and ask sides.
type OHLC struct {
	Open  decimal.Decimal
	High  decimal.Decimal
	Low   decimal.Decimal
	Close decimal.Decimal
}

func (q QuoteBar) Symbol() string         { return q.Sym }
func (q QuoteBar) Time() time.Time        { return q.Start }
func (q QuoteBar) EndTime() time.Time     { return q.End }
func (q QuoteBar) DataType() BaseDataType { return BaseDataQuoteBar }
func (q QuoteBar) Resolution() Resolution { return q.Res }
func (q QuoteBar) IsClosed() bool         { return q.Closed }

// Mid returns a Candle-shaped view of the bar's bid/ask midpoints.
func (q QuoteBar) Mid() OHLC {
	two := decimal.NewFromInt(2)
	return OHLC{
		Open:  q.Bid.Open.Add(q.Ask.Open).Div(two),
		High:  q.Bid.High.Add(q.Ask.High).Div(two),
		Low:   q.Bid.Low.Add(q.Ask.Low).Div(two),
		Close: q.Bid.Close.Add(q.Ask.Close).Div(two),
	}
}
