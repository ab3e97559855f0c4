// Package csvvendor adapts a single-symbol OHLCV CSV file into the engine's
// market.Vendor and market.Broker contracts, so a run can be driven from a
// flat file without a live data subscription. It has no equivalent among
// the engine's other collaborators: every other vendor/broker is a network
// integration, this one is the offline on-ramp cmd/engine uses by default.
package csvvendor

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/market"
)

type row struct {
	day    time.Time
	open   decimal.Decimal
	high   decimal.Decimal
	low    decimal.Decimal
	close  decimal.Decimal
	volume decimal.Decimal
}

// Vendor serves historical month slices and symbol facts out of a CSV file
// loaded entirely into memory at construction time.
//
// Expected CSV header (case-insensitive): date,open,high,low,close,volume.
// Supported date formats: 2006-01-02, RFC3339, "2006-01-02 15:04:05".
type Vendor struct {
	symbol string
	rows   []row
	info   market.SymbolInfo
}

// Load reads path and builds a Vendor for symbol, using info for the
// symbol facts SymbolInfo requests will return (tick size, value per point,
// currency, initial margin).
func Load(path, symbol string, info market.SymbolInfo) (*Vendor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvvendor: open %s: %w: %v", path, enginerr.ErrStorageError, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("csvvendor: read header: %w: %v", enginerr.ErrStorageError, err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idx := func(name string) (int, error) {
		i, ok := col[name]
		if !ok {
			return 0, fmt.Errorf("csvvendor: missing column %q", name)
		}
		return i, nil
	}
	dateCol, err := idx("date")
	if err != nil {
		return nil, err
	}
	openCol, err := idx("open")
	if err != nil {
		return nil, err
	}
	highCol, err := idx("high")
	if err != nil {
		return nil, err
	}
	lowCol, err := idx("low")
	if err != nil {
		return nil, err
	}
	closeCol, err := idx("close")
	if err != nil {
		return nil, err
	}
	volCol, err := idx("volume")
	if err != nil {
		return nil, err
	}

	var rows []row
	lineNo := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvvendor: line %d: %w: %v", lineNo+1, enginerr.ErrStorageError, err)
		}
		lineNo++

		day, err := parseDate(record[dateCol])
		if err != nil {
			return nil, fmt.Errorf("csvvendor: line %d date: %w", lineNo, err)
		}
		open, err := decimal.NewFromString(strings.TrimSpace(record[openCol]))
		if err != nil {
			return nil, fmt.Errorf("csvvendor: line %d open: %w", lineNo, err)
		}
		high, err := decimal.NewFromString(strings.TrimSpace(record[highCol]))
		if err != nil {
			return nil, fmt.Errorf("csvvendor: line %d high: %w", lineNo, err)
		}
		low, err := decimal.NewFromString(strings.TrimSpace(record[lowCol]))
		if err != nil {
			return nil, fmt.Errorf("csvvendor: line %d low: %w", lineNo, err)
		}
		closePrice, err := decimal.NewFromString(strings.TrimSpace(record[closeCol]))
		if err != nil {
			return nil, fmt.Errorf("csvvendor: line %d close: %w", lineNo, err)
		}
		volume, err := decimal.NewFromString(strings.TrimSpace(record[volCol]))
		if err != nil {
			return nil, fmt.Errorf("csvvendor: line %d volume: %w", lineNo, err)
		}

		rows = append(rows, row{day: day, open: open, high: high, low: low, close: closePrice, volume: volume})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].day.Before(rows[j].day) })
	return &Vendor{symbol: symbol, rows: rows, info: info}, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("csvvendor: unrecognised date format %q", s)
}

// Name identifies this vendor in telemetry and circuit-breaker labels.
func (v *Vendor) Name() string { return "csv:" + v.symbol }

// FetchMonth returns every row falling in the given calendar month, shaped
// to match sub's requested base data type.
func (v *Vendor) FetchMonth(ctx context.Context, sub market.Subscription, year int, month time.Month) (market.TimeSlice, error) {
	if sub.Symbol != v.symbol {
		return market.TimeSlice{}, fmt.Errorf("csvvendor: no data for symbol %s", sub.Symbol)
	}
	var records []market.Record
	for _, r := range v.rows {
		if r.day.Year() != year || r.day.Month() != month {
			continue
		}
		rec, err := v.toRecord(sub, r)
		if err != nil {
			return market.TimeSlice{}, err
		}
		records = append(records, rec)
	}
	return market.TimeSlice{Subscription: sub, Year: year, Month: month, Records: records}, nil
}

func (v *Vendor) toRecord(sub market.Subscription, r row) (market.Record, error) {
	switch sub.DataType {
	case market.BaseDataCandle:
		return market.Candle{
			Sym: v.symbol, Start: r.day, End: r.day.Add(24 * time.Hour), Res: sub.Resolution,
			Open: r.open, High: r.high, Low: r.low, Close: r.close, Volume: r.volume, Closed: true,
		}, nil
	case market.BaseDataTick:
		return market.Tick{Sym: v.symbol, At: r.day, Price: r.close, Volume: r.volume}, nil
	case market.BaseDataQuote:
		return market.Quote{Sym: v.symbol, At: r.day, Bid: r.close, Ask: r.close}, nil
	default:
		return nil, fmt.Errorf("csvvendor: unsupported base data type %s for a flat-file feed", sub.DataType)
	}
}

// StreamPrimary is unsupported: a CSV vendor only ever replays historical
// rows already loaded into memory.
func (v *Vendor) StreamPrimary(ctx context.Context, sub market.Subscription) (<-chan market.Record, error) {
	return nil, fmt.Errorf("csvvendor: live streaming unsupported")
}

// HealthCheck always succeeds: the data is already resident in memory, so
// there is no I/O path that can fail after Load.
func (v *Vendor) HealthCheck(ctx context.Context) error { return nil }

// NativeResolutions reports the resolutions this vendor can serve directly.
// A flat daily OHLCV file only ever offers Day candles and a degenerate
// one-row-per-day tick/quote view; anything finer needs a real feed.
func (v *Vendor) NativeResolutions(ctx context.Context, symbol string, dataType market.BaseDataType) ([]market.Resolution, error) {
	if symbol != v.symbol {
		return nil, fmt.Errorf("csvvendor: no data for symbol %s", symbol)
	}
	switch dataType {
	case market.BaseDataCandle:
		return []market.Resolution{market.Day()}, nil
	case market.BaseDataTick, market.BaseDataQuote:
		return []market.Resolution{market.Instant()}, nil
	default:
		return nil, fmt.Errorf("csvvendor: unsupported base data type %s for a flat-file feed", dataType)
	}
}

// SymbolInfo returns the fixed symbol facts supplied at Load time.
func (v *Vendor) SymbolInfo(ctx context.Context, symbol string) (market.SymbolInfo, error) {
	if symbol != v.symbol {
		return market.SymbolInfo{}, fmt.Errorf("csvvendor: no symbol info for %s", symbol)
	}
	return v.info, nil
}

// RateToAccountCurrency only supports same-currency accounts; a flat-file
// vendor has no FX quote of its own to offer.
func (v *Vendor) RateToAccountCurrency(ctx context.Context, from, to string) (float64, error) {
	if from == to {
		return 1, nil
	}
	return 0, fmt.Errorf("csvvendor: no fx rate for %s->%s", from, to)
}

var _ market.Vendor = (*Vendor)(nil)
var _ market.Broker = (*Vendor)(nil)
