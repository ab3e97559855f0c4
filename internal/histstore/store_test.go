package histstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/market"
)

func sampleSlice() market.TimeSlice {
	sub := market.Subscription{Symbol: "ES", DataType: market.BaseDataCandle, Resolution: market.Day(), Primary: true}
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return market.TimeSlice{
		Subscription: sub, Year: 2024, Month: time.January,
		Records: []market.Record{
			market.Candle{Sym: "ES", Start: day, End: day.AddDate(0, 0, 1), Res: market.Day(),
				Open: decimal.NewFromInt(4000), High: decimal.NewFromInt(4010), Low: decimal.NewFromInt(3990),
				Close: decimal.NewFromInt(4005), Volume: decimal.NewFromInt(1000), Closed: true},
		},
	}
}

func TestContentHashIsStableAcrossCalls(t *testing.T) {
	slice := sampleSlice()
	h1, err := ContentHash(slice)
	if err != nil {
		t.Fatalf("hash 1: %v", err)
	}
	h2, err := ContentHash(slice)
	if err != nil {
		t.Fatalf("hash 2: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected identical content hashes for identical slices, got %s and %s", h1, h2)
	}
}

func TestContentHashChangesWithPayload(t *testing.T) {
	slice := sampleSlice()
	h1, err := ContentHash(slice)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	mutated := sampleSlice()
	c := mutated.Records[0].(market.Candle)
	c.Close = c.Close.Add(decimal.NewFromInt(1))
	mutated.Records[0] = c
	h2, err := ContentHash(mutated)
	if err != nil {
		t.Fatalf("hash mutated: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected the content hash to change when a record's payload changes")
	}
}

func TestEncodeDecodeRoundTripsEveryRecordVariant(t *testing.T) {
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	records := []market.Record{
		market.Tick{Sym: "ES", At: now, Price: decimal.NewFromInt(4000), Volume: decimal.NewFromInt(1)},
		market.Quote{Sym: "ES", At: now, Bid: decimal.NewFromInt(3999), Ask: decimal.NewFromInt(4001)},
		market.Candle{Sym: "ES", Start: now, End: now.Add(time.Minute), Res: market.Minutes(1),
			Open: decimal.NewFromInt(4000), High: decimal.NewFromInt(4010), Low: decimal.NewFromInt(3990), Close: decimal.NewFromInt(4005), Closed: true},
		market.QuoteBar{Sym: "ES", Start: now, End: now.Add(time.Minute), Res: market.Minutes(1), Closed: true},
	}
	for _, r := range records {
		slice := market.TimeSlice{Records: []market.Record{r}}
		payload, _, err := encodeSlice(slice)
		if err != nil {
			t.Fatalf("encode %T: %v", r, err)
		}
		var envelopes []recordEnvelope
		if err := json.Unmarshal(payload, &envelopes); err != nil {
			t.Fatalf("unmarshal envelopes for %T: %v", r, err)
		}
		decoded, err := decodeRecord(envelopes[0])
		if err != nil {
			t.Fatalf("decode %T: %v", r, err)
		}
		if decoded.Symbol() != r.Symbol() || decoded.DataType() != r.DataType() {
			t.Errorf("round-trip mismatch for %T: got %+v", r, decoded)
		}
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	if err == nil {
		t.Fatal("expected an error when no DSN is configured")
	}
	if !errors.Is(err, enginerr.ErrStorageError) {
		t.Errorf("expected a storage error, got %v", err)
	}
}
