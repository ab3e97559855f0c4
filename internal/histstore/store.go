// Package histstore is the historical month-slice storage collaborator: a
// Postgres-backed table keyed by (vendor, symbol, resolution, base data
// type, year, month), storing each month's records as a content-hashed JSON
// blob for reproducibility auditing.
package histstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/eventkernel/tradeengine/internal/enginerr"
	"github.com/eventkernel/tradeengine/internal/market"
)

// Config mirrors the database library's connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	RetryAttempts   int
	RetryDelay      time.Duration
}

// Store is a Postgres-backed month_slices table.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS month_slices (
	vendor       TEXT NOT NULL,
	symbol       TEXT NOT NULL,
	data_type    INT NOT NULL,
	resolution   TEXT NOT NULL,
	year         INT NOT NULL,
	month        INT NOT NULL,
	content_hash TEXT NOT NULL,
	payload      JSONB NOT NULL,
	PRIMARY KEY (vendor, symbol, data_type, resolution, year, month)
)`

// Open connects to Postgres with the same retry/backoff shape the database
// library uses, then ensures the month_slices table exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("histstore: %w: empty dsn", enginerr.ErrStorageError)
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	var db *sql.DB
	var err error
	delay := cfg.RetryDelay
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
		db, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			continue
		}
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
		if err = db.PingContext(ctx); err != nil {
			db.Close()
			continue
		}
		break
	}
	if err != nil {
		return nil, fmt.Errorf("histstore: connect: %w: %v", enginerr.ErrStorageError, err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("histstore: migrate: %w: %v", enginerr.ErrStorageError, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// HealthCheck pings Postgres with a bounded timeout.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("histstore: health check: %w: %v", enginerr.ErrStorageError, err)
	}
	return nil
}

// recordEnvelope carries enough of a Record's shape through JSON to
// reconstruct the concrete variant on read.
type recordEnvelope struct {
	Type   market.BaseDataType `json:"type"`
	Record json.RawMessage     `json:"record"`
}

func encodeSlice(slice market.TimeSlice) ([]byte, string, error) {
	envelopes := make([]recordEnvelope, 0, len(slice.Records))
	for _, r := range slice.Records {
		b, err := json.Marshal(r)
		if err != nil {
			return nil, "", fmt.Errorf("histstore: encode record: %w", err)
		}
		envelopes = append(envelopes, recordEnvelope{Type: r.DataType(), Record: b})
	}
	payload, err := json.Marshal(envelopes)
	if err != nil {
		return nil, "", fmt.Errorf("histstore: encode slice: %w", err)
	}
	sum := sha256.Sum256(payload)
	return payload, hex.EncodeToString(sum[:]), nil
}

// Put persists slice, overwriting any previous content for the same key.
func (s *Store) Put(ctx context.Context, vendor string, slice market.TimeSlice) error {
	payload, hash, err := encodeSlice(slice)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO month_slices (vendor, symbol, data_type, resolution, year, month, content_hash, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (vendor, symbol, data_type, resolution, year, month)
		DO UPDATE SET content_hash = EXCLUDED.content_hash, payload = EXCLUDED.payload
	`, vendor, slice.Subscription.Symbol, int(slice.Subscription.DataType), slice.Subscription.Resolution.String(),
		slice.Year, int(slice.Month), hash, payload)
	if err != nil {
		return fmt.Errorf("histstore: put: %w: %v", enginerr.ErrStorageError, err)
	}
	return nil
}

// Get returns a previously stored month slice and its content hash, or
// (TimeSlice{}, "", false, nil) if no row exists for the key.
func (s *Store) Get(ctx context.Context, vendor string, sub market.Subscription, year int, month time.Month) (market.TimeSlice, string, bool, error) {
	var payload []byte
	var hash string
	row := s.db.QueryRowContext(ctx, `
		SELECT content_hash, payload FROM month_slices
		WHERE vendor=$1 AND symbol=$2 AND data_type=$3 AND resolution=$4 AND year=$5 AND month=$6
	`, vendor, sub.Symbol, int(sub.DataType), sub.Resolution.String(), year, int(month))
	if err := row.Scan(&hash, &payload); err != nil {
		if err == sql.ErrNoRows {
			return market.TimeSlice{}, "", false, nil
		}
		return market.TimeSlice{}, "", false, fmt.Errorf("histstore: get: %w: %v", enginerr.ErrStorageError, err)
	}

	var envelopes []recordEnvelope
	if err := json.Unmarshal(payload, &envelopes); err != nil {
		return market.TimeSlice{}, "", false, fmt.Errorf("histstore: decode slice: %w: %v", enginerr.ErrStorageError, err)
	}
	records := make([]market.Record, 0, len(envelopes))
	for _, e := range envelopes {
		r, err := decodeRecord(e)
		if err != nil {
			return market.TimeSlice{}, "", false, err
		}
		records = append(records, r)
	}
	slice := market.TimeSlice{Subscription: sub, Year: year, Month: month, Records: records}
	return slice, hash, true, nil
}

func decodeRecord(e recordEnvelope) (market.Record, error) {
	switch e.Type {
	case market.BaseDataTick:
		var t market.Tick
		if err := json.Unmarshal(e.Record, &t); err != nil {
			return nil, fmt.Errorf("histstore: decode tick: %w", err)
		}
		return t, nil
	case market.BaseDataQuote:
		var q market.Quote
		if err := json.Unmarshal(e.Record, &q); err != nil {
			return nil, fmt.Errorf("histstore: decode quote: %w", err)
		}
		return q, nil
	case market.BaseDataCandle:
		var c market.Candle
		if err := json.Unmarshal(e.Record, &c); err != nil {
			return nil, fmt.Errorf("histstore: decode candle: %w", err)
		}
		return c, nil
	case market.BaseDataQuoteBar:
		var qb market.QuoteBar
		if err := json.Unmarshal(e.Record, &qb); err != nil {
			return nil, fmt.Errorf("histstore: decode quote bar: %w", err)
		}
		return qb, nil
	default:
		return nil, fmt.Errorf("histstore: decode: unknown base data type %d", e.Type)
	}
}

// ContentHash returns the hash Put would currently compute for slice,
// letting a caller verify a previously stored slice without re-reading it.
func ContentHash(slice market.TimeSlice) (string, error) {
	_, hash, err := encodeSlice(slice)
	return hash, err
}
