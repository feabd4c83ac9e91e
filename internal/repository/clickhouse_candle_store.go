package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"EdgeScan/internal/domain/models"
	domrepo "EdgeScan/internal/domain/repository"
	pkgch "EdgeScan/pkg/clickhouse"
	applogger "EdgeScan/pkg/logger"
)

const defaultDatabase = "edgescan"

// CHCandleStore implements CandleStore backed by ClickHouse. Each timeframe lives in
// its own table with indicator columns filled upstream; missing indicators are NULL.
type CHCandleStore struct {
	db       *sql.DB
	database string
	l        *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, database string) *CHCandleStore {
	if database == "" {
		database = defaultDatabase
	}
	return &CHCandleStore{db: ch.DB(), database: database}
}

// SetLogger injects a structured logger.
func (s *CHCandleStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHCandleStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetCandles returns bars in [from, to] in ascending time order. A zero bound is open.
func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	table, err := tableForTF(s.database, tf)
	if err != nil {
		return nil, err
	}
	if to.IsZero() {
		to = time.Now().UTC()
	}
	q := fmt.Sprintf(candlesQuery, table)

	fail := func(stage string, err error) {
		if s.l == nil {
			return
		}
		s.l.Error("clickhouse get_candles "+stage+" error",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
	}

	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		fail("query", err)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 1024)
	for rows.Next() {
		var r candleRow
		if err := rows.Scan(r.dest()...); err != nil {
			fail("scan", err)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, r.candle())
	}
	if err := rows.Err(); err != nil {
		fail("rows", err)
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse get_candles ok",
			applogger.String("table", table),
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(out)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return out, nil
}

const candlesQuery = `
        SELECT bucket, open, high, low, close, volume,
               rsi, sma200, adx, body_size_pct, buy_pressure_pct, delta, adr_filled_pct,
               hour_local, hour_utc
        FROM %s
        WHERE symbol = ? AND bucket >= ? AND bucket <= ?
        ORDER BY bucket ASC
    `

type candleRow struct {
	bucket                 time.Time
	open, high, low, close float64
	volume                 sql.NullFloat64
	rsi, sma, adx          sql.NullFloat64
	body, bp, delta, adr   sql.NullFloat64
	hourLocal, hourUTC     sql.NullInt32
}

func (r *candleRow) dest() []any {
	return []any{
		&r.bucket, &r.open, &r.high, &r.low, &r.close, &r.volume,
		&r.rsi, &r.sma, &r.adx, &r.body, &r.bp, &r.delta, &r.adr,
		&r.hourLocal, &r.hourUTC,
	}
}

func (r *candleRow) candle() models.Candle {
	return models.Candle{
		Timestamp:      r.bucket.UTC(),
		Open:           r.open,
		High:           r.high,
		Low:            r.low,
		Close:          r.close,
		Volume:         nullFloat(r.volume),
		RSI:            nullFloat(r.rsi),
		SMA200:         nullFloat(r.sma),
		ADX:            nullFloat(r.adx),
		BodySizePct:    nullFloat(r.body),
		BuyPressurePct: nullFloat(r.bp),
		Delta:          nullFloat(r.delta),
		ADRFilledPct:   nullFloat(r.adr),
		HourLocal:      nullHour(r.hourLocal),
		HourUTC:        nullHour(r.hourUTC),
	}
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func nullHour(n sql.NullInt32) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int32)
	return &v
}

func tableForTF(database string, tf domrepo.Timeframe) (string, error) {
	if !domrepo.IsValidTimeframe(tf) {
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
	return fmt.Sprintf("%s.candles_%s", database, tf), nil
}

// CandleSchema returns idempotent DDL for every supported timeframe table.
func CandleSchema(database string) []string {
	if database == "" {
		database = defaultDatabase
	}
	stmts := []string{fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database)}
	for _, tf := range []domrepo.Timeframe{domrepo.TF1m, domrepo.TF5m, domrepo.TF15m, domrepo.TF1h, domrepo.TF4h, domrepo.TF1d} {
		table, _ := tableForTF(database, tf)
		stmts = append(stmts, fmt.Sprintf(candleDDL, table))
	}
	return stmts
}

const candleDDL = `
        CREATE TABLE IF NOT EXISTS %s (
            symbol LowCardinality(String),
            bucket DateTime64(3, 'UTC'),
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            volume Nullable(Float64),
            rsi Nullable(Float64),
            sma200 Nullable(Float64),
            adx Nullable(Float64),
            body_size_pct Nullable(Float64),
            buy_pressure_pct Nullable(Float64),
            delta Nullable(Float64),
            adr_filled_pct Nullable(Float64),
            hour_local Nullable(Int32),
            hour_utc Nullable(Int32)
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, bucket)
    `
