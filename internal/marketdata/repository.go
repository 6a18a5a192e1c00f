// Package marketdata persists fetched candles and quotes and the analysis derived from them.
package marketdata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/cryptodash/internal/database"
	"github.com/aristath/cryptodash/internal/domain"
)

// Repository reads and writes the market tables.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new market data repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveSnapshot upserts every candle of snap, keyed by open time.
// Bars from quote-only sources (synthetic, zero volume) fill gaps and replace other
// synthetic bars, but never overwrite a bar an exchange delivered.
func (r *Repository) SaveSnapshot(ctx context.Context, snap *domain.MarketSnapshot) error {
	if snap == nil || len(snap.Candles) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume, source, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol, timeframe, open_time) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume,
				source = excluded.source,
				fetched_at = excluded.fetched_at
			WHERE excluded.source NOT IN (?, ?) OR candles.source IN (?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare candle upsert: %w", err)
		}
		defer stmt.Close()

		lcw, cmc := string(domain.SourceLiveCoinWatch), string(domain.SourceCoinMarketCap)
		for _, c := range snap.Candles {
			if _, err := stmt.ExecContext(ctx,
				snap.Symbol, string(snap.Timeframe), c.Timestamp,
				c.Open, c.High, c.Low, c.Close, c.Volume,
				string(snap.Source), snap.LastUpdated,
				lcw, cmc, lcw, cmc,
			); err != nil {
				return fmt.Errorf("failed to upsert candle %d: %w", c.Timestamp, err)
			}
		}
		return nil
	})
}

// GetCandles returns the most recent limit candles in chronological order.
func (r *Repository) GetCandles(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume FROM (
			SELECT open_time, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND timeframe = ?
			ORDER BY open_time DESC
			LIMIT ?
		) ORDER BY open_time ASC`,
		domain.NormalizeSymbol(symbol), string(tf), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var out []domain.Candle
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveQuote stores q as the latest price of its symbol.
func (r *Repository) SaveQuote(ctx context.Context, q domain.PriceQuote) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO prices (symbol, source, price, volume_24h, change_24h, market_cap, quoted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		domain.NormalizeSymbol(q.Symbol), string(q.Source), q.Price, q.Volume24h, q.Change24h, q.MarketCap,
		q.QuotedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store quote for %s: %w", q.Symbol, err)
	}
	return nil
}

// ListQuotes returns the latest stored price of every symbol.
func (r *Repository) ListQuotes(ctx context.Context) ([]domain.PriceQuote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, source, price, volume_24h, change_24h, market_cap, quoted_at
		FROM prices ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceQuote
	for rows.Next() {
		var (
			q        domain.PriceQuote
			source   string
			quotedAt int64
		)
		if err := rows.Scan(&q.Symbol, &source, &q.Price, &q.Volume24h, &q.Change24h, &q.MarketCap, &quotedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		q.Source = domain.Source(source)
		q.QuotedAt = time.UnixMilli(quotedAt).UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

// SaveIndicators replaces the stored values of the given indicators.
func (r *Repository) SaveIndicators(ctx context.Context, values []domain.IndicatorValue) error {
	if len(values) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, v := range values {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO indicators (symbol, timeframe, name, value, candle_time, computed_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				domain.NormalizeSymbol(v.Symbol), string(v.Timeframe), v.Name, v.Value, v.CandleTime, v.ComputedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("failed to store indicator %s: %w", v.Name, err)
			}
		}
		return nil
	})
}

// GetIndicators returns the stored indicator values of one series keyed by name.
func (r *Repository) GetIndicators(ctx context.Context, symbol string, tf domain.Timeframe) (map[string]domain.IndicatorValue, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, timeframe, name, value, candle_time, computed_at
		FROM indicators WHERE symbol = ? AND timeframe = ?`,
		domain.NormalizeSymbol(symbol), string(tf),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	defer rows.Close()

	out := make(map[string]domain.IndicatorValue)
	for rows.Next() {
		var (
			v          domain.IndicatorValue
			timeframe  string
			computedAt int64
		)
		if err := rows.Scan(&v.Symbol, &timeframe, &v.Name, &v.Value, &v.CandleTime, &computedAt); err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		v.Timeframe = domain.Timeframe(timeframe)
		v.ComputedAt = time.UnixMilli(computedAt).UTC()
		out[v.Name] = v
	}
	return out, rows.Err()
}

// SavePatterns stores detected patterns. Re-detecting a pattern on the same bar updates it.
func (r *Repository) SavePatterns(ctx context.Context, patterns []domain.Pattern) error {
	if len(patterns) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, p := range patterns {
			if _, err := tx.ExecContext(ctx, `
				INSERT OR REPLACE INTO patterns (symbol, timeframe, pattern, direction, strength, candle_time, detected_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				domain.NormalizeSymbol(p.Symbol), string(p.Timeframe), p.Name, string(p.Direction), p.Strength,
				p.CandleTime, p.DetectedAt.UnixMilli(),
			); err != nil {
				return fmt.Errorf("failed to store pattern %s: %w", p.Name, err)
			}
		}
		return nil
	})
}

// ListPatterns returns the newest patterns of symbol (every timeframe), newest bar first.
func (r *Repository) ListPatterns(ctx context.Context, symbol string, limit int) ([]domain.Pattern, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, timeframe, pattern, direction, strength, candle_time, detected_at
		FROM patterns WHERE symbol = ?
		ORDER BY candle_time DESC, timeframe, pattern
		LIMIT ?`,
		domain.NormalizeSymbol(symbol), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []domain.Pattern
	for rows.Next() {
		var (
			p          domain.Pattern
			timeframe  string
			direction  string
			detectedAt int64
		)
		if err := rows.Scan(&p.Symbol, &timeframe, &p.Name, &direction, &p.Strength, &p.CandleTime, &detectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan pattern: %w", err)
		}
		p.Timeframe = domain.Timeframe(timeframe)
		p.Direction = domain.Direction(direction)
		p.DetectedAt = time.UnixMilli(detectedAt).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// SaveSignal stores one generated signal.
func (r *Repository) SaveSignal(ctx context.Context, s domain.Signal) error {
	reasons, err := json.Marshal(s.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO signals (id, symbol, timeframe, action, confidence, price, reasons, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, domain.NormalizeSymbol(s.Symbol), string(s.Timeframe), string(s.Action), s.Confidence, s.Price,
		string(reasons), s.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to store signal: %w", err)
	}
	return nil
}

// ListSignals returns the newest signals, optionally for one symbol.
func (r *Repository) ListSignals(ctx context.Context, symbol string, limit int) ([]domain.Signal, error) {
	query := `SELECT id, symbol, timeframe, action, confidence, price, reasons, created_at FROM signals`
	var args []interface{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, domain.NormalizeSymbol(symbol))
	}
	query += " ORDER BY created_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var (
			s         domain.Signal
			timeframe string
			action    string
			reasons   string
			createdAt int64
		)
		if err := rows.Scan(&s.ID, &s.Symbol, &timeframe, &action, &s.Confidence, &s.Price, &reasons, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		s.Timeframe = domain.Timeframe(timeframe)
		s.Action = domain.Action(action)
		s.CreatedAt = time.UnixMilli(createdAt).UTC()
		if err := json.Unmarshal([]byte(reasons), &s.Reasons); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reasons: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
