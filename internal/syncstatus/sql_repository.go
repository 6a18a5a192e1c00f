package syncstatus

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/cryptodash/internal/domain"
)

// SQLRepository stores records in the sync_status table of the market database.
type SQLRepository struct {
	db *sql.DB
}

// NewSQLRepository creates a repository over db. The schema is applied by database.DB.Migrate.
func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

const selectColumns = `data_type, symbol, timeframe, source, status, last_sync_at,
	next_sync_at, retry_count, error_message, metadata`

// Get returns the record for key or ErrNotFound.
func (r *SQLRepository) Get(ctx context.Context, key Key) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+selectColumns+" FROM sync_status WHERE data_type = ? AND symbol = ? AND timeframe = ? AND source = ?",
		key.DataType, key.Symbol, string(key.Timeframe), key.Source,
	)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync status: %w", err)
	}
	return rec, nil
}

// Upsert inserts or replaces the record for rec.Key().
func (r *SQLRepository) Upsert(ctx context.Context, rec Record) error {
	metadata, err := json.Marshal(nonNilMetadata(rec.Metadata))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	var nextSync sql.NullInt64
	if rec.NextSyncAt != nil {
		nextSync = sql.NullInt64{Int64: rec.NextSyncAt.UnixMilli(), Valid: true}
	}
	var errMsg sql.NullString
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO sync_status (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(data_type, symbol, timeframe, source) DO UPDATE SET
			status = excluded.status,
			last_sync_at = excluded.last_sync_at,
			next_sync_at = excluded.next_sync_at,
			retry_count = excluded.retry_count,
			error_message = excluded.error_message,
			metadata = excluded.metadata`,
		rec.DataType, rec.Symbol, string(rec.Timeframe), rec.Source, string(rec.Status),
		rec.LastSyncAt.UnixMilli(), nextSync, rec.RetryCount, errMsg, string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert sync status: %w", err)
	}
	return nil
}

// List returns records matching filter ordered by key.
func (r *SQLRepository) List(ctx context.Context, filter Filter) ([]Record, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.DataType != "" {
		where = append(where, "data_type = ?")
		args = append(args, filter.DataType)
	}
	if filter.Symbol != "" {
		where = append(where, "symbol = ?")
		args = append(args, domain.NormalizeSymbol(filter.Symbol))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + selectColumns + " FROM sync_status"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY data_type, symbol, timeframe, source"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync status: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync status: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec        Record
		timeframe  string
		status     string
		lastSyncMs int64
		nextSyncMs sql.NullInt64
		errMsg     sql.NullString
		metadata   string
	)
	if err := s.Scan(&rec.DataType, &rec.Symbol, &timeframe, &rec.Source, &status,
		&lastSyncMs, &nextSyncMs, &rec.RetryCount, &errMsg, &metadata); err != nil {
		return nil, err
	}

	rec.Timeframe = domain.Timeframe(timeframe)
	rec.Status = Status(status)
	rec.LastSyncAt = time.UnixMilli(lastSyncMs).UTC()
	if nextSyncMs.Valid {
		next := time.UnixMilli(nextSyncMs.Int64).UTC()
		rec.NextSyncAt = &next
	}
	rec.ErrorMessage = errMsg.String

	rec.Metadata = map[string]string{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &rec, nil
}

func nonNilMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
