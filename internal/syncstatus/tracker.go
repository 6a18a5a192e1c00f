package syncstatus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	// BaseBackoff is the wait after the first consecutive failure.
	BaseBackoff = 30 * time.Second
	// MaxBackoff caps the exponential wait.
	MaxBackoff = 30 * time.Minute
	// StaleSyncing is how long a syncing record blocks new attempts.
	// A crashed run leaves its records in syncing; they are retried after this.
	StaleSyncing = 10 * time.Minute
)

// Backoff returns 30s·2^(retries-1) capped at MaxBackoff. No retries means no wait.
func Backoff(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	d := BaseBackoff
	for i := 1; i < retries; i++ {
		d *= 2
		if d >= MaxBackoff {
			return MaxBackoff
		}
	}
	return d
}

// Tracker applies the status lifecycle on top of a Store.
type Tracker struct {
	store Store
	now   func() time.Time
	log   zerolog.Logger
}

// NewTracker creates a tracker over store.
func NewTracker(store Store, log zerolog.Logger) *Tracker {
	return &Tracker{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "sync_status").Logger(),
	}
}

// WithClock replaces time.Now. Intended for tests.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) current(ctx context.Context, key Key) (Record, error) {
	rec, err := t.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return Record{
			DataType:  key.DataType,
			Symbol:    key.Symbol,
			Timeframe: key.Timeframe,
			Source:    key.Source,
			Status:    StatusPending,
			Metadata:  map[string]string{},
		}, nil
	}
	if err != nil {
		return Record{}, err
	}
	return *rec, nil
}

// MarkSyncing records the start of an attempt. Retry bookkeeping is preserved.
func (t *Tracker) MarkSyncing(ctx context.Context, key Key) error {
	rec, err := t.current(ctx, key)
	if err != nil {
		return err
	}

	rec.Status = StatusSyncing
	rec.LastSyncAt = t.now().UTC()
	return t.store.Upsert(ctx, rec)
}

// MarkSuccess records a successful attempt and resets retry bookkeeping.
func (t *Tracker) MarkSuccess(ctx context.Context, key Key, metadata map[string]string) error {
	rec, err := t.current(ctx, key)
	if err != nil {
		return err
	}

	rec.Status = StatusSuccess
	rec.LastSyncAt = t.now().UTC()
	rec.NextSyncAt = nil
	rec.RetryCount = 0
	rec.ErrorMessage = ""
	rec.Metadata = nonNilMetadata(metadata)
	return t.store.Upsert(ctx, rec)
}

// MarkError records a failed attempt and opens the backoff window.
func (t *Tracker) MarkError(ctx context.Context, key Key, syncErr error) error {
	rec, err := t.current(ctx, key)
	if err != nil {
		return err
	}

	now := t.now().UTC()
	rec.Status = StatusError
	rec.LastSyncAt = now
	rec.RetryCount++
	next := now.Add(Backoff(rec.RetryCount))
	rec.NextSyncAt = &next
	if syncErr != nil {
		rec.ErrorMessage = syncErr.Error()
	}

	t.log.Warn().
		Err(syncErr).
		Str("data_type", key.DataType).
		Str("symbol", key.Symbol).
		Str("timeframe", string(key.Timeframe)).
		Str("source", key.Source).
		Int("retry_count", rec.RetryCount).
		Time("next_sync_at", next).
		Msg("Sync failed")

	return t.store.Upsert(ctx, rec)
}

// ShouldSync reports whether key may be attempted now.
// It is false while a backoff window is open or another attempt is recent and unfinished.
func (t *Tracker) ShouldSync(ctx context.Context, key Key) (bool, error) {
	rec, err := t.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read sync status: %w", err)
	}

	now := t.now()
	switch rec.Status {
	case StatusError:
		if rec.NextSyncAt != nil && now.Before(*rec.NextSyncAt) {
			return false, nil
		}
	case StatusSyncing:
		if now.Sub(rec.LastSyncAt) < StaleSyncing {
			return false, nil
		}
	}
	return true, nil
}

// Get returns the record for key or ErrNotFound.
func (t *Tracker) Get(ctx context.Context, key Key) (*Record, error) {
	return t.store.Get(ctx, key)
}

// List returns records matching filter.
func (t *Tracker) List(ctx context.Context, filter Filter) ([]Record, error) {
	return t.store.List(ctx, filter)
}
