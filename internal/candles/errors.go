package candles

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aristath/cryptodash/internal/domain"
)

var (
	// ErrNoDataAvailable matches every NoDataAvailableError.
	ErrNoDataAvailable = errors.New("no data available")

	// ErrAllTimeframesFailed matches every AllTimeframesFailedError.
	ErrAllTimeframesFailed = errors.New("all timeframes failed")

	// ErrEmptyResult is returned by normalization when a source yields no bars.
	ErrEmptyResult = errors.New("empty result")
)

// SourceAttempt records one failed fetch from one source.
type SourceAttempt struct {
	Source domain.Source
	Err    error
}

// NoDataAvailableError is returned when every candidate source failed for one symbol/timeframe.
type NoDataAvailableError struct {
	Symbol    string
	Timeframe domain.Timeframe
	Attempts  []SourceAttempt
}

func (e *NoDataAvailableError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Source, a.Err))
	}
	return fmt.Sprintf("no data available for %s %s (tried %s)", e.Symbol, e.Timeframe, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrNoDataAvailable) true.
func (e *NoDataAvailableError) Is(target error) bool {
	return target == ErrNoDataAvailable
}

// Unwrap exposes the per-source errors.
func (e *NoDataAvailableError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// AttemptedSources lists the sources in the order they were tried.
func (e *NoDataAvailableError) AttemptedSources() []domain.Source {
	out := make([]domain.Source, len(e.Attempts))
	for i, a := range e.Attempts {
		out[i] = a.Source
	}
	return out
}

// AllTimeframesFailedError is returned when no requested timeframe could be resolved.
type AllTimeframesFailedError struct {
	Symbol   string
	Failures map[domain.Timeframe]error
}

func (e *AllTimeframesFailedError) Error() string {
	tfs := make([]string, 0, len(e.Failures))
	for tf := range e.Failures {
		tfs = append(tfs, string(tf))
	}
	sort.Strings(tfs)
	return fmt.Sprintf("all timeframes failed for %s: %s", e.Symbol, strings.Join(tfs, ", "))
}

// Is makes errors.Is(err, ErrAllTimeframesFailed) true.
func (e *AllTimeframesFailedError) Is(target error) bool {
	return target == ErrAllTimeframesFailed
}

// Unwrap exposes the per-timeframe errors.
func (e *AllTimeframesFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, err := range e.Failures {
		errs = append(errs, err)
	}
	return errs
}
