package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/aristath/cryptodash/internal/candles"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/tasks"
)

// writeData writes the {"data", "metadata"} envelope.
func (s *Server) writeData(w http.ResponseWriter, status int, data interface{}) {
	s.writeJSON(w, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeFailure maps err onto a status code.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Int("status", status).Msg("Request failed")
	}

	var allFailed *candles.AllTimeframesFailedError
	if errors.As(err, &allFailed) {
		s.writeJSON(w, status, map[string]interface{}{
			"error":    err.Error(),
			"failures": failureMessages(allFailed.Failures),
		})
		return
	}

	var noData *candles.NoDataAvailableError
	if errors.As(err, &noData) {
		s.writeJSON(w, status, map[string]interface{}{
			"error":             err.Error(),
			"attempted_sources": noData.AttemptedSources(),
		})
		return
	}
	s.writeError(w, status, err.Error())
}

func failureMessages(failures map[domain.Timeframe]error) map[domain.Timeframe]string {
	out := make(map[domain.Timeframe]string, len(failures))
	for tf, err := range failures {
		out[tf] = err.Error()
	}
	return out
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, candles.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, tasks.ErrUnknownTask):
		return http.StatusNotFound
	case errors.Is(err, candles.ErrNoDataAvailable), errors.Is(err, candles.ErrAllTimeframesFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
