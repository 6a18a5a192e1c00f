package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/cryptodash/internal/domain"
)

const defaultListLimit = 50

func listLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > 1000 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}

// handleGetIndicators handles GET /api/indicators/{symbol}/{timeframe}
func (s *Server) handleGetIndicators(w http.ResponseWriter, r *http.Request) {
	tf, err := domain.ParseTimeframe(chi.URLParam(r, "timeframe"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))

	values, err := s.cfg.Repo.GetIndicators(r.Context(), symbol, tf)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if len(values) == 0 {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("no indicators for %s %s", symbol, tf))
		return
	}
	s.writeData(w, http.StatusOK, values)
}

// handleGetPatterns handles GET /api/patterns/{symbol}?limit=
func (s *Server) handleGetPatterns(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patterns, err := s.cfg.Repo.ListPatterns(r.Context(), chi.URLParam(r, "symbol"), limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if patterns == nil {
		patterns = []domain.Pattern{}
	}
	s.writeData(w, http.StatusOK, patterns)
}

// handleGetSignals handles GET /api/signals?symbol=&limit=
func (s *Server) handleGetSignals(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	signals, err := s.cfg.Repo.ListSignals(r.Context(), r.URL.Query().Get("symbol"), limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if signals == nil {
		signals = []domain.Signal{}
	}
	s.writeData(w, http.StatusOK, signals)
}
