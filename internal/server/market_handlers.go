package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/aristath/cryptodash/internal/candles"
	"github.com/aristath/cryptodash/internal/domain"
)

// handleGetCandles handles GET /api/candles/{symbol}/{timeframe}?source=&refresh=&limit=
func (s *Server) handleGetCandles(w http.ResponseWriter, r *http.Request) {
	tf, err := domain.ParseTimeframe(chi.URLParam(r, "timeframe"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	source, err := domain.ParseSource(q.Get("source"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	refresh := false
	if v := q.Get("refresh"); v != "" {
		if refresh, err = strconv.ParseBool(v); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid refresh %q", v))
			return
		}
	}

	limit := 0
	if v := q.Get("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid limit %q", v))
			return
		}
	}

	snap, err := s.cfg.Fetcher.GetCandles(r.Context(), candles.Request{
		Symbol:          chi.URLParam(r, "symbol"),
		Timeframe:       tf,
		PreferredSource: source,
		BypassCache:     refresh,
		Limit:           limit,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	s.writeData(w, http.StatusOK, snap)
}

// marketResponse is the multi-timeframe view of one symbol.
type marketResponse struct {
	Symbol    string                                      `json:"symbol"`
	Snapshots map[domain.Timeframe]*domain.MarketSnapshot `json:"snapshots"`
	Freshness map[domain.Timeframe]candles.Freshness      `json:"freshness"`
	Failures  map[domain.Timeframe]string                 `json:"failures"`
}

// handleGetMarket handles GET /api/market/{symbol}?timeframes=
func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	s.loadMarket(w, r, false)
}

// handleRefreshMarket handles POST /api/market/{symbol}/refresh?timeframes=
func (s *Server) handleRefreshMarket(w http.ResponseWriter, r *http.Request) {
	s.loadMarket(w, r, true)
}

func (s *Server) loadMarket(w http.ResponseWriter, r *http.Request, bypassCache bool) {
	symbol := domain.NormalizeSymbol(chi.URLParam(r, "symbol"))

	timeframes, err := domain.ParseTimeframes(r.URL.Query().Get("timeframes"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(timeframes) == 0 {
		timeframes = s.cfg.Timeframes
	}

	res := s.cfg.Loader.LoadTimeframes(r.Context(), symbol, timeframes, bypassCache)
	if len(res.Snapshots) == 0 && len(res.Failures) > 0 {
		s.writeFailure(w, &candles.AllTimeframesFailedError{Symbol: symbol, Failures: res.Failures})
		return
	}

	s.writeData(w, http.StatusOK, marketResponse{
		Symbol:    symbol,
		Snapshots: res.Snapshots,
		Freshness: s.cfg.Loader.CheckFreshness(res.Snapshots),
		Failures:  failureMessages(res.Failures),
	})
}

// handleCacheStats handles GET /api/cache/stats
func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, http.StatusOK, s.cfg.Cache.Stats())
}

// handleClearCache handles DELETE /api/cache
func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	cleared := s.cfg.Cache.Len()
	s.cfg.Cache.Clear()
	s.log.Info().Int("cleared", cleared).Msg("Snapshot cache cleared")
	s.writeData(w, http.StatusOK, map[string]int{"cleared": cleared})
}
