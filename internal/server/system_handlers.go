package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/cryptodash/internal/database"
	"github.com/aristath/cryptodash/internal/domain"
	"github.com/aristath/cryptodash/internal/scheduler"
)

// SystemStatusResponse is returned by GET /api/system/status.
type SystemStatusResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	CPUPercent    float64           `json:"cpu_percent"`
	MemoryPercent float64           `json:"memory_percent"`
	Goroutines    int               `json:"goroutines"`
	HeapAllocMB   float64           `json:"heap_alloc_mb"`
	CacheSize     int               `json:"cache_size"`
	Sources       []domain.Source   `json:"sources"`
	Jobs          []scheduler.Entry `json:"jobs"`
	Database      *database.Stats   `json:"database,omitempty"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if s.cfg.MarketDB != nil {
		if err := s.cfg.MarketDB.HealthCheck(r.Context()); err != nil {
			s.log.Error().Err(err).Msg("Database health check failed")
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

// handleSystemStatus handles GET /api/system/status
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.getSystemStats()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	resp := SystemStatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.cfg.StartedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   float64(ms.HeapAlloc) / 1024 / 1024,
		Sources:       []domain.Source{},
		Jobs:          []scheduler.Entry{},
	}
	if s.cfg.Cache != nil {
		resp.CacheSize = s.cfg.Cache.Len()
	}
	if s.cfg.Fetcher != nil {
		resp.Sources = s.cfg.Fetcher.Sources()
	}
	if s.cfg.Jobs != nil {
		resp.Jobs = s.cfg.Jobs.Entries()
	}
	if s.cfg.MarketDB != nil {
		stats, err := s.cfg.MarketDB.GetStats()
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to read database stats")
		} else {
			resp.Database = stats
		}
	}

	s.writeData(w, http.StatusOK, resp)
}

// handleSymbols handles GET /api/symbols
func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	type symbolInfo struct {
		Symbol      string `json:"symbol"`
		DisplayName string `json:"display_name"`
	}

	out := make([]symbolInfo, 0, len(s.cfg.Symbols))
	for _, sym := range s.cfg.Symbols {
		out = append(out, symbolInfo{Symbol: sym, DisplayName: domain.DisplayName(sym)})
	}
	s.writeData(w, http.StatusOK, map[string]interface{}{
		"symbols":    out,
		"timeframes": s.cfg.Timeframes,
	})
}

// getSystemStats returns CPU and RAM usage percentages.
// CPU is sampled over 100ms to keep the request fast.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}
