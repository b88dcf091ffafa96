package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status        string          `json:"status"`
	Service       string          `json:"service"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	PriceCache    PriceCacheState `json:"price_cache"`
}

// PriceCacheState reports whether the cache database is reachable
type PriceCacheState struct {
	Enabled bool   `json:"enabled"`
	Status  string `json:"status,omitempty"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := s.getSystemStats(r.Context())

	resp := HealthResponse{
		Status:        "healthy",
		Service:       "allocator",
		Version:       "1.0.0",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
	}

	status := http.StatusOK
	if s.cfg.CacheDB != nil {
		resp.PriceCache.Enabled = true
		resp.PriceCache.Status = "ok"

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.cfg.CacheDB.QuickCheck(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Price cache health check failed")
			resp.Status = "degraded"
			resp.PriceCache.Status = "error"
			status = http.StatusServiceUnavailable
		}
	}

	s.writeJSON(w, status, resp)
}

// getSystemStats samples CPU over 100ms so health checks stay fast
func (s *Server) getSystemStats(ctx context.Context) (float64, float64) {
	cpuPercent, err := cpu.PercentWithContext(ctx, 100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
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

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
