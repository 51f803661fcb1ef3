// ABOUTME: HTTP handlers for health, live session listing, and feature usage stats
// ABOUTME: /health is public; /api/* sits behind the admin bearer-token middleware

package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/2389/vision-gateway/internal/session"
	"github.com/2389/vision-gateway/internal/store"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string        `json:"status"`
	ActiveConnections int           `json:"activeConnections"`
	UptimeSeconds     int64         `json:"uptimeSeconds"`
	Process           *ProcessStats `json:"process,omitempty"`
}

// ProcessStats describes the gateway process itself.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rssBytes"`
	CPUPercent float64 `json:"cpuPercent"`
	Goroutines int     `json:"goroutines"`
}

// SessionsResponse is the body of GET /api/sessions.
type SessionsResponse struct {
	Count    int            `json:"count"`
	Sessions []session.Info `json:"sessions"`
}

// UsageStatsResponse is the body of GET /api/usage.
type UsageStatsResponse struct {
	Features []FeatureUsageStats `json:"features"`
}

// FeatureUsageStats aggregates one feature's usage.
type FeatureUsageStats struct {
	Feature      string  `json:"feature"`
	Requests     int64   `json:"requests"`
	Failures     int64   `json:"failures"`
	AvgLatencyMS float64 `json:"avgLatencyMs"`
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		g.logger.Debug("writing response failed", "error", err)
	}
}

func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}

// handleHealth reports liveness plus a little process telemetry.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		ActiveConnections: g.registry.Count(),
		UptimeSeconds:     int64(time.Since(g.startedAt).Seconds()),
		Process:           g.processStats(),
	})
}

// processStats is best effort; platforms gopsutil cannot inspect report nil.
func (g *Gateway) processStats() *ProcessStats {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		g.logger.Debug("reading process stats failed", "error", err)
		return nil
	}
	stats := &ProcessStats{PID: p.Pid, Goroutines: runtime.NumGoroutine()}
	if mem, err := p.MemoryInfo(); err == nil {
		stats.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercent(); err == nil {
		stats.CPUPercent = cpu
	}
	return stats
}

// handleListSessions returns every live session, oldest first.
func (g *Gateway) handleListSessions(w http.ResponseWriter, r *http.Request) {
	infos := g.registry.Snapshot()
	g.sendJSON(w, http.StatusOK, SessionsResponse{Count: len(infos), Sessions: infos})
}

// handleUsageStats aggregates recorded feature usage.
// Optional query parameters: user_id, since and until (RFC 3339).
func (g *Gateway) handleUsageStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var filter store.UsageFilter
	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"since", &filter.Since}, {"until", &filter.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, p.name+" must be an RFC 3339 timestamp")
			return
		}
		*p.dst = &t
	}

	stats, err := g.store.GetUsageStats(r.Context(), filter)
	if err != nil {
		g.logger.Error("loading usage stats failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load usage stats")
		return
	}

	resp := UsageStatsResponse{Features: make([]FeatureUsageStats, 0, len(stats))}
	for _, s := range stats {
		resp.Features = append(resp.Features, FeatureUsageStats{
			Feature:      s.Feature,
			Requests:     s.Requests,
			Failures:     s.Failures,
			AvgLatencyMS: s.AvgLatencyMS,
		})
	}
	g.sendJSON(w, http.StatusOK, resp)
}
