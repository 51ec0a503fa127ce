package http

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// Health serves the component status map: cache, database, journal,
// optimizer, experiment store and guarded sources, plus process
// runtime figures. Degraded components keep the endpoint at 200; only
// a down database or a tripped source drops it to 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Timestamp:  h.now(),
		Uptime:     time.Since(h.startTime).String(),
		Version:    h.deps.Version,
		System:     systemInfo(),
		Components: map[string]ComponentHealth{},
	}

	if h.deps.Journal == nil {
		resp.Components["journal"] = ComponentHealth{Status: "disabled"}
	} else {
		resp.Components["journal"] = ComponentHealth{Status: "ok", Message: "journaling to " + h.deps.Journal.Dir()}
	}
	resp.Components["optimizer"] = presenceHealth(h.deps.Optimizer != nil)
	resp.Components["experiments"] = presenceHealth(h.deps.Experiments != nil)

	if h.deps.Cache == nil {
		resp.Components["cache"] = ComponentHealth{Status: "disabled"}
	} else {
		st := h.deps.Cache.Stats(r.Context())
		status := "ok"
		if st.Errors > 0 && st.Errors >= st.Hits+st.Misses {
			status = "degraded"
		}
		resp.Components["cache"] = ComponentHealth{
			Status:  status,
			Message: fmt.Sprintf("%s backend, %d entries, hit rate %.2f", st.Backend, st.Entries, st.HitRate),
		}
	}

	if h.deps.Repository == nil {
		resp.Components["database"] = ComponentHealth{Status: "disabled"}
	} else {
		check := h.deps.Repository.Health(r.Context())
		if check.Healthy {
			resp.Components["database"] = ComponentHealth{
				Status:  "ok",
				Message: fmt.Sprintf("responded in %dms", check.ResponseTimeMS),
			}
		} else {
			msg := "health check failed"
			if len(check.Errors) > 0 {
				msg = check.Errors[0]
			}
			resp.Components["database"] = ComponentHealth{Status: "down", Message: msg}
		}
	}

	if h.deps.Guards != nil {
		resp.Sources = h.deps.Guards()
		for _, g := range resp.Sources {
			status := "ok"
			switch g.State {
			case "open":
				status = "down"
			case "half-open":
				status = "degraded"
			}
			resp.Components["source:"+g.Source] = ComponentHealth{
				Status:  status,
				Message: fmt.Sprintf("breaker %s, error rate %.1f%%", g.State, g.ErrorRate),
			}
		}
	}

	if h.deps.Queue != nil {
		resp.QueueDepth = h.deps.Queue.Depth()
	}

	resp.Status = overallStatus(resp.Components)
	code := http.StatusOK
	if resp.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, resp)
}

func systemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      memStats.Alloc,
		MemSys:        memStats.Sys,
		NumGC:         memStats.NumGC,
	}
}

func presenceHealth(present bool) ComponentHealth {
	if !present {
		return ComponentHealth{Status: "disabled"}
	}
	return ComponentHealth{Status: "ok", Message: "ready"}
}

func overallStatus(components map[string]ComponentHealth) string {
	degraded := false
	for _, c := range components {
		switch c.Status {
		case "down":
			return "unhealthy"
		case "degraded":
			degraded = true
		}
	}
	if degraded {
		return "degraded"
	}
	return "healthy"
}
