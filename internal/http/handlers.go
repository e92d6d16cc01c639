package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	health := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).String(),
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})
	fail := func(name, reason string) {
		checks[name] = reason
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if len(s.pages) == 0 {
		fail("templates", "failed: templates not loaded")
	} else {
		checks["templates"] = "ok"
	}

	switch {
	case s.health == nil:
		fail("storage", "not_configured")
	default:
		if err := s.health.Ping(ctx); err != nil {
			fail("storage", fmt.Sprintf("failed: %v", err))
		} else {
			checks["storage"] = "ok"
		}
	}

	if s.recharges != nil {
		stats := s.recharges.ReportStats()
		checks["report_cache"] = map[string]interface{}{
			"entries": stats.Size,
			"status":  "ok",
		}
	}
	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.limiter.GetMetrics().ClientCount,
		"status":         "ok",
	}

	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.detector.GetMetrics()
	rateLimitMetrics := s.limiter.GetMetrics()
	traceMetrics := s.tracer.GetMetrics()

	w.WriteHeader(http.StatusOK)

	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, kind)
		fmt.Fprintf(w, "%s %v\n\n", name, value)
	}

	metric("http_requests_total", "counter", "Total number of HTTP requests", traceMetrics.TotalRequests)
	metric("http_client_errors_total", "counter", "Responses with a 4xx status", traceMetrics.ClientErrors)
	metric("http_server_errors_total", "counter", "Responses with a 5xx status", traceMetrics.ServerErrors)
	metric("http_response_time_avg_microseconds", "gauge", "Average response time", traceMetrics.AverageResponseTime)

	metric("recharges_created_total", "counter", "Recharges created through forms and the API", s.metrics.rechargesCreated.Load())
	metric("recharges_imported_total", "counter", "Recharges created by CSV imports", s.metrics.rechargesImported.Load())
	metric("logins_total", "counter", "Successful logins", s.metrics.logins.Load())
	metric("logins_failed_total", "counter", "Rejected logins", s.metrics.failedLogins.Load())

	if s.recharges != nil {
		stats := s.recharges.ReportStats()
		metric("report_cache_hits_total", "counter", "Report cache hits", stats.Hits)
		metric("report_cache_misses_total", "counter", "Report cache misses", stats.Misses)
		metric("report_cache_evictions_total", "counter", "Report cache evictions", stats.Evictions)
		metric("report_cache_entries", "gauge", "Current report cache entries", stats.Size)
	}

	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", rateLimitMetrics.Rejected)
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "counter", "Total suspicious requests detected", securityMetrics.SuspiciousRequests)
	metric("blocked_requests_total", "counter", "Requests answered 404 by the detector", securityMetrics.BlockedRequests)
	metric("uptime_seconds", "gauge", "Application uptime in seconds", fmt.Sprintf("%.0f", time.Since(s.started).Seconds()))
}
