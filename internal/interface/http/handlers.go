// Package http implements the bot factory's HTTP surface.
package http

import (
	"github.com/botforge/telegram-bot-factory/internal/application/analytics"
	"github.com/botforge/telegram-bot-factory/pkg/logger"
	"io"
	"net/http"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"name":        "Telegram Bot Factory",
		"version":     "v1",
		"description": "Creates and hosts Telegram bots from a single factory bot",
		"endpoints": map[string]string{
			"health":        "/health",
			"funnel":        "/funnel",
			"funnel_users":  "/funnel/users",
			"funnel_errors": "/funnel/errors",
		},
	}

	writeJSON(w, http.StatusOK, info)
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"version": "v1",
	})
}

// handleReady handles the readiness probe endpoint (for Kubernetes).
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Ready {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not_ready",
				"reason": status.Message,
			})
			return
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint (for Kubernetes).
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleMetrics serves uptime and running state as JSON (not the Prometheus
// text format).
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"uptime_seconds": s.Uptime().Seconds(),
		"running":        s.IsRunning(),
	}

	writeJSON(w, http.StatusOK, metrics)
}

// ══════════════════════════════════════════════════════════════════════════════
// FUNNEL ANALYTICS HANDLERS (C8, §4.8)
// ══════════════════════════════════════════════════════════════════════════════

// handleFunnel handles GET /funnel?days=N&window={start|activity}.
func (s *Server) handleFunnel(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analytics == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Analytics not configured")
		return
	}

	q := analytics.FunnelQuery{
		Days:   getQueryParamInt(r, "days", 7),
		Window: getQueryParam(r, "window", "start"),
	}

	result, err := s.deps.Analytics.Funnel(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to compute funnel", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to compute funnel")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleFunnelUsers handles GET /funnel/users?days=N&stage=N&limit=N.
func (s *Server) handleFunnelUsers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analytics == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Analytics not configured")
		return
	}

	q := analytics.UsersQuery{
		Days:  getQueryParamInt(r, "days", 7),
		Stage: getQueryParamInt(r, "stage", 0),
		Limit: getQueryParamInt(r, "limit", 50),
	}

	result, err := s.deps.Analytics.Users(r.Context(), q)
	if err != nil {
		s.logger.Error("failed to list funnel users", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to list funnel users")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleFunnelErrors handles GET /funnel/errors?days=N.
func (s *Server) handleFunnelErrors(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analytics == nil {
		writeJSONError(w, http.StatusNotImplemented, "not_implemented", "Analytics not configured")
		return
	}

	days := getQueryParamInt(r, "days", 7)

	result, err := s.deps.Analytics.Errors(r.Context(), days)
	if err != nil {
		s.logger.Error("failed to list top errors", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Failed to list top errors")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM WEBHOOK (C6, §4.6)
// ══════════════════════════════════════════════════════════════════════════════

// handleTelegramWebhook handles POST /{bot_token}. Unknown token, decode
// failure and handler error all still acknowledge with 200 so Telegram does
// not retry delivery; only a failure to read the request body answers 400.
func (s *Server) handleTelegramWebhook(w http.ResponseWriter, r *http.Request) {
	botToken := r.PathValue("bot_token")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		s.logger.Error("failed to read webhook body", logger.Err(err))
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Failed to read request body")
		return
	}
	defer r.Body.Close()

	if s.deps.WebhookHandler != nil {
		if err := s.deps.WebhookHandler.HandleTelegramUpdate(r.Context(), botToken, body); err != nil {
			s.logger.Error("failed to handle telegram update", logger.Err(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
