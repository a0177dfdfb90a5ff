package server

import (
	"net/http"
	"time"

	"github.com/desertthunder/clipsync/internal/services"
)

// HealthHandler answers liveness checks.
type HealthHandler struct {
	started time.Time
}

func (h *HealthHandler) Routes() []string {
	return []string{"GET " + services.APIPrefix + "/health"}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (s *Server) routes() {
	r := s.router
	device := []Middleware{s.RequireDevice, s.RateLimit}

	r.Handler(&HealthHandler{started: time.Now()})

	r.HandleFunc(http.MethodPost, "/clipboard/sync", s.handleSync, device...)
	r.HandleFunc(http.MethodGet, "/clipboard/sync", s.handlePoll, device...)

	r.HandleFunc(http.MethodGet, "/clipboard", s.handleListItems, s.RequireUser)
	r.HandleFunc(http.MethodPost, "/clipboard", s.handleCreateItem, s.RequireUser)
	r.HandleFunc(http.MethodGet, "/clipboard/stats", s.handleStats, s.RequireUser)
	r.HandleFunc(http.MethodDelete, "/clipboard/clear", s.handleClearItems, s.RequireUser)
	r.HandleFunc(http.MethodGet, "/clipboard/{id}", s.handleGetItem, s.RequireUser)
	r.HandleFunc(http.MethodDelete, "/clipboard/{id}", s.handleDeleteItem, s.RequireUser)

	r.HandleFunc(http.MethodGet, "/devices", s.handleListDevices, s.RequireUser)
	r.HandleFunc(http.MethodPost, "/devices", s.handleAddDevice, s.RequireUser)
	r.HandleFunc(http.MethodPatch, "/devices/{deviceId}", s.handleUpdateDevice, s.RequireUser)
	r.HandleFunc(http.MethodDelete, "/devices/{deviceId}", s.handleDeleteDevice, s.RequireUser)
	r.HandleFunc(http.MethodPost, "/devices/{deviceId}/verify", s.handleVerifyDevice, s.RequireUser)
	r.HandleFunc(http.MethodGet, "/devices/{deviceId}/verify", s.handleVerificationToken, s.RequireUser)

	r.HandleFunc(http.MethodPost, "/devices/auth", s.handleGenerateKey, s.RequireUser)
	r.HandleFunc(http.MethodGet, "/devices/auth", s.handleKeyStatus, s.RequireUser)
	r.HandleFunc(http.MethodDelete, "/devices/auth", s.handleRevokeKey, s.RequireUser)

	r.HandleFunc(http.MethodGet, "/devices/registrations", s.handleListRegistrations, s.RequireUser)
	r.HandleFunc(http.MethodPost, "/devices/registrations", s.handleCreateRegistration, s.RequireUser)
	r.HandleFunc(http.MethodPost, "/devices/registrations/{token}/approve", s.handleApproveRegistration, s.RequireUser)
	r.HandleFunc(http.MethodPost, "/devices/register", s.handleRegister, s.OptionalUser)
	r.HandleFunc(http.MethodGet, "/devices/register", s.handleCompleteRegistration)

	r.HandleFunc(http.MethodGet, "/ws-tokens", s.handleListWsTokens, s.RequireUser)
	r.HandleFunc(http.MethodPost, "/ws-tokens", s.handleGenerateWsToken, s.RequireUser)
	r.HandleFunc(http.MethodGet, "/ws-tokens/{token}", s.handleValidateWsToken)
	r.HandleFunc(http.MethodPost, "/ws-tokens/{token}/refresh", s.handleRefreshWsToken, s.RequireUser)
	r.HandleFunc(http.MethodDelete, "/ws-tokens/{token}", s.handleRevokeWsToken, s.RequireUser)

	r.HandleFunc(http.MethodGet, "/users", s.handleMe, s.RequireUser)
	r.HandleFunc(http.MethodGet, "/users/clear-data", s.handleDataSummary, s.RequireUser)
	r.HandleFunc(http.MethodDelete, "/users/clear-data", s.handleClearData, s.RequireUser)
}
