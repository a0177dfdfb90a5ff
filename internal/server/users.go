package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/shared"
)

type wsTokenRequest struct {
	DeviceID  string `json:"deviceId"`
	ExpiresIn int64  `json:"expiresIn"` // seconds; zero uses the configured lifetime
}

func (s *Server) handleListWsTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.svc.WsTokens.ListForUser(UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleGenerateWsToken(w http.ResponseWriter, r *http.Request) {
	var req wsTokenRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ExpiresIn < 0 {
		s.fail(w, r, fmt.Errorf("%w: expiresIn must not be negative", shared.ErrInvalidInput))
		return
	}

	userID := UserID(r.Context())
	if req.DeviceID != "" {
		if _, err := s.svc.Devices.Get(userID, req.DeviceID); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	generate := s.svc.WsTokens.Generate
	if req.ExpiresIn > 0 {
		ttl := time.Duration(req.ExpiresIn) * time.Second
		generate = func(userID, deviceID string) (*models.WsToken, error) {
			return s.svc.WsTokens.GenerateWithExpiry(userID, deviceID, ttl)
		}
	}

	token, err := generate(userID, req.DeviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// handleValidateWsToken is public so the realtime gateway can check a token without credentials.
func (s *Server) handleValidateWsToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.svc.WsTokens.Validate(r.PathValue("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": true, "token": token})
}

func (s *Server) handleRefreshWsToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.svc.WsTokens.Refresh(UserID(r.Context()), r.PathValue("token"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (s *Server) handleRevokeWsToken(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.WsTokens.Revoke(UserID(r.Context()), r.PathValue("token")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.svc.Users.Get(UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (s *Server) handleDataSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Users.Summary(UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleClearData(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Users.DeleteAllData(r.Context(), UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": summary})
}
