package server

import (
	"fmt"
	"net/http"

	"github.com/desertthunder/clipsync/internal/models"
	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
)

// createRegistrationRequest carries either a device prefix to mint a token for, or a token the agent generated.
type createRegistrationRequest struct {
	Prefix string `json:"prefix"`
	Token  string `json:"token"`
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	pending, err := s.svc.Registration.Pending(UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleCreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req createRegistrationRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	var (
		pending *models.PendingRegistration
		err     error
	)
	userID := UserID(r.Context())
	switch {
	case req.Token != "":
		pending, err = s.svc.Registration.Adopt(userID, req.Token)
	case req.Prefix != "":
		pending, err = s.svc.Registration.CreatePending(userID, req.Prefix)
	default:
		err = fmt.Errorf("%w: prefix or token is required", shared.ErrInvalidInput)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pending)
}

func (s *Server) handleApproveRegistration(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if err := s.svc.Registration.Approve(UserID(r.Context()), token); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "userApproved": true})
}

// handleRegister lets an agent trade a registration token, or the caller's session, for an API key.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req services.RegistrationRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.IPAddress = clientIP(r)
	req.UserAgent = r.UserAgent()

	result, err := s.svc.Registration.Register(UserID(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("device registered", "device", result.DeviceID, "remote", req.IPAddress)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompleteRegistration(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		s.fail(w, r, fmt.Errorf("%w: token is required", shared.ErrInvalidInput))
		return
	}

	result, err := s.svc.Registration.CompleteExisting(token)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
