package server

import (
	"fmt"
	"net/http"

	"github.com/desertthunder/clipsync/internal/services"
	"github.com/desertthunder/clipsync/internal/shared"
)

// updateDeviceRequest is the PATCH body. Absent fields are left unchanged.
type updateDeviceRequest struct {
	Name           *string `json:"name"`
	ReceiveUpdates *bool   `json:"receiveUpdates"`
	ToggleUpdates  bool    `json:"toggleUpdates"`
}

// deviceRef names a device in the body or query of the /devices/auth routes.
type deviceRef struct {
	DeviceID string `json:"deviceId"`
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.svc.Devices.List(UserID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (s *Server) handleAddDevice(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterDeviceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.IPAddress = clientIP(r)
	req.UserAgent = r.UserAgent()

	device, err := s.svc.Devices.Register(UserID(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, device)
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	var req updateDeviceRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	userID, deviceID := UserID(r.Context()), r.PathValue("deviceId")
	if req.Name == nil && req.ReceiveUpdates == nil && !req.ToggleUpdates {
		s.fail(w, r, fmt.Errorf("%w: nothing to update", shared.ErrInvalidInput))
		return
	}

	if req.Name != nil {
		if err := s.svc.Devices.Rename(userID, deviceID, *req.Name); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	switch {
	case req.ReceiveUpdates != nil:
		if err := s.svc.Devices.SetReceiveUpdates(userID, deviceID, *req.ReceiveUpdates); err != nil {
			s.fail(w, r, err)
			return
		}
	case req.ToggleUpdates:
		if _, err := s.svc.Devices.ToggleUpdates(userID, deviceID); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	device, err := s.svc.Devices.Get(userID, deviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceId")
	if err := s.svc.Devices.Delete(UserID(r.Context()), deviceID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deviceId": deviceID})
}

func (s *Server) handleVerifyDevice(w http.ResponseWriter, r *http.Request) {
	userID, deviceID := UserID(r.Context()), r.PathValue("deviceId")
	if err := s.svc.Devices.Verify(userID, deviceID); err != nil {
		s.fail(w, r, err)
		return
	}

	device, err := s.svc.Devices.Get(userID, deviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (s *Server) handleVerificationToken(w http.ResponseWriter, r *http.Request) {
	vt, err := s.svc.Devices.VerificationToken(UserID(r.Context()), r.PathValue("deviceId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vt)
}

// deviceParam reads the device id from the query string, then from a JSON body.
func deviceParam(w http.ResponseWriter, r *http.Request) (string, error) {
	if id := r.URL.Query().Get("deviceId"); id != "" {
		return id, nil
	}

	var ref deviceRef
	if err := decode(w, r, &ref); err != nil {
		return "", err
	}
	if ref.DeviceID == "" {
		return "", fmt.Errorf("%w: deviceId is required", shared.ErrInvalidInput)
	}
	return ref.DeviceID, nil
}

func (s *Server) handleGenerateKey(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	result, err := s.svc.Devices.GenerateAPIKey(UserID(r.Context()), deviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	has, err := s.svc.Devices.HasAPIKey(UserID(r.Context()), deviceID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": deviceID, "hasApiKey": has})
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	deviceID, err := deviceParam(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if err := s.svc.Devices.RevokeAPIKey(UserID(r.Context()), deviceID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": deviceID, "hasApiKey": false})
}
