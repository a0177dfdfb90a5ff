package models

import (
	"encoding/json"
	"strings"
	"time"
)

// WsToken is a short lived token that lets a client open a realtime connection without its long lived credentials.
type WsToken struct {
	token     string
	userID    string
	deviceID  string
	expiresAt time.Time
	createdAt time.Time
}

// NewWsToken creates a [WsToken] expiring after ttl. deviceID may be empty.
func NewWsToken(token, userID, deviceID string, ttl time.Duration) *WsToken {
	ts := now()
	return &WsToken{token: token, userID: userID, deviceID: deviceID, createdAt: ts, expiresAt: ts.Add(ttl)}
}

func (w *WsToken) ID() string           { return w.token }
func (w *WsToken) Token() string        { return w.token }
func (w *WsToken) UserID() string       { return w.userID }
func (w *WsToken) DeviceID() string     { return w.deviceID }
func (w *WsToken) ExpiresAt() time.Time { return w.expiresAt }
func (w *WsToken) CreatedAt() time.Time { return w.createdAt }
func (w *WsToken) UpdatedAt() time.Time { return w.createdAt }

func (w *WsToken) SetExpiresAt(t time.Time) { w.expiresAt = t }
func (w *WsToken) SetCreatedAt(t time.Time) { w.createdAt = t }

// Expired reports whether the token is past its expiry at t.
func (w *WsToken) Expired(t time.Time) bool { return !t.Before(w.expiresAt) }

func (w *WsToken) Validate() error {
	if w.token == "" || w.userID == "" {
		return invalid("ws token requires token and user")
	}
	return nil
}

func (w *WsToken) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Token     string    `json:"token"`
		UserID    string    `json:"userId"`
		DeviceID  *string   `json:"deviceId"`
		ExpiresAt time.Time `json:"expiresAt"`
		CreatedAt time.Time `json:"createdAt"`
	}{w.token, w.userID, nullable(w.deviceID), w.expiresAt, w.createdAt})
}

// PendingRegistration links a registration token minted in a signed in session to the agent that will present it.
//
// The agent may not know the token it was given, so registrations are also matched by deviceIDPrefix,
// which is the platform and the first characters of the hostname ("linux-wo").
type PendingRegistration struct {
	token            string
	userID           string
	deviceIDPrefix   string
	detectedDeviceID string
	detectedName     string
	detectedPlatform string
	userApproved     bool
	expiresAt        time.Time
	createdAt        time.Time
	updatedAt        time.Time
}

// NewPendingRegistration creates a [PendingRegistration] expiring after ttl.
func NewPendingRegistration(token, userID, prefix string, ttl time.Duration) *PendingRegistration {
	ts := now()
	return &PendingRegistration{
		token:          token,
		userID:         userID,
		deviceIDPrefix: prefix,
		expiresAt:      ts.Add(ttl),
		createdAt:      ts,
		updatedAt:      ts,
	}
}

func (p *PendingRegistration) ID() string               { return p.token }
func (p *PendingRegistration) Token() string            { return p.token }
func (p *PendingRegistration) UserID() string           { return p.userID }
func (p *PendingRegistration) DeviceIDPrefix() string   { return p.deviceIDPrefix }
func (p *PendingRegistration) DetectedDeviceID() string { return p.detectedDeviceID }
func (p *PendingRegistration) DetectedName() string     { return p.detectedName }
func (p *PendingRegistration) DetectedPlatform() string { return p.detectedPlatform }
func (p *PendingRegistration) UserApproved() bool       { return p.userApproved }
func (p *PendingRegistration) ExpiresAt() time.Time     { return p.expiresAt }
func (p *PendingRegistration) CreatedAt() time.Time     { return p.createdAt }
func (p *PendingRegistration) UpdatedAt() time.Time     { return p.updatedAt }

func (p *PendingRegistration) SetApproved(v bool)       { p.userApproved = v }
func (p *PendingRegistration) SetExpiresAt(t time.Time) { p.expiresAt = t }
func (p *PendingRegistration) SetCreatedAt(t time.Time) { p.createdAt = t }
func (p *PendingRegistration) SetUpdatedAt(t time.Time) { p.updatedAt = t }
func (p *PendingRegistration) SetDetected(deviceID, name, platform string) {
	p.detectedDeviceID = deviceID
	p.detectedName = name
	p.detectedPlatform = platform
}

// Expired reports whether the registration is past its expiry at t.
func (p *PendingRegistration) Expired(t time.Time) bool { return !t.Before(p.expiresAt) }

func (p *PendingRegistration) Validate() error {
	if p.token == "" || p.userID == "" {
		return invalid("registration requires token and user")
	}
	if p.deviceIDPrefix == "" || strings.Contains(p.deviceIDPrefix, "_") {
		return invalid("registration prefix %q is invalid", p.deviceIDPrefix)
	}
	return nil
}

func (p *PendingRegistration) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Token          string    `json:"token"`
		DeviceIDPrefix string    `json:"deviceIdPrefix"`
		UserApproved   bool      `json:"userApproved"`
		ExpiresAt      time.Time `json:"expiresAt"`
		CreatedAt      time.Time `json:"createdAt"`
	}{p.token, p.deviceIDPrefix, p.userApproved, p.expiresAt, p.createdAt})
}
