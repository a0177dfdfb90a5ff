package models

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Platforms lists the operating systems a device may report.
var Platforms = []string{"linux", "darwin", "windows"}

// Device is a desktop agent registered to a [User].
//
// id is the internal key referenced by clipboard items; deviceID is the identifier the agent generated for itself.
type Device struct {
	id             string
	userID         string
	deviceID       string
	name           string
	platform       string
	ipAddress      string
	userAgent      string
	apiKey         string
	verified       bool
	receiveUpdates bool
	isActive       bool
	lastSeenAt     time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewDevice creates an active, unverified [Device] that receives updates.
func NewDevice(userID, deviceID, name, platform string) *Device {
	ts := now()
	return &Device{
		userID:         userID,
		deviceID:       strings.TrimSpace(deviceID),
		name:           strings.TrimSpace(name),
		platform:       strings.ToLower(strings.TrimSpace(platform)),
		receiveUpdates: true,
		isActive:       true,
		lastSeenAt:     ts,
		createdAt:      ts,
		updatedAt:      ts,
	}
}

func (d *Device) ID() string            { return d.id }
func (d *Device) UserID() string        { return d.userID }
func (d *Device) DeviceID() string      { return d.deviceID }
func (d *Device) Name() string          { return d.name }
func (d *Device) Platform() string      { return d.platform }
func (d *Device) IPAddress() string     { return d.ipAddress }
func (d *Device) UserAgent() string     { return d.userAgent }
func (d *Device) APIKey() string        { return d.apiKey }
func (d *Device) Verified() bool        { return d.verified }
func (d *Device) ReceiveUpdates() bool  { return d.receiveUpdates }
func (d *Device) IsActive() bool        { return d.isActive }
func (d *Device) LastSeenAt() time.Time { return d.lastSeenAt }
func (d *Device) CreatedAt() time.Time  { return d.createdAt }
func (d *Device) UpdatedAt() time.Time  { return d.updatedAt }

func (d *Device) SetID(id string)             { d.id = id }
func (d *Device) SetUserID(userID string)     { d.userID = userID }
func (d *Device) SetName(name string)         { d.name = strings.TrimSpace(name) }
func (d *Device) SetPlatform(platform string) { d.platform = strings.ToLower(platform) }
func (d *Device) SetAPIKey(key string)        { d.apiKey = key }
func (d *Device) SetVerified(v bool)          { d.verified = v }
func (d *Device) SetReceiveUpdates(v bool)    { d.receiveUpdates = v }
func (d *Device) SetActive(v bool)            { d.isActive = v }
func (d *Device) SetLastSeenAt(t time.Time)   { d.lastSeenAt = t }
func (d *Device) SetCreatedAt(t time.Time)    { d.createdAt = t }
func (d *Device) SetUpdatedAt(t time.Time)    { d.updatedAt = t }
func (d *Device) SetClient(ip, agent string)  { d.ipAddress, d.userAgent = ip, agent }

// Validate checks identifiers, name length and platform.
func (d *Device) Validate() error {
	if d.userID == "" {
		return invalid("device user is required")
	}
	if d.deviceID == "" {
		return invalid("device id is required")
	}
	if d.name == "" || len(d.name) > 100 {
		return invalid("device name must be between 1 and 100 characters")
	}
	if !ValidPlatform(d.platform) {
		return invalid("platform %q is not one of %s", d.platform, strings.Join(Platforms, ", "))
	}
	return nil
}

// ValidPlatform reports whether p is a supported platform.
func ValidPlatform(p string) bool {
	return slices.Contains(Platforms, p)
}

// MarshalJSON renders the device without its API key.
func (d *Device) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID             string    `json:"id"`
		UserID         string    `json:"userId"`
		DeviceID       string    `json:"deviceId"`
		Name           string    `json:"name"`
		Platform       string    `json:"platform"`
		IPAddress      *string   `json:"ipAddress"`
		UserAgent      *string   `json:"userAgent"`
		Verified       bool      `json:"verified"`
		ReceiveUpdates bool      `json:"receiveUpdates"`
		IsActive       bool      `json:"isActive"`
		HasAPIKey      bool      `json:"hasApiKey"`
		LastSeenAt     time.Time `json:"lastSeenAt"`
		CreatedAt      time.Time `json:"createdAt"`
		UpdatedAt      time.Time `json:"updatedAt"`
	}{
		ID:             d.id,
		UserID:         d.userID,
		DeviceID:       d.deviceID,
		Name:           d.name,
		Platform:       d.platform,
		IPAddress:      nullable(d.ipAddress),
		UserAgent:      nullable(d.userAgent),
		Verified:       d.verified,
		ReceiveUpdates: d.receiveUpdates,
		IsActive:       d.isActive,
		HasAPIKey:      d.apiKey != "",
		LastSeenAt:     d.lastSeenAt,
		CreatedAt:      d.createdAt,
		UpdatedAt:      d.updatedAt,
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
