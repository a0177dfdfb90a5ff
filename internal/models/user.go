package models

import (
	"encoding/json"
	"strings"
	"time"
)

// User is an account that owns devices and clipboard items.
type User struct {
	id        string
	sequence  int
	email     string
	name      string
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// NewUser creates a new [User] with creation timestamps set to now.
func NewUser(sequence int, email, name string) *User {
	ts := now()
	return &User{
		sequence:  sequence,
		email:     strings.TrimSpace(strings.ToLower(email)),
		name:      strings.TrimSpace(name),
		createdAt: ts,
		updatedAt: ts,
	}
}

func (u *User) ID() string            { return u.id }
func (u *User) Sequence() int         { return u.sequence }
func (u *User) Email() string         { return u.email }
func (u *User) Name() string          { return u.name }
func (u *User) CreatedAt() time.Time  { return u.createdAt }
func (u *User) UpdatedAt() time.Time  { return u.updatedAt }
func (u *User) DeletedAt() *time.Time { return u.deletedAt }

func (u *User) SetID(id string)           { u.id = id }
func (u *User) SetSequence(sequence int)  { u.sequence = sequence }
func (u *User) SetName(name string)       { u.name = strings.TrimSpace(name) }
func (u *User) SetCreatedAt(t time.Time)  { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time)  { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time) { u.deletedAt = t }

// Validate requires an id, a plausible email address and a name.
func (u *User) Validate() error {
	if u.id == "" {
		return invalid("user id is required")
	}
	if u.email == "" || !strings.Contains(u.email, "@") {
		return invalid("user email %q is invalid", u.email)
	}
	if u.name == "" {
		return invalid("user name is required")
	}
	return nil
}

func (u *User) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID        string    `json:"id"`
		Email     string    `json:"email"`
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}{u.id, u.email, u.name, u.createdAt, u.updatedAt})
}

// Session is a bearer token that authenticates a [User] against the user facing API.
type Session struct {
	token     string
	userID    string
	userAgent string
	ipAddress string
	expiresAt time.Time
	createdAt time.Time
}

// NewSession creates a [Session] for userID that expires after ttl.
func NewSession(token, userID string, ttl time.Duration) *Session {
	ts := now()
	return &Session{token: token, userID: userID, createdAt: ts, expiresAt: ts.Add(ttl)}
}

func (s *Session) ID() string           { return s.token }
func (s *Session) Token() string        { return s.token }
func (s *Session) UserID() string       { return s.userID }
func (s *Session) UserAgent() string    { return s.userAgent }
func (s *Session) IPAddress() string    { return s.ipAddress }
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) UpdatedAt() time.Time { return s.createdAt }

func (s *Session) SetClient(userAgent, ipAddress string) {
	s.userAgent = userAgent
	s.ipAddress = ipAddress
}
func (s *Session) SetExpiresAt(t time.Time) { s.expiresAt = t }
func (s *Session) SetCreatedAt(t time.Time) { s.createdAt = t }

// Expired reports whether the session is past its expiry at t.
func (s *Session) Expired(t time.Time) bool { return !t.Before(s.expiresAt) }

func (s *Session) Validate() error {
	if s.token == "" || s.userID == "" {
		return invalid("session requires token and user")
	}
	return nil
}

func (s *Session) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UserID    string    `json:"userId"`
		ExpiresAt time.Time `json:"expiresAt"`
		CreatedAt time.Time `json:"createdAt"`
	}{s.userID, s.expiresAt, s.createdAt})
}
