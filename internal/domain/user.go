package domain

import (
	"strings"
	"time"
)

// User is the signed-in identity behind a session
type User struct {
	Subject string `json:"subject"`
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

// Session is an authenticated session held by a client
type Session struct {
	User        User      `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the session token is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthEventType is the kind of auth state transition
type AuthEventType string

const (
	AuthSignedIn  AuthEventType = "SIGNED_IN"
	AuthSignedOut AuthEventType = "SIGNED_OUT"
)

// AuthEvent is delivered to auth state listeners
type AuthEvent struct {
	Type AuthEventType
	User *User
}

// AdminList is the set of e-mail addresses allowed to mutate the gallery
type AdminList map[string]bool

// NewAdminList builds an AdminList, ignoring case and blanks
func NewAdminList(emails []string) AdminList {
	list := make(AdminList, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			list[e] = true
		}
	}
	return list
}

// Allows reports whether email is on the list
func (l AdminList) Allows(email string) bool {
	return l[strings.ToLower(strings.TrimSpace(email))]
}
