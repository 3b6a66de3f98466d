package domain

import "time"

// Session mirrors the authenticated identity held by the remote auth
// provider. It is replaced wholesale on every auth-change notification and
// owned exclusively by the session synchronizer.
type Session struct {
	UserID        string
	Email         string
	EmailVerified bool
	AccessToken   string
	ExpiresAt     time.Time
}

// Expired reports whether the access token expiry has passed. A zero
// ExpiresAt means the provider did not communicate one and the session is
// treated as live.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Profile is the user-supplied metadata row keyed one-to-one by Session
// user ID. Absence is a valid state: the provisioning trigger on the hosted
// side may not have fired yet.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"name"`
	PuppyName   string `json:"puppy_name"`
}
