// Package domain defines the records mirrored from the hosted backend and the
// error taxonomy shared by every client-side component.
package domain

import (
	"fmt"
	"time"
)

// ActivityType enumerates the closed set of loggable puppy events. Adding a
// value here must be accompanied by updating every switch over the type;
// Valid and Label are deliberately written as exhaustive switches so the
// compiler flags a missing case via the default branch tests.
type ActivityType string

const (
	ActivityPoop     ActivityType = "poop"
	ActivityPee      ActivityType = "pee"
	ActivityEat      ActivityType = "eat"
	ActivityCryStart ActivityType = "cry_start"
	ActivityCryStop  ActivityType = "cry_stop"
)

// ActivityTypes lists every known type in declaration order.
func ActivityTypes() []ActivityType {
	return []ActivityType{ActivityPoop, ActivityPee, ActivityEat, ActivityCryStart, ActivityCryStop}
}

// ParseActivityType converts a raw string to an ActivityType.
func ParseActivityType(raw string) (ActivityType, error) {
	t := ActivityType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown activity type %q", ErrValidation, raw)
	}
	return t, nil
}

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityPoop, ActivityPee, ActivityEat, ActivityCryStart, ActivityCryStop:
		return true
	}
	return false
}

// Label returns the human-readable name shown in the UI layer.
func (t ActivityType) Label() string {
	switch t {
	case ActivityPoop:
		return "Poop"
	case ActivityPee:
		return "Pee"
	case ActivityEat:
		return "Meal"
	case ActivityCryStart:
		return "Crying started"
	case ActivityCryStop:
		return "Crying stopped"
	}
	return string(t)
}

// Activity is one logged event belonging to exactly one user. The backend
// assigns ID and Timestamp on insert.
type Activity struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Type      ActivityType `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Notes     string       `json:"notes,omitempty"`
	PhotoURL  string       `json:"photo_url,omitempty"`
}

// NewActivity is the insert payload; the server fills in id and timestamp.
type NewActivity struct {
	UserID   string       `json:"user_id"`
	Type     ActivityType `json:"type"`
	Notes    string       `json:"notes,omitempty"`
	PhotoURL string       `json:"photo_url,omitempty"`
}

// ActivityPatch is a partial update. Nil fields are left untouched by the
// backend, so "absent" stays distinct from "set to zero value".
type ActivityPatch struct {
	Type      *ActivityType `json:"type,omitempty"`
	Timestamp *time.Time    `json:"timestamp,omitempty"`
	Notes     *string       `json:"notes,omitempty"`
	PhotoURL  *string       `json:"photo_url,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ActivityPatch) Empty() bool {
	return p.Type == nil && p.Timestamp == nil && p.Notes == nil && p.PhotoURL == nil
}
