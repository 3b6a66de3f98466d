package activities

import (
	"strings"
	"time"

	"example.com/puppylog/domain"
)

// Filter is a conjunction of optional predicates over an activity snapshot.
// Zero-valued fields match everything, so the zero Filter is the identity.
// All functions here are pure: they never mutate their input slice.
type Filter struct {
	// Types keeps activities whose type appears in the set. Empty means any.
	Types []domain.ActivityType
	// Search keeps activities whose notes or type label contain the text,
	// case-insensitively. Empty means any.
	Search string
	// From/To bound the timestamp inclusively. Zero values are unbounded.
	From time.Time
	To   time.Time
}

// Match reports whether a single activity satisfies every predicate.
func (f Filter) Match(a domain.Activity) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if a.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.Notes), needle) &&
			!strings.Contains(strings.ToLower(a.Type.Label()), needle) {
			return false
		}
	}
	if !f.From.IsZero() && a.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.Timestamp.After(f.To) {
		return false
	}
	return true
}

// Apply returns the activities matching the filter, preserving order.
func (f Filter) Apply(items []domain.Activity) []domain.Activity {
	out := make([]domain.Activity, 0, len(items))
	for _, a := range items {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	return out
}

// Paginate returns the window for a zero-based page of the given size. Out
// of range pages yield an empty slice; a non-positive size means one page
// holding everything.
func Paginate(items []domain.Activity, page, size int) []domain.Activity {
	if size <= 0 {
		out := make([]domain.Activity, len(items))
		copy(out, items)
		return out
	}
	if page < 0 {
		page = 0
	}
	start := page * size
	if start >= len(items) {
		return []domain.Activity{}
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	out := make([]domain.Activity, end-start)
	copy(out, items[start:end])
	return out
}
