// Package activities keeps the in-memory, timestamp-descending collection of
// logged events synchronized with the row store. Every mutation either
// succeeds and folds the server's representation back into the collection,
// or fails and leaves the collection in its last-known-good form.
package activities

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"example.com/puppylog/domain"
	"example.com/puppylog/observability"
)

// Backend is the slice of the remote client the store consumes.
type Backend interface {
	SelectActivities(ctx context.Context, userID string) ([]domain.Activity, error)
	InsertActivity(ctx context.Context, fields domain.NewActivity) (domain.Activity, error)
	UpdateActivity(ctx context.Context, id, userID string, patch domain.ActivityPatch) (domain.Activity, error)
	DeleteActivity(ctx context.Context, id, userID string) error
}

// UserSource reports the currently signed-in user. The session synchronizer
// implements it.
type UserSource interface {
	CurrentUser() (string, bool)
}

// Store owns the local activity collection for the signed-in user.
//
// Invariant: after every mutation the collection is sorted by timestamp
// descending.
type Store struct {
	backend Backend
	users   UserSource
	logger  *log.Logger

	mu      sync.Mutex
	items   []domain.Activity
	lastErr error
}

// Option configures optional behaviour for the Store.
type Option func(*Store)

// WithLogger overrides the logger used to report backend failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New constructs an empty Store.
func New(b Backend, users UserSource, opts ...Option) *Store {
	s := &Store{
		backend: b,
		users:   users,
		logger:  log.New(log.Writer(), "[activities] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List replaces the collection with the user's activities, newest first. On
// failure the previous collection is kept and the error is both recorded on
// the store and returned.
func (s *Store) List(ctx context.Context) ([]domain.Activity, error) {
	userID, ok := s.users.CurrentUser()
	if !ok {
		return nil, fmt.Errorf("%w: list requires a signed-in user", domain.ErrUnauthenticated)
	}

	fetched, err := s.backend.SelectActivities(ctx, userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.lastErr = err
		observability.RecordActivityMutation("list", "error")
		s.logger.Printf("list failed, keeping %d cached activities: %v", len(s.items), err)
		return nil, err
	}

	sortDescending(fetched)
	s.items = fetched
	s.lastErr = nil
	observability.RecordActivityMutation("list", "ok")
	return s.snapshotLocked(), nil
}

// Insert creates a new activity. The server assigns id and timestamp, so
// the returned record is prepended: it is the newest row and already in
// sorted position.
func (s *Store) Insert(ctx context.Context, typ domain.ActivityType, notes, photoURL string) (domain.Activity, error) {
	if !typ.Valid() {
		return domain.Activity{}, fmt.Errorf("%w: unknown activity type %q", domain.ErrValidation, typ)
	}
	userID, ok := s.users.CurrentUser()
	if !ok {
		return domain.Activity{}, fmt.Errorf("%w: insert requires a signed-in user", domain.ErrUnauthenticated)
	}

	created, err := s.backend.InsertActivity(ctx, domain.NewActivity{
		UserID:   userID,
		Type:     typ,
		Notes:    notes,
		PhotoURL: photoURL,
	})
	if err != nil {
		observability.RecordActivityMutation("insert", "error")
		return domain.Activity{}, err
	}

	s.mu.Lock()
	s.items = append([]domain.Activity{created}, s.items...)
	// The server clock and ours can disagree; restore the invariant rather
	// than trusting the prepend position.
	sortDescending(s.items)
	s.mu.Unlock()
	observability.RecordActivityMutation("insert", "ok")
	return created, nil
}

// Update applies a partial update to the activity with id and re-sorts the
// collection, since timestamp may be among the edited fields.
func (s *Store) Update(ctx context.Context, id string, patch domain.ActivityPatch) (domain.Activity, error) {
	if patch.Type != nil && !patch.Type.Valid() {
		return domain.Activity{}, fmt.Errorf("%w: unknown activity type %q", domain.ErrValidation, *patch.Type)
	}
	userID, ok := s.users.CurrentUser()
	if !ok {
		return domain.Activity{}, fmt.Errorf("%w: update requires a signed-in user", domain.ErrUnauthenticated)
	}

	updated, err := s.backend.UpdateActivity(ctx, id, userID, patch)
	if err != nil {
		observability.RecordActivityMutation("update", "error")
		return domain.Activity{}, err
	}

	s.mu.Lock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i] = updated
			break
		}
	}
	sortDescending(s.items)
	s.mu.Unlock()
	observability.RecordActivityMutation("update", "ok")
	return updated, nil
}

// Delete removes the activity with id. Exactly the matching record leaves
// the collection; relative order of the rest is untouched.
func (s *Store) Delete(ctx context.Context, id string) error {
	userID, ok := s.users.CurrentUser()
	if !ok {
		return fmt.Errorf("%w: delete requires a signed-in user", domain.ErrUnauthenticated)
	}

	if err := s.backend.DeleteActivity(ctx, id, userID); err != nil {
		observability.RecordActivityMutation("delete", "error")
		return err
	}

	s.mu.Lock()
	kept := s.items[:0]
	for _, item := range s.items {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	s.items = kept
	s.mu.Unlock()
	observability.RecordActivityMutation("delete", "ok")
	return nil
}

// Clear drops the local collection, used when the session ends.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.lastErr = nil
	s.mu.Unlock()
}

// Snapshot returns a copy of the collection safe to hand to readers.
func (s *Store) Snapshot() []domain.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LastError reports the most recent list failure, nil after a successful
// list.
func (s *Store) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store) snapshotLocked() []domain.Activity {
	out := make([]domain.Activity, len(s.items))
	copy(out, s.items)
	return out
}

// sortDescending orders by timestamp descending, breaking ties by ID
// descending so the order is stable across refetches.
func sortDescending(items []domain.Activity) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].Timestamp.Equal(items[j].Timestamp) {
			return items[i].Timestamp.After(items[j].Timestamp)
		}
		return items[i].ID > items[j].ID
	})
}
