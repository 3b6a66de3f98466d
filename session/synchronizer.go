// Package session owns the local mirror of the remote auth state: the
// current session, the lazily fetched profile, and the loading flag the UI
// keys off. It is the single writer of that state; everything else reads
// snapshots.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"example.com/puppylog/backend"
	"example.com/puppylog/domain"
	"example.com/puppylog/observability"
)

// State is the synchronizer's lifecycle position.
type State string

const (
	// StateInitializing covers startup until the existing-session query
	// settles.
	StateInitializing State = "initializing"
	// StateUnauthenticated means no user is signed in.
	StateUnauthenticated State = "unauthenticated"
	// StateAwaitingProfile means a session is established and the profile
	// lookup is in flight.
	StateAwaitingProfile State = "awaiting_profile"
	// StateReady means the session is established and the profile lookup
	// settled, possibly to "absent".
	StateReady State = "ready"
)

// Backend is the slice of the remote client the synchronizer consumes.
type Backend interface {
	GetSession(ctx context.Context) (*domain.Session, error)
	OnAuthChange(fn backend.Subscriber) (unsubscribe func())
	SignUp(ctx context.Context, email, password, name, puppyName string) (*domain.Session, error)
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	SignOut(ctx context.Context) error
	SelectProfile(ctx context.Context, userID string) (*domain.Profile, error)
}

// Synchronizer mirrors the remote session into local state. Auth-change
// notifications arrive in order on a single logical channel; each one bumps
// the generation counter so that profile-fetch results belonging to an
// earlier session transition are discarded instead of overwriting newer
// state.
type Synchronizer struct {
	backend        Backend
	logger         *log.Logger
	initTimeout    time.Duration
	profileTimeout time.Duration

	mu          sync.Mutex
	state       State
	session     *domain.Session
	profile     *domain.Profile
	loading     bool
	generation  uint64
	unsubscribe func()
}

// Option configures optional behaviour for the Synchronizer.
type Option func(*Synchronizer)

// WithLogger overrides the logger used for observability reporting.
func WithLogger(logger *log.Logger) Option {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithInitTimeout overrides the budget for the startup session query.
func WithInitTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.initTimeout = d
	}
}

// WithProfileTimeout overrides the budget for a single profile lookup.
func WithProfileTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		s.profileTimeout = d
	}
}

// New constructs a Synchronizer in the Initializing state.
func New(b Backend, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		backend:        b,
		logger:         log.New(log.Writer(), "[session] ", log.LstdFlags),
		initTimeout:    8 * time.Second,
		profileTimeout: 5 * time.Second,
		state:          StateInitializing,
		loading:        true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize subscribes to auth-change notifications and resolves the
// startup session. A remote error is logged and degrades to Unauthenticated;
// it is never fatal to the caller.
func (s *Synchronizer) Initialize(ctx context.Context) {
	s.mu.Lock()
	if s.unsubscribe == nil {
		s.unsubscribe = s.backend.OnAuthChange(s.handleAuthChange)
	}
	s.mu.Unlock()

	initCtx, cancel := context.WithTimeout(ctx, s.initTimeout)
	defer cancel()

	sess, err := s.backend.GetSession(initCtx)
	if err != nil {
		s.logger.Printf("session init failed, continuing unauthenticated: %v", err)
		s.apply(backend.EventInitialSession, nil)
		return
	}
	s.apply(backend.EventInitialSession, sess)
}

// Close drops the auth-change subscription. In-flight profile fetches are
// left to finish and be discarded by the generation guard.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.generation++
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// handleAuthChange is the subscription callback. The backend delivers
// notifications synchronously in emission order, so applying them here
// preserves last-write-wins by notification order.
func (s *Synchronizer) handleAuthChange(event backend.AuthEvent, sess *domain.Session) {
	s.apply(event, sess)
}

// apply overwrites the local session wholesale and kicks off a profile
// fetch when a user is present. Processing the same notification twice
// converges to the same state.
func (s *Synchronizer) apply(event backend.AuthEvent, sess *domain.Session) {
	observability.RecordAuthChange(string(event))

	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.session = sess

	if sess == nil {
		s.profile = nil
		s.state = StateUnauthenticated
		s.loading = false
		s.mu.Unlock()
		observability.SetSessionState(string(StateUnauthenticated))
		s.logger.Printf("auth change %s: no user", event)
		return
	}

	s.state = StateAwaitingProfile
	s.loading = true
	userID := sess.UserID
	s.mu.Unlock()

	observability.SetSessionState(string(StateAwaitingProfile))
	s.logger.Printf("auth change %s: user %s, fetching profile", event, userID)
	go s.fetchProfile(gen, userID)
}

// fetchProfile races the profile lookup against the fetch timeout. Whatever
// branch wins, finishProfileFetch runs exactly once for this generation.
func (s *Synchronizer) fetchProfile(gen uint64, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.profileTimeout)
	defer cancel()

	type result struct {
		profile *domain.Profile
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		profile, err := s.backend.SelectProfile(ctx, userID)
		ch <- result{profile: profile, err: err}
	}()

	select {
	case res := <-ch:
		s.finishProfileFetch(gen, res.profile, res.err)
	case <-ctx.Done():
		s.finishProfileFetch(gen, nil, fmt.Errorf("%w: profile fetch exceeded %s", domain.ErrTimeout, s.profileTimeout))
	}
}

// finishProfileFetch is the single finalization point for a profile fetch:
// it resolves the profile, moves to Ready, and clears the loading flag. A
// result tagged with a stale generation is discarded untouched.
func (s *Synchronizer) finishProfileFetch(gen uint64, profile *domain.Profile, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		observability.RecordProfileFetch("stale")
		s.logger.Printf("discarding stale profile fetch result (generation %d, current %d)", gen, s.generation)
		return
	}

	switch {
	case err == nil:
		s.profile = profile
		observability.RecordProfileFetch("ok")
	case errors.Is(err, domain.ErrNotFound):
		// The provisioning trigger on the hosted side has not created the
		// row yet. Absent profile, not a failure.
		s.profile = nil
		observability.RecordProfileFetch("not_found")
		s.logger.Printf("profile not provisioned yet: %v", err)
	case errors.Is(err, domain.ErrTimeout):
		s.profile = nil
		observability.RecordProfileFetch("timeout")
		s.logger.Printf("profile fetch timed out: %v", err)
	default:
		s.profile = nil
		observability.RecordProfileFetch("error")
		s.logger.Printf("profile fetch failed: %v", err)
	}

	s.state = StateReady
	s.loading = false
	observability.SetSessionState(string(StateReady))
}

// SignUp registers an account. Local state is not mutated here; the ensuing
// auth-change notification converges it.
func (s *Synchronizer) SignUp(ctx context.Context, email, password, name, puppyName string) (*domain.Session, error) {
	return s.backend.SignUp(ctx, email, password, name, puppyName)
}

// SignIn exchanges credentials for a session. Like SignUp, state converges
// via the notification rather than the return value.
func (s *Synchronizer) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	return s.backend.SignIn(ctx, email, password)
}

// SignOut revokes the remote session and clears local state immediately on
// success, without waiting for the notification round-trip. On failure the
// local state is left untouched and the error is returned.
func (s *Synchronizer) SignOut(ctx context.Context) error {
	if err := s.backend.SignOut(ctx); err != nil {
		s.logger.Printf("sign out failed: %v", err)
		return err
	}

	s.mu.Lock()
	s.generation++
	s.session = nil
	s.profile = nil
	s.state = StateUnauthenticated
	s.loading = false
	s.mu.Unlock()
	observability.SetSessionState(string(StateUnauthenticated))
	return nil
}

// Snapshot is a point-in-time copy of the synchronizer state.
type Snapshot struct {
	State         State
	Session       *domain.Session
	Profile       *domain.Profile
	Loading       bool
	EmailVerified bool
}

// Snapshot returns a copy of the current state safe to hand to readers.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{State: s.state, Loading: s.loading}
	if s.session != nil {
		cp := *s.session
		snap.Session = &cp
		snap.EmailVerified = s.session.EmailVerified
	}
	if s.profile != nil {
		cp := *s.profile
		snap.Profile = &cp
	}
	return snap
}

// CurrentUser reports the signed-in user ID, satisfying the user source the
// activity store requires.
func (s *Synchronizer) CurrentUser() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return "", false
	}
	return s.session.UserID, true
}
