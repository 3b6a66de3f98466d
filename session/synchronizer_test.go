package session

import (
	"context"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/puppylog/backend"
	"example.com/puppylog/backendtest"
	"example.com/puppylog/domain"
)

func newTestSynchronizer(t *testing.T, fake *backendtest.Fake, opts ...Option) *Synchronizer {
	t.Helper()
	base := []Option{
		WithLogger(log.New(testWriter{t}, "", 0)),
		WithInitTimeout(time.Second),
		WithProfileTimeout(time.Second),
	}
	s := New(fake, append(base, opts...)...)
	t.Cleanup(s.Close)
	return s
}

func waitForState(t *testing.T, s *Synchronizer, want State) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = s.Snapshot()
		return snap.State == want && !snap.Loading
	}, 2*time.Second, 2*time.Millisecond, "never reached state %s (last %s)", want, snap.State)
	return snap
}

func TestInitializeWithoutSession(t *testing.T) {
	fake := backendtest.NewFake()
	s := newTestSynchronizer(t, fake)

	s.Initialize(context.Background())

	snap := s.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.False(t, snap.Loading)
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)
}

func TestInitializeWithExistingSession(t *testing.T) {
	fake := backendtest.NewFake()
	fake.SeedSession(&domain.Session{UserID: "user-1", Email: "a@b.com", EmailVerified: true})
	fake.SeedProfile(domain.Profile{UserID: "user-1", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake)

	s.Initialize(context.Background())

	snap := waitForState(t, s, StateReady)
	require.NotNil(t, snap.Session)
	require.Equal(t, "user-1", snap.Session.UserID)
	require.True(t, snap.EmailVerified)
	require.NotNil(t, snap.Profile)
	require.Equal(t, "Rex", snap.Profile.PuppyName)
}

func TestInitializeRemoteErrorDegradesToUnauthenticated(t *testing.T) {
	fake := backendtest.NewFake()
	fake.GetSessionErr = fmt.Errorf("%w: backend unreachable", domain.ErrRemote)
	s := newTestSynchronizer(t, fake)

	s.Initialize(context.Background())

	snap := s.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.False(t, snap.Loading)
}

func TestSignInConvergesViaNotification(t *testing.T) {
	fake := backendtest.NewFake()
	fake.SeedAccount("a@b.com", "secret123", "user-1")
	fake.SeedProfile(domain.Profile{UserID: "user-1", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	_, err := s.SignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)

	snap := waitForState(t, s, StateReady)
	require.Equal(t, "user-1", snap.Session.UserID)
	require.True(t, snap.EmailVerified)
	require.Equal(t, "Ann", snap.Profile.DisplayName)
}

func TestSignInBadCredentialsLeavesStateUntouched(t *testing.T) {
	fake := backendtest.NewFake()
	fake.SeedAccount("a@b.com", "secret123", "user-1")
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	_, err := s.SignIn(context.Background(), "a@b.com", "wrong")
	require.ErrorIs(t, err, domain.ErrUnauthenticated)

	snap := s.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.Nil(t, snap.Session)
}

func TestSignUpBeforeProfileProvisioned(t *testing.T) {
	fake := backendtest.NewFake()
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	_, err := s.SignUp(context.Background(), "a@b.com", "secret123", "Ann", "Rex")
	require.NoError(t, err)

	// The provisioning trigger has not run: the profile is absent, which is
	// a resolved state, not an error.
	snap := waitForState(t, s, StateReady)
	require.NotNil(t, snap.Session)
	require.Equal(t, "a@b.com", snap.Session.Email)
	require.Nil(t, snap.Profile)
}

func TestLastNotificationWins(t *testing.T) {
	fake := backendtest.NewFake()
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	sessions := []*domain.Session{
		{UserID: "user-a", Email: "a@b.com"},
		{UserID: "user-b", Email: "b@b.com"},
		nil,
		{UserID: "user-c", Email: "c@b.com"},
	}
	for _, sess := range sessions {
		event := backend.EventSignedIn
		if sess == nil {
			event = backend.EventSignedOut
		}
		fake.Emit(event, sess)
	}

	snap := waitForState(t, s, StateReady)
	require.Equal(t, "user-c", snap.Session.UserID)

	// State must not drift after settling.
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, "user-c", s.Snapshot().Session.UserID)
}

func TestRepeatedNotificationsAreIdempotent(t *testing.T) {
	fake := backendtest.NewFake()
	fake.SeedProfile(domain.Profile{UserID: "user-1", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	sess := &domain.Session{UserID: "user-1", Email: "a@b.com"}
	fake.Emit(backend.EventSignedIn, sess)
	fake.Emit(backend.EventTokenRefreshed, sess)
	fake.Emit(backend.EventTokenRefreshed, sess)

	snap := waitForState(t, s, StateReady)
	require.Equal(t, "user-1", snap.Session.UserID)
	require.Equal(t, "Rex", snap.Profile.PuppyName)
}

func TestProfileFetchTimeoutResolvesAbsent(t *testing.T) {
	fake := backendtest.NewFake()
	fake.ProfileDelay = 500 * time.Millisecond
	fake.SeedProfile(domain.Profile{UserID: "user-1", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake, WithProfileTimeout(50*time.Millisecond))
	s.Initialize(context.Background())

	start := time.Now()
	fake.Emit(backend.EventSignedIn, &domain.Session{UserID: "user-1"})

	snap := waitForState(t, s, StateReady)
	require.Nil(t, snap.Profile)
	require.Less(t, time.Since(start), 450*time.Millisecond, "loading must clear within timeout plus epsilon")

	// The lookup eventually resolves on the backend side; its late result
	// must not overwrite the settled absent state.
	time.Sleep(600 * time.Millisecond)
	snap = s.Snapshot()
	require.Equal(t, StateReady, snap.State)
	require.Nil(t, snap.Profile)
	require.False(t, snap.Loading)
}

func TestStaleGenerationResultDiscarded(t *testing.T) {
	fake := backendtest.NewFake()
	fake.ProfileDelay = 60 * time.Millisecond
	// Only user-a has a profile; if user-a's late result survived the
	// generation check it would show up under user-b's session.
	fake.SeedProfile(domain.Profile{UserID: "user-a", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	fake.Emit(backend.EventSignedIn, &domain.Session{UserID: "user-a"})
	fake.Emit(backend.EventSignedIn, &domain.Session{UserID: "user-b"})

	snap := waitForState(t, s, StateReady)
	require.Equal(t, "user-b", snap.Session.UserID)
	require.Nil(t, snap.Profile)

	time.Sleep(150 * time.Millisecond)
	snap = s.Snapshot()
	require.Equal(t, "user-b", snap.Session.UserID)
	require.Nil(t, snap.Profile, "stale profile result for user-a must be discarded")
}

func TestSignOutClearsStateImmediately(t *testing.T) {
	fake := backendtest.NewFake()
	fake.SeedAccount("a@b.com", "secret123", "user-1")
	fake.SeedProfile(domain.Profile{UserID: "user-1", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	_, err := s.SignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)
	waitForState(t, s, StateReady)

	require.NoError(t, s.SignOut(context.Background()))

	snap := s.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)
	require.False(t, snap.Loading)
	require.False(t, snap.EmailVerified)
}

func TestSignOutFailureLeavesStateUntouched(t *testing.T) {
	fake := backendtest.NewFake()
	fake.SeedAccount("a@b.com", "secret123", "user-1")
	fake.SeedProfile(domain.Profile{UserID: "user-1", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	_, err := s.SignIn(context.Background(), "a@b.com", "secret123")
	require.NoError(t, err)
	waitForState(t, s, StateReady)

	fake.SignOutErr = fmt.Errorf("%w: logout rejected", domain.ErrRemote)
	err = s.SignOut(context.Background())
	require.Error(t, err)

	snap := s.Snapshot()
	require.Equal(t, StateReady, snap.State)
	require.NotNil(t, snap.Session)
	require.NotNil(t, snap.Profile)
}

func TestSignOutDuringProfileFetchDiscardsResult(t *testing.T) {
	fake := backendtest.NewFake()
	fake.ProfileDelay = 100 * time.Millisecond
	fake.SeedProfile(domain.Profile{UserID: "user-1", DisplayName: "Ann", PuppyName: "Rex"})
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	fake.Emit(backend.EventSignedIn, &domain.Session{UserID: "user-1"})
	require.NoError(t, s.SignOut(context.Background()))

	time.Sleep(200 * time.Millisecond)
	snap := s.Snapshot()
	require.Equal(t, StateUnauthenticated, snap.State)
	require.Nil(t, snap.Session)
	require.Nil(t, snap.Profile)
}

func TestProfileFetchRemoteFailureResolvesAbsent(t *testing.T) {
	fake := backendtest.NewFake()
	fake.SelectProfileErr = fmt.Errorf("%w: row store down", domain.ErrRemote)
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	fake.Emit(backend.EventSignedIn, &domain.Session{UserID: "user-1"})

	snap := waitForState(t, s, StateReady)
	require.NotNil(t, snap.Session)
	require.Nil(t, snap.Profile)
}

func TestCurrentUser(t *testing.T) {
	fake := backendtest.NewFake()
	s := newTestSynchronizer(t, fake)
	s.Initialize(context.Background())

	_, ok := s.CurrentUser()
	require.False(t, ok)

	fake.Emit(backend.EventSignedIn, &domain.Session{UserID: "user-1"})
	waitForState(t, s, StateReady)

	id, ok := s.CurrentUser()
	require.True(t, ok)
	require.Equal(t, "user-1", id)
}

// testWriter routes synchronizer logs through the test log.
type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}
