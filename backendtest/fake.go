// Package backendtest provides test doubles for the hosted backend: an
// in-process programmable Fake implementing the client interfaces, and an
// httptest-backed Server emulating the REST surface for transport-level
// tests.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/puppylog/backend"
	"example.com/puppylog/domain"
)

// Fake is an in-memory stand-in for the remote backend client. Failure
// injection fields hold the error to return; nil means succeed. Delay fields
// let tests exercise the timeout and stale-generation paths.
type Fake struct {
	mu          sync.Mutex
	session     *domain.Session
	subscribers []backend.Subscriber
	accounts    map[string]string // email -> password
	userIDs     map[string]string // email -> user id
	profiles    map[string]domain.Profile
	items       []domain.Activity
	nextID      int

	// Clock drives server-assigned timestamps; defaults to time.Now.
	Clock func() time.Time

	// ProfileDelay postpones SelectProfile resolution.
	ProfileDelay time.Duration

	GetSessionErr       error
	SignUpErr           error
	SignInErr           error
	SignOutErr          error
	SelectProfileErr    error
	SelectActivitiesErr error
	InsertErr           error
	UpdateErr           error
	DeleteErr           error
	UploadErr           error

	// UploadCalls counts UploadBlob invocations so tests can assert that
	// local validation short-circuits before any network traffic.
	UploadCalls int
}

// NewFake constructs an empty Fake.
func NewFake() *Fake {
	return &Fake{
		accounts: make(map[string]string),
		userIDs:  make(map[string]string),
		profiles: make(map[string]domain.Profile),
		Clock:    time.Now,
	}
}

// SeedAccount registers credentials without signing anyone in.
func (f *Fake) SeedAccount(email, password, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[email] = password
	f.userIDs[email] = userID
}

// SeedSession installs a current session, as if one survived from an
// earlier run.
func (f *Fake) SeedSession(s *domain.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.session = s
}

// SeedProfile provisions a profile row, standing in for the server-side
// trigger.
func (f *Fake) SeedProfile(p domain.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[p.UserID] = p
}

// SeedActivity inserts a row directly, bypassing the client contract.
func (f *Fake) SeedActivity(a domain.Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, a)
}

// Emit pushes an unsolicited auth-change notification, like a sign-in from
// another device. Delivery is synchronous and in order.
func (f *Fake) Emit(event backend.AuthEvent, s *domain.Session) {
	f.mu.Lock()
	f.session = s
	subs := make([]backend.Subscriber, len(f.subscribers))
	copy(subs, f.subscribers)
	f.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn(event, s)
		}
	}
}

// OnAuthChange registers fn and returns an unsubscribe function.
func (f *Fake) OnAuthChange(fn backend.Subscriber) (unsubscribe func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribers = append(f.subscribers, fn)
	idx := len(f.subscribers) - 1
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if idx < len(f.subscribers) {
			f.subscribers[idx] = nil
		}
	}
}

// GetSession returns the seeded session, if any.
func (f *Fake) GetSession(ctx context.Context) (*domain.Session, error) {
	if f.GetSessionErr != nil {
		return nil, f.GetSessionErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	cp := *f.session
	return &cp, nil
}

// SignUp registers the account and emits a signed_up notification. No
// profile row is provisioned; that is the hosted trigger's job and tests
// control it via SeedProfile.
func (f *Fake) SignUp(ctx context.Context, email, password, name, puppyName string) (*domain.Session, error) {
	if f.SignUpErr != nil {
		return nil, f.SignUpErr
	}
	f.mu.Lock()
	userID, ok := f.userIDs[email]
	if !ok {
		userID = fmt.Sprintf("user-%d", len(f.userIDs)+1)
		f.userIDs[email] = userID
	}
	f.accounts[email] = password
	session := &domain.Session{UserID: userID, Email: email, AccessToken: "fake-token-" + userID}
	f.mu.Unlock()

	f.Emit(backend.EventSignedUp, session)
	cp := *session
	return &cp, nil
}

// SignIn validates seeded credentials and emits a signed_in notification.
func (f *Fake) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	if f.SignInErr != nil {
		return nil, f.SignInErr
	}
	f.mu.Lock()
	stored, ok := f.accounts[email]
	if !ok || stored != password {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: invalid credentials", domain.ErrUnauthenticated)
	}
	session := &domain.Session{UserID: f.userIDs[email], Email: email, EmailVerified: true, AccessToken: "fake-token-" + f.userIDs[email]}
	f.mu.Unlock()

	f.Emit(backend.EventSignedIn, session)
	cp := *session
	return &cp, nil
}

// SignOut clears the session and emits a signed_out notification.
func (f *Fake) SignOut(ctx context.Context) error {
	if f.SignOutErr != nil {
		return f.SignOutErr
	}
	f.Emit(backend.EventSignedOut, nil)
	return nil
}

// SelectProfile resolves the seeded profile after ProfileDelay, honouring
// context cancellation during the wait.
func (f *Fake) SelectProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if f.ProfileDelay > 0 {
		select {
		case <-time.After(f.ProfileDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, ctx.Err())
		}
	}
	if f.SelectProfileErr != nil {
		return nil, f.SelectProfileErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[userID]
	if !ok {
		return nil, fmt.Errorf("%w: no profile row for %s", domain.ErrNotFound, userID)
	}
	cp := p
	return &cp, nil
}

// SelectActivities returns the user's rows newest first.
func (f *Fake) SelectActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	if f.SelectActivitiesErr != nil {
		return nil, f.SelectActivitiesErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Activity, 0, len(f.items))
	for _, a := range f.items {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

// InsertActivity assigns id and timestamp the way the row store does.
func (f *Fake) InsertActivity(ctx context.Context, fields domain.NewActivity) (domain.Activity, error) {
	if f.InsertErr != nil {
		return domain.Activity{}, f.InsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	created := domain.Activity{
		ID:        fmt.Sprintf("act-%d", f.nextID),
		UserID:    fields.UserID,
		Type:      fields.Type,
		Timestamp: f.Clock().UTC(),
		Notes:     fields.Notes,
		PhotoURL:  fields.PhotoURL,
	}
	f.items = append(f.items, created)
	return created, nil
}

// UpdateActivity applies the patch scoped to (id, userID).
func (f *Fake) UpdateActivity(ctx context.Context, id, userID string, patch domain.ActivityPatch) (domain.Activity, error) {
	if f.UpdateErr != nil {
		return domain.Activity{}, f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID != id || f.items[i].UserID != userID {
			continue
		}
		if patch.Type != nil {
			f.items[i].Type = *patch.Type
		}
		if patch.Timestamp != nil {
			f.items[i].Timestamp = *patch.Timestamp
		}
		if patch.Notes != nil {
			f.items[i].Notes = *patch.Notes
		}
		if patch.PhotoURL != nil {
			f.items[i].PhotoURL = *patch.PhotoURL
		}
		return f.items[i], nil
	}
	return domain.Activity{}, fmt.Errorf("%w: no activity matched id %s", domain.ErrNotFound, id)
}

// DeleteActivity removes the row scoped to (id, userID).
func (f *Fake) DeleteActivity(ctx context.Context, id, userID string) error {
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id && f.items[i].UserID == userID {
			f.items = append(f.items[:i], f.items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: no activity matched id %s", domain.ErrNotFound, id)
}

// UploadBlob records the call and returns a deterministic public URL.
func (f *Fake) UploadBlob(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	f.UploadCalls++
	f.mu.Unlock()
	if f.UploadErr != nil {
		return "", f.UploadErr
	}
	return "https://backend.test/storage/v1/object/public/puppy-photos/" + path, nil
}

// DeleteBlob accepts any path.
func (f *Fake) DeleteBlob(ctx context.Context, path string) error {
	return nil
}
