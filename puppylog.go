// Package puppylog assembles the client components for a host application:
// the backend client, the session synchronizer, the activity store, and the
// photo uploader. A UI layer consumes the snapshots and calls the operations;
// nothing here renders anything.
package puppylog

import (
	"context"
	"log"

	"example.com/puppylog/activities"
	"example.com/puppylog/backend"
	"example.com/puppylog/config"
	"example.com/puppylog/domain"
	"example.com/puppylog/session"
	"example.com/puppylog/storage"
)

// App bundles the wired components.
type App struct {
	Backend    *backend.Client
	Session    *session.Synchronizer
	Activities *activities.Store
	Photos     *storage.Uploader

	unsubscribe func()
}

// Option configures the App.
type Option func(*settings)

type settings struct {
	logger *log.Logger
}

// WithLogger routes every component's log output through logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// New wires an App from configuration.
func New(cfg config.Config, opts ...Option) *App {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	var (
		backendOpts []backend.Option
		sessionOpts []session.Option
		storeOpts   []activities.Option
		photoOpts   []storage.Option
	)
	if s.logger != nil {
		backendOpts = append(backendOpts, backend.WithLogger(s.logger))
		sessionOpts = append(sessionOpts, session.WithLogger(s.logger))
		storeOpts = append(storeOpts, activities.WithLogger(s.logger))
		photoOpts = append(photoOpts, storage.WithLogger(s.logger))
	}

	if cfg.SessionInitTimeout > 0 {
		sessionOpts = append(sessionOpts, session.WithInitTimeout(cfg.SessionInitTimeout))
	}
	if cfg.ProfileFetchTimeout > 0 {
		sessionOpts = append(sessionOpts, session.WithProfileTimeout(cfg.ProfileFetchTimeout))
	}
	if cfg.MaxUploadBytes > 0 {
		photoOpts = append(photoOpts, storage.WithMaxBytes(cfg.MaxUploadBytes))
	}

	client := backend.New(cfg, backendOpts...)
	synchronizer := session.New(client, sessionOpts...)
	store := activities.New(client, synchronizer, storeOpts...)
	photos := storage.New(client, photoOpts...)

	app := &App{
		Backend:    client,
		Session:    synchronizer,
		Activities: store,
		Photos:     photos,
	}

	// The activity collection is meaningful only while a session exists;
	// drop it as soon as the user signs out.
	app.unsubscribe = client.OnAuthChange(func(_ backend.AuthEvent, sess *domain.Session) {
		if sess == nil {
			store.Clear()
		}
	})
	return app
}

// NewFromEnv wires an App from process environment configuration. A missing
// endpoint or API key is returned as an error; nothing network-facing can
// run without them.
func NewFromEnv(opts ...Option) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(cfg, opts...), nil
}

// Start resolves the startup session and begins mirroring auth state.
func (a *App) Start(ctx context.Context) {
	a.Session.Initialize(ctx)
}

// Close detaches the app from the backend's notification channel.
func (a *App) Close() {
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	a.Session.Close()
}
