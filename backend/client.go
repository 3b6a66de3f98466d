// Package backend implements the HTTP client for the hosted
// backend-as-a-service: the auth provider, the row store, and object
// storage. Every other component treats this client as an opaque
// collaborator; backend-specific failures are mapped onto the domain error
// taxonomy at this boundary and never leak upward.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"example.com/puppylog/config"
	"example.com/puppylog/domain"
)

// Client talks to the hosted service. It owns the current access token and
// the auth-change subscription channel; all exported methods are safe for
// concurrent use.
type Client struct {
	baseURL string
	anonKey string
	bucket  string
	httpc   *http.Client
	logger  *log.Logger

	mu           sync.Mutex
	session      *domain.Session
	refreshToken string
	subscribers  []Subscriber

	// notifyMu serializes auth-change emissions independently of the state
	// mutex so subscriber callbacks never run with c.mu held.
	notifyMu sync.Mutex
}

// Subscriber receives auth-change notifications. Callbacks run synchronously
// in emission order on a single logical channel; a slow subscriber delays
// later notifications rather than reordering them.
type Subscriber func(event AuthEvent, session *domain.Session)

// AuthEvent names the reason a notification fired.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "initial_session"
	EventSignedIn       AuthEvent = "signed_in"
	EventSignedUp       AuthEvent = "signed_up"
	EventTokenRefreshed AuthEvent = "token_refreshed"
	EventSignedOut      AuthEvent = "signed_out"
)

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithLogger overrides the logger used to report transport errors.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient substitutes the underlying HTTP client, mainly for tests.
func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) {
		c.httpc = httpc
	}
}

// New constructs a Client from configuration.
func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(cfg.BackendURL, "/"),
		anonKey: cfg.AnonKey,
		bucket:  cfg.PhotoBucket,
		httpc:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger:  log.New(log.Writer(), "[backend] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnAuthChange registers fn for auth-change notifications and returns an
// unsubscribe function. Registration order is delivery order.
func (c *Client) OnAuthChange(fn Subscriber) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
	idx := len(c.subscribers) - 1
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.subscribers) {
			c.subscribers[idx] = nil
		}
	}
}

// emit delivers an auth-change notification to every live subscriber. The
// notify mutex serializes concurrent emitters, which is what gives the
// in-order delivery guarantee the synchronizer relies on.
func (c *Client) emit(event AuthEvent, session *domain.Session) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	subs := make([]Subscriber, len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, fn := range subs {
		if fn != nil {
			fn(event, cloneSession(session))
		}
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// do performs an HTTP request with the service headers attached. The bearer
// token is the current access token when a session is held, otherwise the
// anonymous API key.
func (c *Client) do(ctx context.Context, method, path string, headers map[string]string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", domain.ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrRemote, err)
	}
	return resp, nil
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil && c.session.AccessToken != "" {
		return c.session.AccessToken
	}
	return c.anonKey
}

// doJSON issues a request with an optional JSON body and decodes a JSON
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, headers map[string]string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: encode request: %v", domain.ErrRemote, err)
		}
		body = bytes.NewReader(raw)
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if in != nil {
		headers["Content-Type"] = "application/json"
	}

	resp, err := c.do(ctx, method, path, headers, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrRemote, err)
	}
	return nil
}

// serviceError is the error envelope the hosted service returns. Field names
// differ between the auth and row subsystems, so all known spellings are
// collected.
type serviceError struct {
	Message     string `json:"message"`
	Msg         string `json:"msg"`
	Description string `json:"error_description"`
	Code        string `json:"code"`
}

func (e serviceError) text() string {
	for _, s := range []string{e.Message, e.Msg, e.Description, e.Code} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

// statusError maps an HTTP failure response onto the domain taxonomy.
func statusError(resp *http.Response) error {
	var svc serviceError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(raw, &svc)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthenticated, svc.text())
	case http.StatusNotFound, http.StatusNotAcceptable:
		// The row store answers 406 to a single-object read that matched no
		// rows; both spellings mean "row absent".
		return fmt.Errorf("%w: %s", domain.ErrNotFound, svc.text())
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrRemote, resp.StatusCode, svc.text())
	}
}

// nowFunc is swapped in tests that need deterministic expiry handling.
var nowFunc = time.Now
