package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/puppylog/domain"
)

// authResponse is the token grant envelope returned by the auth provider.
type authResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID               string `json:"id"`
		Email            string `json:"email"`
		EmailConfirmedAt string `json:"email_confirmed_at"`
	} `json:"user"`
}

// signUpRequest carries the profile fields the provisioning trigger copies
// into the profile row on the hosted side.
type signUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     signUpMetadata `json:"data"`
}

type signUpMetadata struct {
	Name      string `json:"name"`
	PuppyName string `json:"puppy_name"`
}

type passwordGrant struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshGrant struct {
	RefreshToken string `json:"refresh_token"`
}

// SignUp registers a new account. The returned session may be unverified;
// callers converge on the ensuing auth-change notification rather than on
// the return value.
func (c *Client) SignUp(ctx context.Context, email, password, name, puppyName string) (*domain.Session, error) {
	var resp authResponse
	req := signUpRequest{Email: email, Password: password, Data: signUpMetadata{Name: name, PuppyName: puppyName}}
	if err := c.doJSON(ctx, "POST", "/auth/v1/signup", nil, req, &resp); err != nil {
		return nil, err
	}

	session, err := c.adoptSession(resp)
	if err != nil {
		return nil, err
	}
	c.emit(EventSignedUp, session)
	return cloneSession(session), nil
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	var resp authResponse
	if err := c.doJSON(ctx, "POST", "/auth/v1/token?grant_type=password", nil, passwordGrant{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}

	session, err := c.adoptSession(resp)
	if err != nil {
		return nil, err
	}
	c.emit(EventSignedIn, session)
	return cloneSession(session), nil
}

// SignOut revokes the session remotely, then drops it locally and notifies
// subscribers. A remote failure leaves the local session in place.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.doJSON(ctx, "POST", "/auth/v1/logout", nil, nil, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.session = nil
	c.refreshToken = ""
	c.mu.Unlock()

	c.emit(EventSignedOut, nil)
	return nil
}

// GetSession returns the currently held session, refreshing it when the
// access token has expired and a refresh token is available. A nil session
// with a nil error means "no user signed in".
func (c *Client) GetSession(ctx context.Context) (*domain.Session, error) {
	c.mu.Lock()
	session := c.session
	refresh := c.refreshToken
	c.mu.Unlock()

	if session == nil {
		return nil, nil
	}
	if !session.Expired(nowFunc()) {
		return cloneSession(session), nil
	}
	if refresh == "" {
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
		return nil, nil
	}

	c.logger.Printf("access token expired for %s, refreshing", session.UserID)
	var resp authResponse
	if err := c.doJSON(ctx, "POST", "/auth/v1/token?grant_type=refresh_token", nil, refreshGrant{RefreshToken: refresh}, &resp); err != nil {
		return nil, err
	}

	refreshed, err := c.adoptSession(resp)
	if err != nil {
		return nil, err
	}
	c.emit(EventTokenRefreshed, refreshed)
	return cloneSession(refreshed), nil
}

// adoptSession decodes the grant into a Session and installs it as current.
func (c *Client) adoptSession(resp authResponse) (*domain.Session, error) {
	session, err := sessionFromToken(resp.AccessToken)
	if err != nil {
		return nil, err
	}
	if session.UserID == "" {
		session.UserID = resp.User.ID
	}
	if session.Email == "" {
		session.Email = resp.User.Email
	}
	if !session.EmailVerified {
		session.EmailVerified = resp.User.EmailConfirmedAt != ""
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = nowFunc().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	c.mu.Lock()
	c.session = session
	if resp.RefreshToken != "" {
		c.refreshToken = resp.RefreshToken
	}
	c.mu.Unlock()
	return session, nil
}

// sessionFromToken extracts identity claims from the access token. The
// client holds no signing secret, so the token is decoded without signature
// verification; the hosted service is the verifier of record on every call
// that presents it.
func sessionFromToken(token string) (*domain.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty access token", domain.ErrRemote)
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed access token: %v", domain.ErrRemote, err)
	}

	session := &domain.Session{AccessToken: token}
	if sub, err := claims.GetSubject(); err == nil {
		session.UserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		session.Email = email
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		session.EmailVerified = verified
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		session.ExpiresAt = exp.Time
	}
	return session, nil
}
