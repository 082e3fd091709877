package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pstu-cpl/cpl/internal/session"
)

// User is the identity record of the remote auth service.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// Session is an authenticated remote session.
type Session struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// SignUpResult is the outcome of account creation. Session is nil when the
// service did not sign the new account in.
type SignUpResult struct {
	User    User
	Session *Session
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.User.UserMetadata != nil {
		cp.User.UserMetadata = make(map[string]any, len(s.User.UserMetadata))
		for k, v := range s.User.UserMetadata {
			cp.User.UserMetadata[k] = v
		}
	}
	return &cp
}

// Expiry returns when the access token expires. It prefers expires_at and
// falls back to the token's own exp claim.
func (s *Session) Expiry() time.Time {
	if s.ExpiresAt > 0 {
		return time.Unix(s.ExpiresAt, 0)
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Time{}
}

// normalize fills fields some responses omit.
func (s *Session) normalize(now time.Time) {
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	if s.User.ID == "" {
		claims := jwt.RegisteredClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(s.AccessToken, &claims); err == nil {
			s.User.ID = claims.Subject
		}
	}
}

// SignInWithPassword authenticates with email and password.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"password"}},
		body:   map[string]string{"email": email, "password": password},
	}, &s)
	if err != nil {
		return nil, err
	}

	s.normalize(c.now())
	if err := c.setSession(ctx, &s); err != nil {
		return nil, err
	}
	c.emit(EventSignedIn, &s)
	return s.clone(), nil
}

// SignUp creates an account. metadata is stored as the user's metadata.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	var resp struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body: map[string]any{
			"email":    email,
			"password": password,
			"data":     metadata,
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken == "" {
		return &SignUpResult{User: User{ID: resp.ID, Email: resp.Email}}, nil
	}

	s := resp.Session
	s.normalize(c.now())
	if err := c.setSession(ctx, &s); err != nil {
		return nil, err
	}
	c.emit(EventSignedIn, &s)
	return &SignUpResult{User: s.User, Session: s.clone()}, nil
}

// SignOut ends the session. The local session is cleared even when the
// remote call fails, and a missing session is not an error.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	if err := c.loadLocked(ctx); err != nil {
		slog.Warn("remote: reading stored session during sign-out", "error", err)
	}
	current := c.current
	c.mu.Unlock()

	var remoteErr error
	if current != nil {
		remoteErr = c.do(ctx, request{
			method: http.MethodPost,
			path:   "/auth/v1/logout",
			query:  url.Values{"scope": {"local"}},
			token:  current.AccessToken,
		}, nil)
		if IsStatus(remoteErr, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound) {
			remoteErr = nil
		}
	}

	if err := c.setSession(ctx, nil); err != nil {
		slog.Warn("remote: clearing stored session", "error", err)
	}
	c.emit(EventSignedOut, nil)

	return remoteErr
}

// GetSession returns the current session, refreshing an expired access
// token first. It returns nil when there is no usable session.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	if err := c.loadLocked(ctx); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	current := c.current.clone()
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	expiry := current.Expiry()
	if expiry.IsZero() || c.now().Add(expiryMargin).Before(expiry) {
		return current, nil
	}

	refreshed, err := c.refresh(ctx, current.RefreshToken)
	if err != nil {
		if IsUnavailable(err) {
			return nil, err
		}
		slog.Info("remote: session refresh rejected", "error", err)
		if err := c.setSession(ctx, nil); err != nil {
			slog.Warn("remote: clearing stored session", "error", err)
		}
		c.emit(EventSignedOut, nil)
		return nil, nil
	}

	if err := c.setSession(ctx, refreshed); err != nil {
		return nil, err
	}
	c.emit(EventTokenRefreshed, refreshed)
	return refreshed.clone(), nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, &Error{Status: http.StatusUnauthorized, Code: "refresh_token_not_found", Message: "no refresh token"}
	}

	var s Session
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": {"refresh_token"}},
		body:   map[string]string{"refresh_token": refreshToken},
	}, &s)
	if err != nil {
		return nil, err
	}
	s.normalize(c.now())
	return &s, nil
}

// GetUser validates the access token with the service. It returns nil and
// signs the client out when the service no longer accepts the token.
func (c *Client) GetUser(ctx context.Context) (*User, error) {
	s, err := c.GetSession(ctx)
	if err != nil || s == nil {
		return nil, err
	}

	var u User
	err = c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: s.AccessToken}, &u)
	if err != nil {
		if IsStatus(err, http.StatusUnauthorized, http.StatusForbidden) {
			if err := c.setSession(ctx, nil); err != nil {
				slog.Warn("remote: clearing stored session", "error", err)
			}
			c.emit(EventSignedOut, nil)
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpdatePassword sets a new password for the signed-in user.
func (c *Client) UpdatePassword(ctx context.Context, password string) error {
	s, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return ErrNoSession
	}

	var u User
	err = c.do(ctx, request{
		method: http.MethodPut,
		path:   "/auth/v1/user",
		body:   map[string]string{"password": password},
		token:  s.AccessToken,
	}, &u)
	if err != nil {
		return err
	}

	s.User = u
	c.emit(EventUserUpdated, s)
	return nil
}

// ResetPasswordForEmail asks the service to mail a recovery link.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email string) error {
	return c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/recover",
		body:   map[string]string{"email": email},
	}, nil)
}

// loadLocked reads the persisted session once. c.mu must be held.
func (c *Client) loadLocked(ctx context.Context) error {
	if c.loaded || c.tokens == nil {
		c.loaded = true
		return nil
	}

	raw, err := c.tokens.Get(ctx, tokenKey)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			c.loaded = true
			return nil
		}
		return fmt.Errorf("%w: reading stored session: %w", ErrUnavailable, err)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		slog.Warn("remote: discarding unreadable stored session", "error", err)
		c.loaded = true
		return nil
	}
	c.current = &s
	c.loaded = true
	return nil
}

// setSession replaces the current session and persists it.
func (c *Client) setSession(ctx context.Context, s *Session) error {
	c.mu.Lock()
	c.current = s.clone()
	c.loaded = true
	c.mu.Unlock()

	if c.tokens == nil {
		return nil
	}
	if s == nil {
		return c.tokens.Delete(ctx, tokenKey)
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	if err := c.tokens.Set(ctx, tokenKey, raw); err != nil {
		return fmt.Errorf("persisting session: %w", err)
	}
	return nil
}
