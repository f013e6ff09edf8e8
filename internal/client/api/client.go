// Package api is a small HTTP client for the gophauth server. The refresh
// token lives in the cookie jar (or in memory when the server uses the
// X-Refresh-Token header); access tokens are returned to the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/config"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// ErrUnavailable means the server could not be reached.
var ErrUnavailable = errors.New("server unavailable")

type Profile struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type Session struct {
	AccessToken          string    `json:"accessToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	User                 *Profile  `json:"user,omitempty"`
}

type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error is a non-2xx response.
type Error struct {
	Status int
	Errors []FieldError
}

func (e *Error) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	msgs := make([]string, 0, len(e.Errors))
	for _, f := range e.Errors {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, "; ")
}

// Error codes the client reacts to.
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeAccessExpired   = "ACCESS_TOKEN_EXPIRED"
	CodeSessionExpired  = "SESSION_EXPIRED"
)

// Code returns the first error code, or "".
func (e *Error) Code() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Code
}

// HasCode reports whether err is an *Error carrying code.
func HasCode(err error, code string) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Code() == code
}

type Client struct {
	base *url.URL
	http *http.Client

	mu           sync.Mutex
	refreshToken string
}

func New(cfg *config.Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.ServerURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		base: base,
		http: &http.Client{Jar: jar, Timeout: cfg.RequestTimeout},
	}, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (c *Client) Signup(ctx context.Context, email string, password []byte) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/signup", credentials{Email: email, Password: string(password)}, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Signin(ctx context.Context, email string, password []byte) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/signin", credentials{Email: email, Password: string(password)}, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Refresh trades the stored refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.do(ctx, http.MethodPost, "/api/auth/refresh", nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Signout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "/api/auth/signout", nil, "", nil)
	c.mu.Lock()
	c.refreshToken = ""
	c.mu.Unlock()
	return err
}

func (c *Client) CurrentUser(ctx context.Context, accessToken string) (*Profile, error) {
	var out struct {
		User Profile `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/auth/user", nil, accessToken, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Ping checks /healthz.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, "", nil)
}

func (c *Client) do(ctx context.Context, method, path string, in any, bearer string, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", common.BearerScheme+" "+bearer)
	}

	c.mu.Lock()
	if c.refreshToken != "" {
		req.Header.Set(common.RefreshTokenHeaderName, c.refreshToken)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if rt := resp.Header.Get(common.RefreshTokenHeaderName); rt != "" {
		c.mu.Lock()
		c.refreshToken = rt
		c.mu.Unlock()
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &Error{Status: resp.StatusCode}
		var eb struct {
			Errors []FieldError `json:"errors"`
		}
		if json.NewDecoder(resp.Body).Decode(&eb) == nil {
			apiErr.Errors = eb.Errors
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
