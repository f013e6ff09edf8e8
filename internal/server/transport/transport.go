// Package transport moves refresh tokens between the server and the client.
// Access tokens travel in response bodies and the Authorization header; the
// longer lived refresh token is carried by a Transport.
package transport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
)

// Transport attaches, extracts and clears the refresh token on HTTP
// messages.
type Transport interface {
	Attach(w http.ResponseWriter, token string, expiresAt time.Time)
	Extract(r *http.Request) (string, bool)
	Clear(w http.ResponseWriter)
}

// New returns the transport selected by cfg.RefreshTransport.
func New(cfg *config.Config) (Transport, error) {
	switch cfg.RefreshTransport {
	case config.TransportCookie:
		return NewCookieTransport(CookieOptions{
			Name:   cfg.RefreshCookieName,
			Secret: []byte(cfg.CookieSecret),
			Domain: cfg.CookieDomain,
			Path:   cfg.CookiePath,
			Secure: cfg.IsProduction(),
		}), nil
	case config.TransportHeader:
		return HeaderTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown refresh transport %q", cfg.RefreshTransport)
	}
}

// HeaderTransport carries the refresh token in the X-Refresh-Token header.
// Non-browser clients use it.
type HeaderTransport struct{}

func (HeaderTransport) Attach(w http.ResponseWriter, token string, _ time.Time) {
	w.Header().Set(common.RefreshTokenHeaderName, token)
}

func (HeaderTransport) Extract(r *http.Request) (string, bool) {
	v := strings.TrimSpace(r.Header.Get(common.RefreshTokenHeaderName))
	return v, v != ""
}

func (HeaderTransport) Clear(w http.ResponseWriter) {
	w.Header().Del(common.RefreshTokenHeaderName)
}

// ExtractAccessToken reads the access token from "Authorization: Bearer"
// and falls back to the access_token cookie.
func ExtractAccessToken(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, common.BearerScheme) {
			token = strings.TrimSpace(token)
			return token, token != ""
		}
		return "", false
	}

	c, err := r.Cookie(common.AccessTokenCookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
