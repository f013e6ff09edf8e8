package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
)

type CookieOptions struct {
	Name   string
	Secret []byte
	Domain string
	Path   string
	Secure bool
}

// CookieTransport stores the refresh token in an HttpOnly cookie. The value
// is "<token>.<signature>" where the signature is HMAC-SHA256 of the token;
// a cookie with a bad signature reads as absent.
type CookieTransport struct {
	opts CookieOptions
	now  func() time.Time
}

func NewCookieTransport(opts CookieOptions) *CookieTransport {
	if opts.Path == "" {
		opts.Path = "/"
	}
	return &CookieTransport{opts: opts, now: time.Now}
}

func (t *CookieTransport) Attach(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(t.now()).Seconds())
	if maxAge <= 0 {
		// MaxAge 0 means a session cookie; the token is dead anyway.
		t.Clear(w)
		return
	}

	http.SetCookie(w, t.cookie(t.sign(token), expiresAt, maxAge))
}

func (t *CookieTransport) Extract(r *http.Request) (string, bool) {
	c, err := r.Cookie(t.opts.Name)
	if err != nil {
		return "", false
	}
	return t.verify(c.Value)
}

func (t *CookieTransport) Clear(w http.ResponseWriter) {
	http.SetCookie(w, t.cookie("", time.Unix(0, 0), -1))
}

func (t *CookieTransport) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     t.opts.Name,
		Value:    value,
		Path:     t.opts.Path,
		Domain:   t.opts.Domain,
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   t.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (t *CookieTransport) sign(token string) string {
	return token + "." + t.mac(token)
}

func (t *CookieTransport) verify(value string) (string, bool) {
	i := strings.LastIndexByte(value, '.')
	if i <= 0 || i == len(value)-1 {
		return "", false
	}
	token, sig := value[:i], value[i+1:]
	if !hmac.Equal([]byte(sig), []byte(t.mac(token))) {
		return "", false
	}
	return token, true
}

func (t *CookieTransport) mac(token string) string {
	m := hmac.New(sha256.New, t.opts.Secret)
	m.Write([]byte(token))
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}
