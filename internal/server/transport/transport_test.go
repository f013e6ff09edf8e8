package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newCookieTransport(secure bool) *CookieTransport {
	t := NewCookieTransport(CookieOptions{
		Name:   "refresh_token",
		Secret: []byte("cookie-secret"),
		Path:   "/api/auth",
		Domain: "example.com",
		Secure: secure,
	})
	t.now = func() time.Time { return fixedNow }
	return t
}

// roundTrip copies cookies set on rec into a fresh request.
func roundTrip(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return req
}

func TestCookieTransport_AttachExtract(t *testing.T) {
	tr := newCookieTransport(true)
	rec := httptest.NewRecorder()

	tr.Attach(rec, "raw-token", fixedNow.Add(time.Hour))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, "refresh_token", c.Name)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
	assert.Equal(t, "/api/auth", c.Path)
	assert.Equal(t, "example.com", c.Domain)
	assert.Equal(t, 3600, c.MaxAge)
	assert.NotEqual(t, "raw-token", c.Value)

	got, ok := tr.Extract(roundTrip(rec))
	require.True(t, ok)
	assert.Equal(t, "raw-token", got)
}

func TestCookieTransport_NotSecureOutsideProduction(t *testing.T) {
	tr := newCookieTransport(false)
	rec := httptest.NewRecorder()
	tr.Attach(rec, "raw-token", fixedNow.Add(time.Hour))

	require.Len(t, rec.Result().Cookies(), 1)
	assert.False(t, rec.Result().Cookies()[0].Secure)
}

func TestCookieTransport_ExtractRejects(t *testing.T) {
	tr := newCookieTransport(false)
	good := tr.sign("raw-token")
	other := NewCookieTransport(CookieOptions{Name: "refresh_token", Secret: []byte("other")})

	tests := []struct {
		name  string
		value string
		set   bool
	}{
		{"no cookie", "", false},
		{"unsigned", "raw-token", true},
		{"tampered token", "raw-tokem" + good[len("raw-token"):], true},
		{"tampered signature", good[:len(good)-1] + "A", true},
		{"empty signature", "raw-token.", true},
		{"empty token", "." + tr.mac(""), true},
		{"foreign secret", other.sign("raw-token"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.set {
				req.AddCookie(&http.Cookie{Name: "refresh_token", Value: tt.value})
			}
			_, ok := tr.Extract(req)
			assert.False(t, ok)
		})
	}
}

func TestCookieTransport_Clear(t *testing.T) {
	tr := newCookieTransport(false)
	rec := httptest.NewRecorder()
	tr.Clear(rec)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "refresh_token", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Less(t, cookies[0].MaxAge, 0)
	assert.Equal(t, "/api/auth", cookies[0].Path)
}

func TestCookieTransport_AttachExpiredClears(t *testing.T) {
	tr := newCookieTransport(false)
	rec := httptest.NewRecorder()
	tr.Attach(rec, "raw-token", fixedNow.Add(-time.Second))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
}

func TestHeaderTransport(t *testing.T) {
	var tr HeaderTransport
	rec := httptest.NewRecorder()
	tr.Attach(rec, "raw-token", fixedNow)
	assert.Equal(t, "raw-token", rec.Header().Get(common.RefreshTokenHeaderName))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	_, ok := tr.Extract(req)
	assert.False(t, ok)

	req.Header.Set(common.RefreshTokenHeaderName, " raw-token ")
	got, ok := tr.Extract(req)
	require.True(t, ok)
	assert.Equal(t, "raw-token", got)

	tr.Clear(rec)
	assert.Empty(t, rec.Header().Get(common.RefreshTokenHeaderName))
}

func TestExtractAccessToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
		ok     bool
	}{
		{name: "bearer", header: "Bearer abc", want: "abc", ok: true},
		{name: "bearer lower case", header: "bearer abc", want: "abc", ok: true},
		{name: "other scheme", header: "Basic abc", ok: false},
		{name: "bearer without token", header: "Bearer ", ok: false},
		{name: "header wins over cookie", header: "Bearer abc", cookie: "xyz", want: "abc", ok: true},
		{name: "cookie", cookie: "xyz", want: "xyz", ok: true},
		{name: "nothing", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/user", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: common.AccessTokenCookieName, Value: tt.cookie})
			}
			got, ok := ExtractAccessToken(req)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.CookieSecret = "s"

	tr, err := New(cfg)
	require.NoError(t, err)
	ct, ok := tr.(*CookieTransport)
	require.True(t, ok)
	assert.False(t, ct.opts.Secure)

	cfg.Env = config.EnvProduction
	tr, err = New(cfg)
	require.NoError(t, err)
	assert.True(t, tr.(*CookieTransport).opts.Secure)

	cfg.RefreshTransport = config.TransportHeader
	tr, err = New(cfg)
	require.NoError(t, err)
	assert.IsType(t, HeaderTransport{}, tr)

	cfg.RefreshTransport = "pigeon"
	_, err = New(cfg)
	assert.Error(t, err)
}
