// Package common contains shared constants, sentinel errors and small helpers
// used across gophauth components.
package common

const (
	// AccessTokenCookieName is the cookie a browser client may use to carry
	// the access token instead of the Authorization header.
	AccessTokenCookieName = "access_token"

	// RefreshTokenHeaderName carries the refresh token when the header
	// transport is configured instead of the cookie one.
	RefreshTokenHeaderName = "X-Refresh-Token"

	// BearerScheme is the Authorization scheme for access tokens.
	BearerScheme = "Bearer"
)
