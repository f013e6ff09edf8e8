package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophauth/internal/client/api"
	"github.com/dmitrijs2005/gophauth/internal/common"
)

// getSimpleText and getPassword are swapped in tests.
var getSimpleText = GetSimpleText
var getPassword = GetPassword

func (a *App) readCredentials() (string, []byte, error) {
	email, err := getSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return email, password, nil
}

// Signup creates an account and keeps the returned session.
func (a *App) Signup(ctx context.Context) error {
	email, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.api.Signup(ctx, email, password)
	if err != nil {
		a.report("Signup failed", err)
		return err
	}

	a.setSession(s)
	fmt.Fprintf(a.out, "Account created, signed in as %s\n", a.email)
	return nil
}

func (a *App) Signin(ctx context.Context) error {
	email, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	s, err := a.api.Signin(ctx, email, password)
	if err != nil {
		a.report("Signin failed", err)
		return err
	}

	a.setSession(s)
	fmt.Fprintf(a.out, "Signed in as %s\n", a.email)
	return nil
}

// Whoami prints the current account. An expired access token is refreshed
// once before giving up.
func (a *App) Whoami(ctx context.Context) error {
	if !a.isLoggedIn() {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}

	p, err := a.api.CurrentUser(ctx, a.accessToken)
	if api.HasCode(err, api.CodeAccessExpired) {
		if err = a.Refresh(ctx); err != nil {
			return err
		}
		p, err = a.api.CurrentUser(ctx, a.accessToken)
	}
	if api.HasCode(err, api.CodeUnauthenticated) {
		a.clearSession()
		fmt.Fprintln(a.out, "Access token rejected, please sign in again")
		return err
	}
	if err != nil {
		a.report("Whoami failed", err)
		return err
	}

	a.email = p.Email
	fmt.Fprintf(a.out, "id: %s\nemail: %s\ncreated: %s\n", p.ID, p.Email, p.CreatedAt.Format("2006-01-02 15:04:05"))
	return nil
}

// Refresh rotates the session. A rejected refresh token ends it locally.
func (a *App) Refresh(ctx context.Context) error {
	s, err := a.api.Refresh(ctx)
	if err != nil {
		if api.HasCode(err, api.CodeSessionExpired) {
			a.clearSession()
			fmt.Fprintln(a.out, "Session expired, please sign in again")
			return err
		}
		a.report("Refresh failed", err)
		return err
	}

	a.setSession(s)
	fmt.Fprintf(a.out, "Session refreshed, access token valid until %s\n", s.AccessTokenExpiresAt.Local().Format("15:04:05"))
	return nil
}

func (a *App) Signout(ctx context.Context) error {
	err := a.api.Signout(ctx)
	a.clearSession()
	if err != nil {
		a.report("Signout failed", err)
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *App) report(prefix string, err error) {
	fmt.Fprintf(a.out, "%s: %v\n", prefix, err)
}
