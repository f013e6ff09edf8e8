package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/client/api"
	"github.com/dmitrijs2005/gophauth/internal/client/config"
)

// authAPI is the part of api.Client the commands use.
type authAPI interface {
	Signup(ctx context.Context, email string, password []byte) (*api.Session, error)
	Signin(ctx context.Context, email string, password []byte) (*api.Session, error)
	Refresh(ctx context.Context) (*api.Session, error)
	Signout(ctx context.Context) error
	CurrentUser(ctx context.Context, accessToken string) (*api.Profile, error)
	Ping(ctx context.Context) error
}

type App struct {
	config *config.Config
	api    authAPI
	reader *bufio.Reader
	out    io.Writer

	email       string
	accessToken string
	expiresAt   time.Time
}

func NewApp(c *config.Config) (*App, error) {
	client, err := api.New(c)
	if err != nil {
		return nil, err
	}
	return &App{config: c, api: client, reader: bufio.NewReader(os.Stdin), out: os.Stdout}, nil
}

func (a *App) Run(ctx context.Context) {
	fmt.Fprintf(a.out, "Welcome to gophauth CLI, server %s (type 'help' for commands)\n", a.config.ServerURL)

	if err := a.api.Ping(ctx); err != nil {
		if errors.Is(err, api.ErrUnavailable) {
			fmt.Fprintln(a.out, "Warning: server is not reachable right now")
		} else {
			fmt.Fprintf(a.out, "Warning: server is unhealthy: %v\n", err)
		}
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.accessToken != ""
}

func (a *App) getStatus() string {
	if !a.isLoggedIn() {
		return "(anonymous)"
	}
	return fmt.Sprintf("(%s)", a.email)
}

func (a *App) setSession(s *api.Session) {
	a.accessToken = s.AccessToken
	a.expiresAt = s.AccessTokenExpiresAt
	if s.User != nil {
		a.email = s.User.Email
	}
}

func (a *App) clearSession() {
	a.accessToken = ""
	a.expiresAt = time.Time{}
	a.email = ""
}
