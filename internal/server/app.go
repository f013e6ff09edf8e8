// Package server wires the auth server together: configuration, storage,
// the auth services, the HTTP API and the gRPC health endpoint, and runs
// them until a signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/auth"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/httpapi"
	"github.com/dmitrijs2005/gophauth/internal/server/metrics"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/services"
	"github.com/dmitrijs2005/gophauth/internal/server/transport"
	"github.com/gin-gonic/gin"

	gs "github.com/dmitrijs2005/gophauth/internal/server/grpc"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	repos   repomanager.RepositoryManager
	handler http.Handler
}

// NewLogger builds the process logger described by c.
func NewLogger(c *config.Config) (logging.Logger, error) {
	return logging.New(logging.Options{
		Backend:     c.LogBackend,
		Level:       c.LogLevel,
		JSON:        c.IsProduction(),
		Development: !c.IsProduction(),
		Output:      os.Stdout,
	})
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	repos, err := repomanager.Open(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	hasher, err := auth.NewPasswordHasher(c.PasswordHashAlgorithm, auth.Argon2Params{
		Memory:  c.Argon2Memory,
		Time:    c.Argon2Time,
		Threads: c.Argon2Threads,
	}, c.BcryptCost)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	signer := auth.NewTokenSigner([]byte(c.AccessTokenSecret), c.Issuer, c.AccessTokenValidityDuration)
	tokens := services.NewTokenIssuer(repos, signer, c, logger.With("module", "tokens"))

	authService, err := services.NewAuthService(repos, hasher, tokens, c, logger.With("module", "auth"))
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	tr, err := transport.New(c)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	if c.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := httpapi.NewRouter(httpapi.RouterOptions{
		Auth:        authService,
		Transport:   tr,
		Metrics:     metrics.New(),
		Storage:     repos,
		Logger:      logger.With("module", "http"),
		CORSOrigins: c.CORSAllowedOrigins,
	})

	return &App{config: c, logger: logger, repos: repos, handler: router}, nil
}

// initSignalHandler cancels on a termination signal. The returned channel is
// closed once the watcher has stopped listening for signals.
func (app *App) initSignalHandler(ctx context.Context, cancelFunc context.CancelFunc) <-chan struct{} {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer signal.Stop(sigs)
		select {
		case sig := <-sigs:
			app.logger.Info(ctx, "signal received", "signal", sig.String())
			cancelFunc()
		case <-ctx.Done():
		}
	}()
	return done
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc, lis net.Listener) {
	srv := &http.Server{
		Handler:           app.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(context.Background(), "Stopping HTTP server...")
		sctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			app.logger.Error(sctx, "HTTP shutdown", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc, lis net.Listener) {
	s := gs.NewHealthServer(app.logger, app.repos, 10*time.Second)

	if err := s.Serve(ctx, lis); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// drains both servers and closes storage.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "env", app.config.Env, "storage", app.config.StorageDriver, "token_store", app.config.TokenStore)

	httpLis, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		_ = app.repos.Close()
		return fmt.Errorf("listen http: %w", err)
	}
	grpcLis, err := net.Listen("tcp", app.config.GRPCHealthAddr)
	if err != nil {
		_ = httpLis.Close()
		_ = app.repos.Close()
		return fmt.Errorf("listen grpc: %w", err)
	}

	sigDone := app.initSignalHandler(ctx, cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc, httpLis)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc, grpcLis)
	}()

	wg.Wait()
	cancelFunc()
	<-sigDone

	if err := app.repos.Close(); err != nil {
		return fmt.Errorf("close storage: %w", err)
	}
	app.logger.Info(context.Background(), "Stopped")
	return nil
}
