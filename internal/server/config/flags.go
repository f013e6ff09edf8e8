package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
)

// parseFlags overlays command-line flags. Only flags defined here are
// considered, so the config file flags and anything else in args are skipped.
//
//	-a   HTTP listen address
//	-g   gRPC health listen address
//	-d   database DSN
//	-s   access token secret
//	-k   cookie secret
//	-t   access token lifetime (e.g. 15m)
//	-r   refresh token lifetime (e.g. 168h)
func parseFlags(config *Config, args []string) error {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "HTTP listen address")
	fs.StringVar(&config.GRPCHealthAddr, "g", config.GRPCHealthAddr, "gRPC health listen address")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessTokenSecret, "s", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.CookieSecret, "k", config.CookieSecret, "cookie secret")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token lifetime")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token lifetime")
	fs.StringVar(&config.Env, "env", config.Env, "environment (development, production, test)")
	fs.StringVar(&config.StorageDriver, "storage", config.StorageDriver, "storage driver (postgres, sqlite)")
	fs.StringVar(&config.SQLitePath, "sqlite", config.SQLitePath, "sqlite database file")
	fs.StringVar(&config.TokenStore, "token-store", config.TokenStore, "refresh token store (sql, redis)")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address")
	fs.StringVar(&config.ReusePolicy, "reuse-policy", config.ReusePolicy, "refresh token reuse policy (revoke-token, revoke-family)")
	fs.StringVar(&config.RefreshTransport, "refresh-transport", config.RefreshTransport, "refresh token transport (cookie, header)")
	fs.StringVar(&config.LogBackend, "log-backend", config.LogBackend, "log backend (slog, zap)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	var allowed []string
	fs.VisitAll(func(f *flag.Flag) {
		allowed = append(allowed, "-"+f.Name, "--"+f.Name)
	})

	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
