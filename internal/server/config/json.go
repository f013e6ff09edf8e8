package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/gophauth/internal/flagx"
	"github.com/dmitrijs2005/gophauth/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// either "15m" style strings or integer nanoseconds. Absent or zero fields
// keep the value from the previous layer.
type JsonConfig struct {
	Env                          string         `json:"env"`
	HTTPAddr                     string         `json:"http_addr"`
	GRPCHealthAddr               string         `json:"grpc_health_addr"`
	StorageDriver                string         `json:"storage_driver"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SQLitePath                   string         `json:"sqlite_path"`
	TokenStore                   string         `json:"token_store"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      int            `json:"redis_db"`
	AccessTokenSecret            string         `json:"access_token_secret"`
	CookieSecret                 string         `json:"cookie_secret"`
	Issuer                       string         `json:"issuer"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	ReusePolicy                  string         `json:"reuse_policy"`
	RefreshCookieName            string         `json:"refresh_cookie_name"`
	CookieDomain                 string         `json:"cookie_domain"`
	CookiePath                   string         `json:"cookie_path"`
	RefreshTransport             string         `json:"refresh_transport"`
	CORSAllowedOrigins           []string       `json:"cors_allowed_origins"`
	PasswordHashAlgorithm        string         `json:"password_hash_algorithm"`
	PasswordMinLength            int            `json:"password_min_length"`
	PasswordMaxLength            int            `json:"password_max_length"`
	BcryptCost                   int            `json:"bcrypt_cost"`
	LogBackend                   string         `json:"log_backend"`
	LogLevel                     string         `json:"log_level"`
	ShutdownTimeout              timex.Duration `json:"shutdown_timeout"`
}

// parseJSON loads the file named by -c/-config in args, if any, and copies
// its non-zero values into config.
func parseJSON(config *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	set(&config.Env, c.Env)
	set(&config.HTTPAddr, c.HTTPAddr)
	set(&config.GRPCHealthAddr, c.GRPCHealthAddr)
	set(&config.StorageDriver, c.StorageDriver)
	set(&config.DatabaseDSN, c.DatabaseDSN)
	set(&config.SQLitePath, c.SQLitePath)
	set(&config.TokenStore, c.TokenStore)
	set(&config.RedisAddr, c.RedisAddr)
	set(&config.RedisPassword, c.RedisPassword)
	set(&config.RedisDB, c.RedisDB)
	set(&config.AccessTokenSecret, c.AccessTokenSecret)
	set(&config.CookieSecret, c.CookieSecret)
	set(&config.Issuer, c.Issuer)
	set(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration.Duration)
	set(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration.Duration)
	set(&config.ReusePolicy, c.ReusePolicy)
	set(&config.RefreshCookieName, c.RefreshCookieName)
	set(&config.CookieDomain, c.CookieDomain)
	set(&config.CookiePath, c.CookiePath)
	set(&config.RefreshTransport, c.RefreshTransport)
	set(&config.PasswordHashAlgorithm, c.PasswordHashAlgorithm)
	set(&config.PasswordMinLength, c.PasswordMinLength)
	set(&config.PasswordMaxLength, c.PasswordMaxLength)
	set(&config.BcryptCost, c.BcryptCost)
	set(&config.LogBackend, c.LogBackend)
	set(&config.LogLevel, c.LogLevel)
	set(&config.ShutdownTimeout, c.ShutdownTimeout.Duration)
	if len(c.CORSAllowedOrigins) > 0 {
		config.CORSAllowedOrigins = c.CORSAllowedOrigins
	}

	return nil
}

func set[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
