// Package config loads process configuration from the environment.
// Values are read once at startup and never hot-reloaded.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds everything the api binary needs to start.
type Config struct {
	ListenAddr string

	// Token signing. The key is process-wide and immutable for the
	// process lifetime; rotation is a known limitation.
	SignerKey    string
	Issuer       string
	TokenTTL     time.Duration
	RefreshGrace time.Duration
	StoreTimeout time.Duration

	// Revocation denylist backend: PostgreSQL by default, Redis when
	// RedisAddr is set (useful when several instances share the list).
	PGDSN     string
	RedisAddr string

	// How often the background sweep purges dead denylist records.
	// Zero disables the sweep; lazy purge on revocation still runs.
	PurgeInterval time.Duration

	// Bootstrap credentials for the seeded admin account.
	AdminUsername string
	AdminPassword string
}

const (
	defaultListenAddr   = ":8080"
	defaultIssuer       = "identra"
	defaultTokenTTL     = time.Hour
	defaultRefreshGrace = 72 * time.Hour
	defaultStoreTimeout = 5 * time.Second
	defaultPurgeEvery   = 10 * time.Minute
	defaultAdminUser    = "admin"
	defaultAdminPass    = "admin"
)

// DefaultAdminPassword reports whether the bootstrap password was left
// at its insecure default.
func (c Config) DefaultAdminPassword() bool {
	return c.AdminPassword == defaultAdminPass
}

// PurgeEnabled reports whether the background denylist sweep should run.
func (c Config) PurgeEnabled() bool {
	return c.PurgeInterval > 0
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    envOr("IDENTRA_LISTEN_ADDR", defaultListenAddr),
		SignerKey:     strings.TrimSpace(os.Getenv("IDENTRA_SIGNER_KEY")),
		Issuer:        envOr("IDENTRA_ISSUER", defaultIssuer),
		PGDSN:         strings.TrimSpace(os.Getenv("IDENTRA_PG_DSN")),
		RedisAddr:     strings.TrimSpace(os.Getenv("IDENTRA_REDIS_ADDR")),
		AdminUsername: envOr("IDENTRA_ADMIN_USERNAME", defaultAdminUser),
		AdminPassword: envOr("IDENTRA_ADMIN_PASSWORD", defaultAdminPass),
	}
	if cfg.SignerKey == "" {
		return Config{}, errors.New("IDENTRA_SIGNER_KEY is required")
	}
	var err error
	if cfg.TokenTTL, err = envDuration("IDENTRA_TOKEN_TTL", defaultTokenTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshGrace, err = envDuration("IDENTRA_REFRESH_GRACE", defaultRefreshGrace); err != nil {
		return Config{}, err
	}
	if cfg.StoreTimeout, err = envDuration("IDENTRA_STORE_TIMEOUT", defaultStoreTimeout); err != nil {
		return Config{}, err
	}
	if cfg.PurgeInterval, err = envDuration("IDENTRA_PURGE_INTERVAL", defaultPurgeEvery); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}
