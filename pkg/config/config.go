// pkg/config/config.go
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Registry store (central Postgres mapping tenant -> database)
	RegistryURL string

	// Identity provider (JWT / JWKS)
	Issuer   string
	Audience string
	JWKSURL  string
	JWKSTTL  time.Duration
	AuthSkew time.Duration

	// Turso platform API (tenant database provisioning)
	TursoAPIURL   string
	TursoAPIToken string
	TursoOrg      string
	TursoGroup    string

	// Optional Redis cache in front of registry lookups
	RedisURL string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:           env("CRONHUB_ENV", "dev"),
		HTTPAddr:      env("CRONHUB_HTTP_ADDR", ":8080"),
		RegistryURL:   env("REGISTRY_DATABASE_URL", ""),
		Issuer:        env("AUTH_ISSUER", ""),
		Audience:      env("AUTH_AUDIENCE", "authenticated"),
		JWKSURL:       env("AUTH_JWKS_URL", ""),
		JWKSTTL:       envDur("AUTH_JWKS_TTL_SEC", 900) * time.Second,
		AuthSkew:      envDur("AUTH_CLOCK_SKEW_SEC", 60) * time.Second,
		TursoAPIURL:   env("TURSO_API_URL", "https://api.turso.tech"),
		TursoAPIToken: env("TURSO_API_TOKEN", ""),
		TursoOrg:      env("TURSO_ORG", ""),
		TursoGroup:    env("TURSO_GROUP", "default"),
		RedisURL:      env("REDIS_URL", ""),
	}
	if cfg.JWKSURL == "" && cfg.Issuer != "" {
		cfg.JWKSURL = strings.TrimRight(cfg.Issuer, "/") + "/.well-known/jwks.json"
	}
	return cfg
}

// Validate reports every missing required value at once so operators
// see the full list on first boot instead of one failure per restart.
func (c Config) Validate() error {
	var missing []string
	if c.RegistryURL == "" {
		missing = append(missing, "REGISTRY_DATABASE_URL")
	}
	if c.Issuer == "" {
		missing = append(missing, "AUTH_ISSUER")
	}
	if c.JWKSURL == "" {
		missing = append(missing, "AUTH_JWKS_URL")
	}
	if c.TursoAPIToken == "" {
		missing = append(missing, "TURSO_API_TOKEN")
	}
	if c.TursoOrg == "" {
		missing = append(missing, "TURSO_ORG")
	}
	if len(missing) > 0 {
		return errors.New("missing required config: " + strings.Join(missing, ", "))
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
	}
	return time.Duration(def)
}
