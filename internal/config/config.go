// Package config loads Amebo's process configuration from the environment,
// the way the teacher's service.Config / common.SetConfigFromEnvVars do.
package config

import (
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Engine selects which Store backend is active.
type Engine string

const (
	EngineEmbedded  Engine = "embedded"
	EngineNetworked Engine = "networked"
)

// Config is the top-level configuration for the amebo process.
type Config struct {
	EnvName  string `env:"ENV_NAME"`
	LogLevel string `env:"LOG_LEVEL"`

	ServerAddress string `env:"SERVER_ADDRESS"`

	Engine Engine `env:"AMEBO_ENGINE"`
	DSN    string `env:"AMEBO_DSN"`
	// SchemaName qualifies every table reference for the networked backend
	// (the embedded backend always uses "").
	SchemaName string `env:"AMEBO_SCHEMA"`

	EnvelopeSize          int64 `env:"ENVELOPE_SIZE"`
	RestWhen              int64 `env:"REST_WHEN"`
	IdleSeconds           int64 `env:"IDLE_SECONDS"`
	RequestTimeoutSeconds int64 `env:"REQUEST_TIMEOUT_SECONDS"`

	Secret string `env:"AMEBO_SECRET"`

	AdminUsername string `env:"AMEBO_USERNAME"`
	AdminPassword string `env:"AMEBO_PASSWORD"`

	MaxPagination int64 `env:"AMEBO_MAX_PAGINATION"`
}

// defaults mirrors spec.md §6: envelope size defaults to 256, etc.
func defaults() Config {
	return Config{
		EnvName:               "local",
		LogLevel:              "info",
		ServerAddress:         ":3000",
		Engine:                EngineEmbedded,
		DSN:                   "amebo.db",
		SchemaName:            "amebo",
		EnvelopeSize:          256,
		RestWhen:              32,
		IdleSeconds:           2,
		RequestTimeoutSeconds: 10,
		MaxPagination:         100,
	}
}

// New loads configuration from the environment. When ENV_NAME is "local" (or
// unset) it first loads a .env file from the working directory, matching the
// teacher's InitLocalEnvConfig behavior; a missing .env file is not an error.
func New() (*Config, error) {
	envName := os.Getenv("ENV_NAME")
	if envName == "" || envName == "local" {
		_ = godotenv.Load()
	}

	cfg := defaults()
	if err := setFromEnvVars(&cfg); err != nil {
		return nil, err
	}

	if cfg.Secret == "" {
		cfg.Secret = developmentSecret()
	}

	return &cfg, nil
}

// setFromEnvVars overlays environment variables onto an already-defaulted
// Config, skipping any variable that is unset so defaults survive.
func setFromEnvVars(cfg *Config) error {
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		tag, ok := field.Tag.Lookup("env")
		if !ok {
			continue
		}

		raw, present := os.LookupEnv(tag)
		if !present || strings.TrimSpace(raw) == "" {
			continue
		}

		fv := v.Field(i)

		switch fv.Kind() {
		case reflect.Int64, reflect.Int:
			parsed, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return err
			}

			fv.SetInt(parsed)
		case reflect.Bool:
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				return err
			}

			fv.SetBool(parsed)
		default:
			fv.SetString(raw)
		}
	}

	return nil
}

// developmentSecret derives a deterministic signing secret from host
// identity, per spec.md §4.3, used only when AMEBO_SECRET is unset. It is
// stable across restarts on the same host but is not meant for production.
func developmentSecret() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "amebo-dev"
	}

	return "amebo-dev-secret::" + host
}
