// Package config reads the tracker settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"ipotracker/internal/adapters/github"
	"ipotracker/internal/service"
)

// Config holds every setting of the CLI and the HTTP API.
type Config struct {
	// GitHub
	Token          string // GITHUB_TOKEN, never logged
	Repository     string // owner/repo
	APIURL         string
	EventType      string
	ArtifactPrefix string
	HTTPTimeout    time.Duration

	// Polling
	PollInterval       time.Duration
	PollTimeout        time.Duration // 0 disables the ceiling
	MaxTransportErrors int

	// Server
	ListenAddr string
	GinMode    string
}

// Load reads files into the environment, without overriding variables
// that are already set, and builds a Config from it. Without files the
// optional .env.local and .env of the working directory are used.
func Load(files ...string) (*Config, error) {
	if len(files) > 0 {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	} else {
		for _, f := range []string{".env.local", ".env"} {
			_ = godotenv.Load(f)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config using getenv for lookups.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}
	cfg := &Config{
		Token:          e.str("GITHUB_TOKEN", ""),
		Repository:     e.str("GITHUB_REPOSITORY", ""),
		APIURL:         e.str("GITHUB_API_URL", github.DefaultBaseURL),
		EventType:      e.str("IPO_EVENT_TYPE", github.DefaultEventType),
		ArtifactPrefix: e.str("IPO_ARTIFACT_PREFIX", github.DefaultArtifactPrefix),
		HTTPTimeout:    e.duration("IPO_HTTP_TIMEOUT", 60*time.Second),

		PollInterval:       e.duration("IPO_POLL_INTERVAL", service.DefaultPollInterval),
		PollTimeout:        e.duration("IPO_POLL_TIMEOUT", service.DefaultTimeout),
		MaxTransportErrors: e.int("IPO_MAX_TRANSPORT_ERRORS", service.DefaultMaxTransportErrors),

		ListenAddr: e.str("IPO_LISTEN_ADDR", ":8080"),
		GinMode:    e.str("GIN_MODE", "release"),
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the polling settings. Missing GitHub credentials are not
// an error here: the adapters report them on use, so the server can still
// start and answer with a configuration error.
func (c *Config) Validate() error {
	var errs []error
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("IPO_POLL_INTERVAL must be positive, got %s", c.PollInterval))
	}
	if c.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("IPO_POLL_TIMEOUT must not be negative, got %s", c.PollTimeout))
	}
	if c.MaxTransportErrors < 1 {
		errs = append(errs, fmt.Errorf("IPO_MAX_TRANSPORT_ERRORS must be at least 1, got %d", c.MaxTransportErrors))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("IPO_HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	switch c.GinMode {
	case "debug", "release", "test":
	default:
		errs = append(errs, fmt.Errorf("GIN_MODE must be debug, release or test, got %q", c.GinMode))
	}
	return errors.Join(errs...)
}

// GitHub returns the settings of the GitHub adapter.
func (c *Config) GitHub() github.Config {
	return github.Config{
		Token:          c.Token,
		Repository:     c.Repository,
		BaseURL:        c.APIURL,
		EventType:      c.EventType,
		ArtifactPrefix: c.ArtifactPrefix,
		Timeout:        c.HTTPTimeout,
	}
}

// Orchestrator returns the polling options.
func (c *Config) Orchestrator() service.Options {
	return service.Options{
		PollInterval:       c.PollInterval,
		Timeout:            c.PollTimeout,
		MaxTransportErrors: c.MaxTransportErrors,
	}
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := e.getenv(key); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
