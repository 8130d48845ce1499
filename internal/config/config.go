// Package config reads process settings from the environment and project
// definitions from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort         = "5050"
	DefaultCacheTTL     = 30 * time.Second
	DefaultProjectsFile = "projects.yaml"
)

// Config holds everything the server and the CLI need.
type Config struct {
	DatabaseURL string
	Port        string

	// RedisURL enables the shared response cache. Empty means in-process only.
	RedisURL string
	CacheTTL time.Duration

	// RateLimitQPS of zero disables rate limiting.
	RateLimitQPS   float64
	RateLimitBurst int

	// WebhookSecret signs import hooks. Empty disables them.
	WebhookSecret string

	ProjectsFile string
	Projects     Projects
}

// LoadFromEnv loads configuration from environment variables.
//
// Environment variables:
//   - DATABASE_URL: PostgreSQL connection string
//   - PORT: listen port (default: 5050)
//   - REDIS_URL: redis://host:port/db for the shared response cache
//   - CACHE_TTL_S: response cache lifetime in seconds (default: 30)
//   - RATE_LIMIT_QPS: requests per second per client, 0 disables (default: 0)
//   - RATE_LIMIT_BURST: burst size (default: twice the rate)
//   - WEBHOOK_SECRET: HMAC secret of the import hook
//   - POWERMAP_PROJECTS: project file (default: projects.yaml)
//
// A missing default project file yields no projects. A project file named
// explicitly must exist.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Port:         strings.TrimSpace(os.Getenv("PORT")),
		RedisURL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		CacheTTL:     DefaultCacheTTL,
		ProjectsFile: strings.TrimSpace(os.Getenv("POWERMAP_PROJECTS")),

		WebhookSecret: os.Getenv("WEBHOOK_SECRET"),
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if s := os.Getenv("CACHE_TTL_S"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("CACHE_TTL_S: invalid value %q", s)
		}
		cfg.CacheTTL = time.Duration(n) * time.Second
	}
	if s := os.Getenv("RATE_LIMIT_QPS"); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f < 0 {
			return cfg, fmt.Errorf("RATE_LIMIT_QPS: invalid value %q", s)
		}
		cfg.RateLimitQPS = f
	}
	cfg.RateLimitBurst = int(2 * cfg.RateLimitQPS)
	if s := os.Getenv("RATE_LIMIT_BURST"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("RATE_LIMIT_BURST: invalid value %q", s)
		}
		cfg.RateLimitBurst = n
	}

	explicit := cfg.ProjectsFile != ""
	if !explicit {
		cfg.ProjectsFile = DefaultProjectsFile
	}
	projects, err := LoadProjects(cfg.ProjectsFile)
	switch {
	case err == nil:
		cfg.Projects = projects
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg.Projects = Projects{}
	default:
		return cfg, err
	}
	return cfg, nil
}

// Validate checks what the HTTP server needs.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return c.Projects.Validate()
}
