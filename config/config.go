// Package config provides YAML configuration parsing for streampoll.
//
// This package enables running streampoll as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	database: streampoll.db
//	poll_interval: 10s
//
//	github:
//	  token: ${GITHUB_TOKEN}
//	  login: octocat
//	  teams: [octo-org/core]
//	  watching: [octo-org/api]
//	  subscriptions: ["octo-org/api#12"]
//
//	streams:
//	  - name: My open issues
//	    kind: user
//	    queries: ["is:open involves:octocat"]
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/streampoll/internal/store"
	"github.com/jpalmerr/streampoll/internal/stream"
)

// minPollInterval is the minimum allowed polling interval. GitHub's search
// API is rate limited per minute.
const minPollInterval = 1 * time.Second

const defaultPort = 8080

// Config is the root configuration structure for streampoll.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP port of the control API. Defaults to 8080.
	Port int `yaml:"port"`

	// Database is the SQLite database path. Empty selects an in-memory
	// store. Supports environment variable substitution.
	Database string `yaml:"database"`

	// PollInterval is the pause between two stream polls. When set it
	// replaces the stored preference on every start; when empty the stored
	// preference (10s on a fresh store) is kept.
	PollInterval Duration `yaml:"poll_interval"`

	// GitHub configures the API and the account system streams derive
	// their queries from.
	GitHub GitHubConfig `yaml:"github"`

	// Streams are user and project streams seeded into the store. A stream
	// whose name is already stored is left untouched.
	Streams []StreamConfig `yaml:"streams"`
}

// GitHubConfig holds the API endpoint, credentials and account.
type GitHubConfig struct {
	// BaseURL is the REST API root. Defaults to https://api.github.com.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url"`

	// Token is sent as a bearer token. Supports environment variable
	// substitution.
	Token string `yaml:"token"`

	// Timeout is the per-request timeout. Defaults to 30s.
	Timeout Duration `yaml:"timeout"`

	// Login is the GitHub user name.
	Login string `yaml:"login"`

	// Teams are "org/team" slugs for the Team stream.
	Teams []string `yaml:"teams"`

	// Watching are "owner/name" repositories for the Watching stream.
	Watching []string `yaml:"watching"`

	// Subscriptions are "owner/name#number" references for the
	// Subscription stream.
	Subscriptions []string `yaml:"subscriptions"`
}

// StreamConfig defines a single user or project stream.
type StreamConfig struct {
	// Name is the display name. Names must be unique.
	Name string `yaml:"name"`

	// Kind is "user" (default) or "project".
	Kind string `yaml:"kind"`

	// Queries are GitHub issue search queries.
	Queries []string `yaml:"queries"`

	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether the stream is enabled, defaulting to true.
func (s StreamConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in the database path, the GitHub base
// URL and the token. Port defaults to 8080.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = defaultPort
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	if c.PollInterval != 0 && c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}

	expanded, err := expandEnvVars(c.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	c.Database = strings.TrimSpace(expanded)

	if err := c.GitHub.expandAndValidate(); err != nil {
		return err
	}

	seen := make(map[string]int, len(c.Streams))
	for i := range c.Streams {
		s := &c.Streams[i]

		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			return fmt.Errorf("streams[%d]: name is required", i)
		}
		if j, dup := seen[s.Name]; dup {
			return fmt.Errorf("streams[%d] (%s): duplicate name, first defined at streams[%d]", i, s.Name, j)
		}
		seen[s.Name] = i

		if _, err := store.ParseKind(s.Kind); err != nil {
			return fmt.Errorf("streams[%d] (%s): %w", i, s.Name, err)
		}

		for j, q := range s.Queries {
			if strings.TrimSpace(q) == "" {
				return fmt.Errorf("streams[%d] (%s): queries[%d] is empty", i, s.Name, j)
			}
		}
	}

	return nil
}

func (g *GitHubConfig) expandAndValidate() error {
	baseURL, err := expandEnvVars(g.BaseURL)
	if err != nil {
		return fmt.Errorf("github.base_url: %w", err)
	}
	g.BaseURL = baseURL

	if g.BaseURL != "" {
		parsedURL, err := url.Parse(g.BaseURL)
		if err != nil {
			return fmt.Errorf("github.base_url: invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("github.base_url: scheme must be http or https, got %q", parsedURL.Scheme)
		}
	}

	token, err := expandEnvVars(g.Token)
	if err != nil {
		return fmt.Errorf("github.token: %w", err)
	}
	g.Token = token

	if g.Timeout != 0 && g.Timeout.Duration() < time.Second {
		return fmt.Errorf("github.timeout must be at least 1s if specified, got %s", g.Timeout.Duration())
	}

	for i, team := range g.Teams {
		if !strings.Contains(team, "/") {
			return fmt.Errorf("github.teams[%d]: %q must be of the form org/team", i, team)
		}
	}
	for i, repo := range g.Watching {
		if strings.Count(repo, "/") != 1 {
			return fmt.Errorf("github.watching[%d]: %q must be of the form owner/name", i, repo)
		}
	}
	for i, ref := range g.Subscriptions {
		if _, err := stream.ParseIssueRef(ref); err != nil {
			return fmt.Errorf("github.subscriptions[%d]: %w", i, err)
		}
	}

	return nil
}
