package streampoll

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/streampoll/internal/store"
	"github.com/jpalmerr/streampoll/internal/stream"
)

// spConfig holds mutable state during Poller construction.
type spConfig struct {
	database        string
	port            int
	pollingInterval time.Duration
	baseURL         string
	token           string
	timeout         time.Duration
	account         Account
	streams         []Stream
	logger          *slog.Logger
	eventCallbacks  []func(Event)
	control         <-chan Signal
}

// Option is a function that configures a [Poller] instance during
// construction.
//
// Options return an error if validation fails. Built-in options:
// [WithDatabase], [WithPort], [WithPollingInterval], [WithGitHub],
// [WithAccount], [WithStreams], [WithLogger], [WithEventCallback] and
// [WithControl].
type Option func(*spConfig) error

// WithDatabase sets the path of the SQLite database holding stream
// definitions, issues and preferences.
//
// If not specified, an in-memory store is used and nothing survives a
// restart of the process.
//
// Example:
//
//	p, err := streampoll.New(
//	    streampoll.WithDatabase("streampoll.db"),
//	)
func WithDatabase(path string) Option {
	return func(cfg *spConfig) error {
		path = strings.TrimSpace(path)
		if path == "" {
			return errors.New("database path cannot be empty")
		}
		cfg.database = path
		return nil
	}
}

// WithPort sets the HTTP port of the control API. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *spConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithPollingInterval sets the pause between two stream polls.
//
// The interval is written to the store's preferences on start, replacing
// any value set through the control API. Without this option the stored
// preference (10 seconds on a fresh store) is kept.
//
// Returns an error if the duration is below one second.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *spConfig) error {
		if d < store.MinPollingInterval {
			return fmt.Errorf("polling interval must be at least %s", store.MinPollingInterval)
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithGitHub configures the GitHub API the streams search.
//
// An empty baseURL selects https://api.github.com, an empty token sends
// unauthenticated requests and a zero timeout selects 30 seconds.
//
// Example:
//
//	p, err := streampoll.New(
//	    streampoll.WithGitHub("", os.Getenv("GITHUB_TOKEN"), 10*time.Second),
//	)
func WithGitHub(baseURL, token string, timeout time.Duration) Option {
	return func(cfg *spConfig) error {
		if baseURL != "" {
			u, err := url.Parse(baseURL)
			if err != nil {
				return fmt.Errorf("invalid GitHub base URL: %w", err)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return errors.New("GitHub base URL must have a scheme (http:// or https://)")
			}
		}
		if timeout < 0 {
			return errors.New("GitHub timeout cannot be negative")
		}
		cfg.baseURL = baseURL
		cfg.token = token
		cfg.timeout = timeout
		return nil
	}
}

// WithAccount sets the identity the built-in streams derive their queries
// from.
//
// Returns an error if a subscription is not of the form "owner/name#number".
func WithAccount(a Account) Option {
	return func(cfg *spConfig) error {
		for _, ref := range a.Subscriptions {
			if _, err := stream.ParseIssueRef(ref); err != nil {
				return err
			}
		}
		cfg.account = a
		return nil
	}
}

// WithStreams adds user-defined streams that are seeded into the store on
// start. Can be called multiple times.
//
// Example:
//
//	mine, _ := streampoll.NewStream("Mine", []string{"is:open author:octocat"})
//	p, err := streampoll.New(streampoll.WithStreams(mine))
func WithStreams(streams ...Stream) Option {
	return func(cfg *spConfig) error {
		cfg.streams = append(cfg.streams, streams...)
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *spConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithEventCallback registers a function called for every [Event].
//
// Callbacks run on a single goroutine in registration order and must not
// block. Panics are recovered and logged. Events are dropped rather than
// queued when a callback falls behind.
//
// Example:
//
//	p, err := streampoll.New(
//	    streampoll.WithEventCallback(func(e streampoll.Event) {
//	        if e.Type == streampoll.EventNewIssues {
//	            log.Printf("%s: %d new issues", e.StreamName, e.NewIssues)
//	        }
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithEventCallback(cb func(Event)) Option {
	return func(cfg *spConfig) error {
		if cb == nil {
			return nil
		}
		cfg.eventCallbacks = append(cfg.eventCallbacks, cb)
		return nil
	}
}

// WithControl sets a channel of control signals, for example translated from
// OS signals. The channel is read until it is closed or Start returns.
//
// Returns an error if the channel is nil.
func WithControl(ch <-chan Signal) Option {
	return func(cfg *spConfig) error {
		if ch == nil {
			return errors.New("control channel cannot be nil")
		}
		cfg.control = ch
		return nil
	}
}
