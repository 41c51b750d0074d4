package config

import (
	"fmt"

	"github.com/jpalmerr/streampoll"
	"github.com/jpalmerr/streampoll/internal/store"
)

// BuildStreams converts the configured streams into SDK Stream objects, in
// file order.
func BuildStreams(cfg *Config) ([]streampoll.Stream, error) {
	streams := make([]streampoll.Stream, 0, len(cfg.Streams))
	for i, sc := range cfg.Streams {
		s, err := buildStream(sc)
		if err != nil {
			return nil, fmt.Errorf("streams[%d] (%s): %w", i, sc.Name, err)
		}
		streams = append(streams, s)
	}
	return streams, nil
}

// buildStream converts a single StreamConfig to an SDK Stream.
func buildStream(sc StreamConfig) (streampoll.Stream, error) {
	kind, err := store.ParseKind(sc.Kind)
	if err != nil {
		return streampoll.Stream{}, err
	}

	opts := []streampoll.StreamOption{
		streampoll.WithEnabled(sc.IsEnabled()),
	}
	if kind == store.KindProject {
		opts = append(opts, streampoll.WithKind(streampoll.KindProject))
	}

	return streampoll.NewStream(sc.Name, sc.Queries, opts...)
}

// BuildAccount converts the github section into the SDK Account.
func BuildAccount(cfg *Config) streampoll.Account {
	return streampoll.Account{
		Login:         cfg.GitHub.Login,
		Teams:         append([]string(nil), cfg.GitHub.Teams...),
		Watching:      append([]string(nil), cfg.GitHub.Watching...),
		Subscriptions: append([]string(nil), cfg.GitHub.Subscriptions...),
	}
}

// BuildOptions converts parsed configuration into SDK options. Callers
// append their own logger and control options.
func BuildOptions(cfg *Config) ([]streampoll.Option, error) {
	streams, err := BuildStreams(cfg)
	if err != nil {
		return nil, err
	}

	opts := []streampoll.Option{
		streampoll.WithPort(cfg.Port),
		streampoll.WithGitHub(cfg.GitHub.BaseURL, cfg.GitHub.Token, cfg.GitHub.Timeout.Duration()),
		streampoll.WithAccount(BuildAccount(cfg)),
	}
	if cfg.Database != "" {
		opts = append(opts, streampoll.WithDatabase(cfg.Database))
	}
	if cfg.PollInterval != 0 {
		opts = append(opts, streampoll.WithPollingInterval(cfg.PollInterval.Duration()))
	}
	if len(streams) > 0 {
		opts = append(opts, streampoll.WithStreams(streams...))
	}
	return opts, nil
}
