package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/jpalmerr/streampoll"
)

func boolPtr(b bool) *bool {
	return &b
}

func TestBuildStreams(t *testing.T) {
	cfg := &Config{
		Streams: []StreamConfig{
			{Name: "Mine", Queries: []string{"is:open author:octocat"}},
			{Name: "Board", Kind: "project", Queries: []string{"project:octo-org/1"}, Enabled: boolPtr(false)},
		},
	}

	streams, err := BuildStreams(cfg)
	if err != nil {
		t.Fatalf("BuildStreams() error = %v", err)
	}
	if len(streams) != 2 {
		t.Fatalf("len(streams) = %d, want 2", len(streams))
	}

	mine := streams[0]
	if mine.Name() != "Mine" || mine.Kind() != streampoll.KindUser || !mine.Enabled() {
		t.Errorf("streams[0] = %s/%s enabled=%v, want Mine/user enabled", mine.Name(), mine.Kind(), mine.Enabled())
	}
	if !reflect.DeepEqual(mine.Queries(), []string{"is:open author:octocat"}) {
		t.Errorf("streams[0].Queries() = %v", mine.Queries())
	}

	board := streams[1]
	if board.Kind() != streampoll.KindProject {
		t.Errorf("streams[1].Kind() = %v, want %v", board.Kind(), streampoll.KindProject)
	}
	if board.Enabled() {
		t.Error("streams[1].Enabled() = true, want false")
	}
}

func TestBuildStreams_InvalidKind(t *testing.T) {
	cfg := &Config{
		Streams: []StreamConfig{{Name: "Mine", Kind: "library"}},
	}

	if _, err := BuildStreams(cfg); err == nil {
		t.Error("BuildStreams() expected error for unknown kind, got nil")
	}
}

func TestBuildStreams_EmptyConfig(t *testing.T) {
	streams, err := BuildStreams(&Config{})
	if err != nil {
		t.Fatalf("BuildStreams() error = %v", err)
	}
	if len(streams) != 0 {
		t.Errorf("len(streams) = %d, want 0", len(streams))
	}
}

func TestBuildAccount(t *testing.T) {
	cfg := &Config{
		GitHub: GitHubConfig{
			Login:         "octocat",
			Teams:         []string{"octo-org/core"},
			Watching:      []string{"octo-org/api"},
			Subscriptions: []string{"octo-org/api#12"},
		},
	}

	got := BuildAccount(cfg)
	want := streampoll.Account{
		Login:         "octocat",
		Teams:         []string{"octo-org/core"},
		Watching:      []string{"octo-org/api"},
		Subscriptions: []string{"octo-org/api#12"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("BuildAccount() = %+v, want %+v", got, want)
	}

	got.Teams[0] = "changed"
	if cfg.GitHub.Teams[0] != "octo-org/core" {
		t.Error("BuildAccount() should copy slices")
	}
}

func TestBuildOptions(t *testing.T) {
	cfg, err := Parse([]byte(`
port: 9191
database: streampoll.db
poll_interval: 20s
github:
  login: octocat
streams:
  - name: Mine
    queries: ["is:open"]
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	p, err := streampoll.New(opts...)
	if err != nil {
		t.Fatalf("streampoll.New() error = %v", err)
	}
	if p.Port() != 9191 {
		t.Errorf("Port() = %d, want 9191", p.Port())
	}
	if p.PollingInterval() != 20*time.Second {
		t.Errorf("PollingInterval() = %v, want 20s", p.PollingInterval())
	}
	if len(p.Streams()) != 1 || p.Streams()[0].Name() != "Mine" {
		t.Errorf("Streams() = %v, want [Mine]", p.Streams())
	}
}

func TestBuildOptions_KeepsStoredInterval(t *testing.T) {
	cfg, err := Parse([]byte(`port: 9192`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	opts, err := BuildOptions(cfg)
	if err != nil {
		t.Fatalf("BuildOptions() error = %v", err)
	}

	p, err := streampoll.New(opts...)
	if err != nil {
		t.Fatalf("streampoll.New() error = %v", err)
	}
	if p.PollingInterval() != 0 {
		t.Errorf("PollingInterval() = %v, want 0 when poll_interval is not set", p.PollingInterval())
	}
}
