package streampoll

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if p.Port() != 8080 {
		t.Errorf("Port() = %v, want %v", p.Port(), 8080)
	}
	if p.PollingInterval() != 0 {
		t.Errorf("PollingInterval() = %v, want 0 (stored preference)", p.PollingInterval())
	}
	if len(p.Streams()) != 0 {
		t.Errorf("len(Streams()) = %v, want 0", len(p.Streams()))
	}
	if p.databaseName() != "memory" {
		t.Errorf("databaseName() = %q, want %q", p.databaseName(), "memory")
	}
}

func TestNew_DuplicateStreamNames(t *testing.T) {
	s1, _ := NewStream("Mine", []string{"author:octocat"})
	s2, _ := NewStream("Mine", []string{"assignee:octocat"})

	_, err := New(WithStreams(s1), WithStreams(s2))
	if err == nil {
		t.Fatal("New() expected error for duplicate stream names, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate stream name") {
		t.Errorf("New() error = %v, want error containing 'duplicate stream name'", err)
	}
}

func TestWithStreams(t *testing.T) {
	s1, _ := NewStream("One", []string{"is:open"})
	s2, _ := NewStream("Two", []string{"is:closed"})

	p, err := New(WithStreams(s1, s2))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	streams := p.Streams()
	if len(streams) != 2 {
		t.Fatalf("len(Streams()) = %v, want %v", len(streams), 2)
	}
	if streams[0].Name() != "One" || streams[1].Name() != "Two" {
		t.Errorf("Streams() names = [%s %s], want [One Two]", streams[0].Name(), streams[1].Name())
	}
}

func TestStreams_Immutability(t *testing.T) {
	s, _ := NewStream("One", []string{"is:open"})
	p, _ := New(WithStreams(s))

	streams := p.Streams()
	streams[0] = Stream{}

	if p.Streams()[0].Name() != "One" {
		t.Error("modifying Streams() result should not affect the poller")
	}
}

func TestWithPollingInterval(t *testing.T) {
	p, err := New(WithPollingInterval(30 * time.Second))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.PollingInterval() != 30*time.Second {
		t.Errorf("PollingInterval() = %v, want %v", p.PollingInterval(), 30*time.Second)
	}
}

func TestWithPollingInterval_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
	}{
		{"zero", 0},
		{"negative", -time.Second},
		{"below minimum", 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(WithPollingInterval(tt.interval)); err == nil {
				t.Errorf("New(WithPollingInterval(%v)) expected error, got nil", tt.interval)
			}
		})
	}
}

func TestWithPort(t *testing.T) {
	p, err := New(WithPort(9090))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Port() != 9090 {
		t.Errorf("Port() = %v, want %v", p.Port(), 9090)
	}
}

func TestWithPort_Invalid(t *testing.T) {
	for _, port := range []int{0, -1, 65536, 100000} {
		if _, err := New(WithPort(port)); err == nil {
			t.Errorf("New(WithPort(%d)) expected error, got nil", port)
		}
	}
}

func TestWithDatabase(t *testing.T) {
	p, err := New(WithDatabase("  streampoll.db "))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.databaseName() != "streampoll.db" {
		t.Errorf("databaseName() = %q, want %q", p.databaseName(), "streampoll.db")
	}

	if _, err := New(WithDatabase("  ")); err == nil {
		t.Error("New(WithDatabase(blank)) expected error, got nil")
	}
}

func TestWithGitHub(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		timeout time.Duration
		wantErr bool
	}{
		{"defaults", "", 0, false},
		{"enterprise", "https://github.example.com/api/v3", 10 * time.Second, false},
		{"no scheme", "github.example.com", 0, true},
		{"bad scheme", "ftp://github.example.com", 0, true},
		{"negative timeout", "", -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(WithGitHub(tt.baseURL, "token", tt.timeout))
			if (err != nil) != tt.wantErr {
				t.Errorf("New(WithGitHub(%q)) error = %v, wantErr %v", tt.baseURL, err, tt.wantErr)
			}
		})
	}
}

func TestWithAccount_InvalidSubscription(t *testing.T) {
	_, err := New(WithAccount(Account{
		Login:         "octocat",
		Subscriptions: []string{"octo-org/api#12", "not-a-ref"},
	}))
	if err == nil {
		t.Error("New(WithAccount()) expected error for malformed subscription, got nil")
	}
}

func TestWithLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p, err := New(WithLogger(logger))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.logger != logger {
		t.Error("logger should be set to the provided logger")
	}
}

func TestWithLogger_Nil(t *testing.T) {
	_, err := New(WithLogger(nil))
	if err == nil {
		t.Error("New(WithLogger(nil)) expected error, got nil")
	}
}

func TestWithLogger_DefaultsToSlogDefault(t *testing.T) {
	p, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.logger != slog.Default() {
		t.Error("logger should default to slog.Default()")
	}
}

func TestWithEventCallback_Nil(t *testing.T) {
	p, err := New(WithEventCallback(nil))
	if err != nil {
		t.Fatalf("New() error = %v, want nil (nil callback should be accepted)", err)
	}
	if len(p.eventCallbacks) != 0 {
		t.Errorf("len(eventCallbacks) = %d, want 0", len(p.eventCallbacks))
	}
}

func TestWithControl_Nil(t *testing.T) {
	if _, err := New(WithControl(nil)); err == nil {
		t.Error("New(WithControl(nil)) expected error, got nil")
	}
}
