package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/streampoll"
	"github.com/jpalmerr/streampoll/example/mockgithub"
)

func main() {
	// start the mock GitHub API (see mockgithub)
	go func() {
		if err := http.ListenAndServe(":9999", mockgithub.Handler(slog.Default())); err != nil {
			slog.Error("mock server error", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	mine, err := streampoll.NewStream("My open issues", []string{"is:open involves:octocat"})
	if err != nil {
		slog.Error("failed to create stream", "error", err)
		os.Exit(1)
	}
	reviews, _ := streampoll.NewStream("Review requests",
		[]string{"is:pr is:open review-requested:octocat"},
		streampoll.WithKind(streampoll.KindProject),
	)

	p, err := streampoll.New(
		streampoll.WithGitHub("http://localhost:9999", "", 5*time.Second),
		streampoll.WithAccount(streampoll.Account{
			Login:         "octocat",
			Teams:         []string{"octo-org/core"},
			Watching:      []string{"octo-org/api", "octo-org/web"},
			Subscriptions: []string{"octo-org/api#12"},
		}),
		streampoll.WithStreams(mine, reviews),
		streampoll.WithPollingInterval(2*time.Second),
		streampoll.WithPort(8080),
		streampoll.WithEventCallback(func(e streampoll.Event) {
			if e.Type == streampoll.EventNewIssues {
				fmt.Printf("  %s  %-16s +%d new\n", e.At.Format("15:04:05"), e.StreamName, e.NewIssues)
			}
		}),
	)
	if err != nil {
		slog.Error("failed to create poller", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  streampoll demo")
	fmt.Println()
	fmt.Println("  Schedule:  http://localhost:8080/api/queue")
	fmt.Println("  Events:    curl -N http://localhost:8080/api/sse")
	fmt.Println("  Refresh:   curl -X POST http://localhost:8080/api/streams/1/refresh")
	fmt.Println()
	fmt.Println("  Streams: Team, Watching, Subscription + 2 user streams")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		slog.Error("streampoll error", "error", err)
		os.Exit(1)
	}
}
