// Package streampoll polls GitHub issue searches for a set of streams and
// stores what it finds.
//
// Streams are polled one at a time from a priority queue. After a stream is
// polled it goes to the back of its tier and the poller sleeps for the
// polling interval, so every stream is visited round-robin. A stream that
// was just created or edited jumps ahead of the others once.
//
// # Quick Start
//
//	mine, _ := streampoll.NewStream("Mine", []string{"is:open involves:octocat"})
//	p, _ := streampoll.New(
//	    streampoll.WithDatabase("streampoll.db"),
//	    streampoll.WithGitHub("", os.Getenv("GITHUB_TOKEN"), 0),
//	    streampoll.WithStreams(mine),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	p.Start(ctx) // blocks until context is cancelled
//
// # Streams
//
// Besides user and project streams there are three built-in streams whose
// queries are derived from the [Account]: Team, Watching and Subscription.
// They are always scheduled ahead of user streams and can be disabled but
// not deleted.
//
// # Control
//
// The schedule is changed through the HTTP control API under /api, or by
// sending a [Signal] on the channel given to [WithControl]. Events such as
// new issues are delivered to [WithEventCallback] callbacks and streamed to
// clients at /api/sse.
//
// # Architecture
//
//   - internal/schedule: the priority queue of stream tasks
//   - internal/poller: the polling loop and the controller that edits the queue
//   - internal/stream: stream units and the factory that builds them
//   - internal/github: the GitHub REST transport
//   - internal/store: in-memory and SQLite persistence
//   - internal/events: the notification bus
//   - internal/server: the HTTP control API with Server-Sent Events
//
// The internal packages are not part of the public API and may change
// without notice.
package streampoll
