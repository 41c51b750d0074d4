package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jpalmerr/streampoll/internal/events"
	"github.com/jpalmerr/streampoll/internal/poller"
	"github.com/jpalmerr/streampoll/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultIssueLimit = 50
	maxIssueLimit     = 500

	maxRequestBodySize = 1 << 20 // 1MB
)

// Scheduler is the part of the poller the control API drives.
// *poller.Controller satisfies it.
type Scheduler interface {
	RefreshStream(ctx context.Context, id int64) error
	DeleteStream(id int64) bool
	QueriesFor(id int64) []string
	Snapshot() []poller.TaskInfo
	State() poller.State
}

// Broker hands out event subscriptions. *events.Bus satisfies it.
type Broker interface {
	Subscribe() <-chan events.Event
	Unsubscribe(ch <-chan events.Event)
}

// Server serves the control API and the event stream.
//
// Routes:
//   - GET /api/queue: the current schedule
//   - /api/streams: list, create, update, delete and refresh streams
//   - /api/control/{stop,restart}: send a control signal to the poller
//   - /api/preferences: read or change the polling interval
//   - GET /api/sse: Server-Sent Events relayed from the event bus
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	store      store.Store
	sched      Scheduler
	bus        Broker
	control    chan<- poller.Signal
	port       int
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: stream, issue and preference storage
//   - sched: the poller's controller
//   - bus: event source for /api/sse
//   - control: channel the stop and restart endpoints send on
//   - port: TCP port to listen on
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, sched Scheduler, bus Broker, control chan<- poller.Signal, port int, logger *slog.Logger) *Server {
	s := &Server{
		store:   st,
		sched:   sched,
		bus:     bus,
		control: control,
		port:    port,
		router:  chi.NewRouter(),
		logger:  logger.With("component", "server"),
	}
	s.routes()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(loggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/queue", s.handleQueue)

		r.Route("/streams", func(r chi.Router) {
			r.Get("/", s.handleListStreams)
			r.Post("/", s.handleCreateStream)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetStream)
				r.Patch("/", s.handleUpdateStream)
				r.Delete("/", s.handleDeleteStream)
				r.Post("/refresh", s.handleRefreshStream)
				r.Get("/queries", s.handleStreamQueries)
				r.Get("/issues", s.handleStreamIssues)
			})
		})

		r.Route("/control", func(r chi.Router) {
			r.Post("/stop", s.handleControl(poller.SignalStopAll))
			r.Post("/restart", s.handleControl(poller.SignalRestartAll))
		})

		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)

		r.Get("/sse", s.handleSSE)
	})
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("control api listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}
