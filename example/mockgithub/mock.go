// Package mockgithub serves a fake GitHub issue API for the examples.
//
// Every distinct search query grows its own list of issues: a new issue
// appears every 20-60 seconds. Searches honour the "updated:>=" qualifier
// the poller appends, so only issues created since the last poll come back.
package mockgithub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

const updatedQualifier = "updated:>="

type issue struct {
	ID            int64     `json:"id"`
	Number        int       `json:"number"`
	Title         string    `json:"title"`
	HTMLURL       string    `json:"html_url"`
	State         string    `json:"state"`
	UpdatedAt     time.Time `json:"updated_at"`
	RepositoryURL string    `json:"repository_url"`
}

// queryState tracks the issues of one search query and when the next one
// appears.
type queryState struct {
	issues    []issue
	nextNewAt time.Time
}

type server struct {
	mu      sync.Mutex
	queries map[string]*queryState
	nextID  int64
	logger  *slog.Logger
}

// Handler returns the mock API. Call it once per listener.
func Handler(logger *slog.Logger) http.Handler {
	s := &server{
		queries: make(map[string]*queryState),
		nextID:  1000,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Get("/search/issues", s.handleSearch)
	r.Get("/repos/{owner}/{name}/issues/{number}", s.handleIssue)
	return r
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query, since := splitUpdated(r.URL.Query().Get("q"))

	// simulate small latency variance
	time.Sleep(time.Duration(50+rand.Intn(150)) * time.Millisecond)

	s.mu.Lock()
	state := s.advance(query)
	items := make([]issue, 0, len(state.issues))
	for _, is := range state.issues {
		if !is.UpdatedAt.Before(since) {
			items = append(items, is)
		}
	}
	s.mu.Unlock()

	writeJSON(w, map[string]any{
		"total_count": len(items),
		"items":       items,
	})
}

func (s *server) handleIssue(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]string{"message": "Not Found"})
		return
	}
	repo := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "name")

	writeJSON(w, issue{
		ID:            int64(number),
		Number:        number,
		Title:         fmt.Sprintf("Subscribed issue %s#%d", repo, number),
		HTMLURL:       fmt.Sprintf("https://github.com/%s/issues/%d", repo, number),
		State:         "open",
		UpdatedAt:     time.Now().UTC().Truncate(time.Minute),
		RepositoryURL: "https://api.github.com/repos/" + repo,
	})
}

// advance returns the state of query, adding an issue when one is due.
// Callers must hold s.mu.
func (s *server) advance(query string) *queryState {
	state, ok := s.queries[query]
	if !ok {
		state = &queryState{}
		s.queries[query] = state
	}
	if !time.Now().Before(state.nextNewAt) {
		s.nextID++
		n := len(state.issues) + 1
		state.issues = append(state.issues, issue{
			ID:            s.nextID,
			Number:        n,
			Title:         fmt.Sprintf("Issue %d for %q", n, query),
			HTMLURL:       fmt.Sprintf("https://github.com/octo-org/mock/issues/%d", n),
			State:         "open",
			UpdatedAt:     time.Now().UTC(),
			RepositoryURL: "https://api.github.com/repos/octo-org/mock",
		})
		state.nextNewAt = time.Now().Add(time.Duration(20+rand.Intn(41)) * time.Second)
		s.logger.Info("new mock issue", "query", query, "number", n)
	}
	return state
}

// splitUpdated removes the "updated:>=" qualifier from q and returns it as
// a time. A missing or malformed qualifier yields the zero time.
func splitUpdated(q string) (string, time.Time) {
	var (
		rest  []string
		since time.Time
	)
	for _, field := range strings.Fields(q) {
		if v, ok := strings.CutPrefix(field, updatedQualifier); ok {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				since = t
			}
			continue
		}
		rest = append(rest, field)
	}
	return strings.Join(rest, " "), since
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
