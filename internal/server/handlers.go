package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jpalmerr/streampoll/internal/poller"
	"github.com/jpalmerr/streampoll/internal/store"
	"github.com/jpalmerr/streampoll/internal/stream"
)

type queueResponse struct {
	State poller.State      `json:"state"`
	Tasks []poller.TaskInfo `json:"tasks"`
}

type createStreamRequest struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Queries []string `json:"queries"`
	Enabled *bool    `json:"enabled"`
}

type updateStreamRequest struct {
	Name    *string   `json:"name"`
	Queries *[]string `json:"queries"`
	Enabled *bool     `json:"enabled"`
}

type preferencesBody struct {
	PollingInterval string `json:"polling_interval"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, queueResponse{
		State: s.sched.State(),
		Tasks: s.sched.Snapshot(),
	})
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	streams, err := s.store.GetAllStreams(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, streams)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.streamID(w, r)
	if !ok {
		return
	}
	def, err := s.store.GetStream(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	var req createStreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	kind, err := store.ParseKind(req.Kind)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("name is required"))
		return
	}

	def := store.Stream{
		Name:    name,
		Kind:    kind,
		Enabled: req.Enabled == nil || *req.Enabled,
		Queries: cleanQueries(req.Queries),
	}
	id, err := s.store.CreateStream(r.Context(), def)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	def.ID = id

	if def.Enabled {
		s.refresh(w, r, id)
	}
	s.writeJSON(w, http.StatusCreated, def)
}

func (s *Server) handleUpdateStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.streamID(w, r)
	if !ok {
		return
	}

	var req updateStreamRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	def, err := s.store.GetStream(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if def.Kind == store.KindSystem && (req.Name != nil || req.Queries != nil) {
		s.writeError(w, http.StatusUnprocessableEntity, errors.New("system streams can only be enabled or disabled"))
		return
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			s.writeError(w, http.StatusBadRequest, errors.New("name cannot be empty"))
			return
		}
		def.Name = name
	}
	if req.Queries != nil {
		def.Queries = cleanQueries(*req.Queries)
	}
	if req.Enabled != nil {
		def.Enabled = *req.Enabled
	}

	if err := s.store.UpdateStream(r.Context(), def); err != nil {
		s.writeStoreError(w, err)
		return
	}

	if def.Enabled {
		s.refresh(w, r, id)
	} else {
		s.sched.DeleteStream(id)
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.streamID(w, r)
	if !ok {
		return
	}
	if id < 0 {
		s.writeError(w, http.StatusUnprocessableEntity, errors.New("system streams cannot be deleted"))
		return
	}
	if err := s.store.DeleteStream(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	s.sched.DeleteStream(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshStream(w http.ResponseWriter, r *http.Request) {
	id, ok := s.streamID(w, r)
	if !ok {
		return
	}
	if err := s.sched.RefreshStream(r.Context(), id); err != nil {
		s.writeSchedulerError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStreamQueries(w http.ResponseWriter, r *http.Request) {
	id, ok := s.streamID(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"queries": s.sched.QueriesFor(id)})
}

func (s *Server) handleStreamIssues(w http.ResponseWriter, r *http.Request) {
	id, ok := s.streamID(w, r)
	if !ok {
		return
	}

	limit := defaultIssueLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = min(n, maxIssueLimit)
	}

	if _, err := s.store.GetStream(r.Context(), id); err != nil {
		s.writeStoreError(w, err)
		return
	}
	issues, err := s.store.ListIssues(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, issues)
}

// handleControl forwards sig to the control listener. It gives up when the
// request is cancelled before the listener accepts the signal.
func (s *Server) handleControl(sig poller.Signal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case s.control <- sig:
			w.WriteHeader(http.StatusAccepted)
		case <-r.Context().Done():
			s.writeError(w, http.StatusServiceUnavailable, errors.New("control listener not available"))
		}
	}
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.PollingInterval(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, preferencesBody{PollingInterval: d.String()})
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	var req preferencesBody
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	d, err := time.ParseDuration(req.PollingInterval)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid polling_interval: %w", err))
		return
	}
	if err := s.store.SetPollingInterval(r.Context(), d); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	s.writeJSON(w, http.StatusOK, preferencesBody{PollingInterval: d.String()})
}

// refresh reschedules a stream after an edit. Failures are logged; the edit
// itself already succeeded.
func (s *Server) refresh(_ http.ResponseWriter, r *http.Request, id int64) {
	if err := s.sched.RefreshStream(r.Context(), id); err != nil {
		s.logger.Warn("failed to schedule stream after edit", "stream_id", id, "error", err)
	}
}

func cleanQueries(in []string) []string {
	out := make([]string, 0, len(in))
	for _, q := range in {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func (s *Server) streamID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid stream id %q", raw))
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) writeSchedulerError(w http.ResponseWriter, err error) {
	var (
		le *poller.LookupError
		ce *stream.ConfigurationError
	)
	switch {
	case errors.As(err, &le):
		s.writeError(w, http.StatusNotFound, err)
	case errors.As(err, &ce):
		s.writeError(w, http.StatusUnprocessableEntity, err)
	default:
		s.writeError(w, http.StatusInternalServerError, err)
	}
}
