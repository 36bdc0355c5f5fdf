// Package httpdebug exposes the client's in-memory state over a small
// HTTP surface for diagnostics: bucket contents, the selected task,
// the navigation state and active toasts, plus health and metrics.
package httpdebug

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/starbridge/internal/navigation"
	"github.com/antoniostano/starbridge/internal/notify"
	"github.com/antoniostano/starbridge/internal/observability"
	"github.com/antoniostano/starbridge/internal/tasks"
)

type Server struct {
	store    *tasks.Store
	nav      *navigation.Binding
	notifier *notify.Center
}

func New(store *tasks.Store, nav *navigation.Binding, notifier *notify.Center) *Server {
	return &Server{store: store, nav: nav, notifier: notifier}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/tasks/buckets", s.handleBuckets)
	r.Get("/v1/tasks/selected", s.handleSelected)
	r.Get("/v1/navigation", s.handleNavigation)
	r.Get("/v1/notifications", s.handleNotifications)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

type bucketView struct {
	Tasks []tasks.Task `json:"tasks"`
	Count int          `json:"count"`
	Pages int          `json:"pages"`
}

func (s *Server) handleBuckets(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]bucketView)
	for status, bucket := range s.store.Buckets() {
		out[string(status)] = bucketView{
			Tasks: bucket.Tasks,
			Count: bucket.Count,
			Pages: s.store.TotalPages(status),
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"page":      s.store.Page(),
		"page_size": s.store.PageSize(),
		"buckets":   out,
	})
}

func (s *Server) handleSelected(w http.ResponseWriter, _ *http.Request) {
	selected, ok := s.store.Selected()
	if !ok {
		respondError(w, http.StatusNotFound, "no_selection", "no task selected")
		return
	}
	respondJSON(w, http.StatusOK, selected)
}

func (s *Server) handleNavigation(w http.ResponseWriter, _ *http.Request) {
	state := s.nav.Current()
	respondJSON(w, http.StatusOK, map[string]any{
		"task":   state.TaskID,
		"group":  state.Group,
		"page":   state.Page,
		"create": state.Create,
		"query":  s.nav.Query().Encode(),
	})
}

func (s *Server) handleNotifications(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": s.notifier.Active(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
