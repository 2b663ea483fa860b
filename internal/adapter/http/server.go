package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/rescuecom-dashboard/internal/domain"
	"github.com/couchcryptid/rescuecom-dashboard/internal/pipeline"
	"github.com/couchcryptid/rescuecom-dashboard/internal/render"
	"github.com/couchcryptid/rescuecom-dashboard/internal/store"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Requests is the read and selection side of the request store.
type Requests interface {
	All() []domain.Request
	Get(id string) (domain.Request, error)
	Select(id string) error
	Selected() (domain.Request, bool)
}

// Pusher accepts one raw JSON payload into the store.
type Pusher interface {
	PushJSON(ctx context.Context, payload []byte, source string) (domain.Request, error)
}

// ActionPerformer records an operator action for a request.
type ActionPerformer interface {
	Perform(ctx context.Context, id string, kind domain.ActionKind) (domain.Action, error)
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Ready    sharedobs.ReadinessChecker
	Requests Requests
	Pusher   Pusher
	Actions  ActionPerformer
	Pages    *render.Pages
}

// Server exposes the dashboard pages, the JSON API and the ops endpoints.
type Server struct {
	httpServer *http.Server
	deps       Deps
	logger     *slog.Logger
}

// NewServer creates an HTTP server with all dashboard routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		deps:   deps,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(deps.Ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/requests", s.handleList)
	mux.HandleFunc("GET /api/requests/{id}", s.handleGet)
	mux.HandleFunc("GET /api/map", s.handleMap)
	mux.HandleFunc("POST /api/push", s.handlePush)
	mux.HandleFunc("POST /api/requests/{id}/contact", s.handleAction(domain.ActionContact))
	mux.HandleFunc("POST /api/requests/{id}/dispatch", s.handleAction(domain.ActionDispatch))

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /detail/{id}", s.handleDetail)
	mux.HandleFunc("GET /legal-info", s.handleLegal)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	key, order, err := render.ParseSort(r.URL.Query().Get("sort"), r.URL.Query().Get("order"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, render.Sort(s.deps.Requests.All(), key, order))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := s.deps.Requests.Get(id)
	if err != nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, render.Missing(id))
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, req)
}

func (s *Server) handleMap(w http.ResponseWriter, _ *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, render.Markers(s.deps.Requests.All()))
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, domain.MaxPushBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	req, err := s.deps.Pusher.PushJSON(r.Context(), body, pipeline.SourceHTTP)
	if err != nil {
		s.logger.Warn("push rejected", "error", err, "remote", r.RemoteAddr)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleAction(kind domain.ActionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		action, err := s.deps.Actions.Perform(r.Context(), id, kind)
		switch {
		case errors.Is(err, store.ErrNotFound):
			sharedobs.WriteJSON(w, http.StatusNotFound, render.Missing(id))
			return
		case err != nil:
			writeError(w, http.StatusBadGateway, err)
			return
		}

		// Forms on the dashboard post here; send the browser back to the panel.
		if isFormPost(r) {
			http.Redirect(w, r, render.SelectURL(id), http.StatusSeeOther)
			return
		}
		sharedobs.WriteJSON(w, http.StatusAccepted, action)
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if id := q.Get("select"); id != "" {
		if err := s.deps.Requests.Select(id); err != nil {
			s.logger.Debug("select ignored", "request_id", id, "error", err)
		}
	}

	key, order, err := render.ParseSort(q.Get("sort"), q.Get("order"))
	if err != nil {
		key, order = render.SortNone, render.Desc
	}
	opts := render.FeedOptions{Sort: key, Order: order}
	if q.Get("group") == "priority" {
		opts.Group = render.ByPriority()
	}

	page := render.DashboardPage{Sort: key, Order: order, Grouped: opts.Group != nil}
	if sel, ok := s.deps.Requests.Selected(); ok {
		detail := render.Detail(sel)
		page.Selected = &detail
		opts.Selected = sel.ID
	}
	page.Feed = render.Feed(s.deps.Requests.All(), opts)

	s.writePage(w, http.StatusOK, func(wr io.Writer) error { return s.deps.Pages.Dashboard(wr, page) })
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, ok := findByDeepLink(s.deps.Requests.All(), id)
	if !ok {
		s.writePage(w, http.StatusNotFound, func(wr io.Writer) error { return s.deps.Pages.NotFound(wr, render.Missing(id)) })
		return
	}
	page := render.DetailPage{Detail: render.Detail(req)}
	s.writePage(w, http.StatusOK, func(wr io.Writer) error { return s.deps.Pages.Detail(wr, page) })
}

func (s *Server) handleLegal(w http.ResponseWriter, r *http.Request) {
	view := render.Legal(r.URL.Query().Get("lang"))
	s.writePage(w, http.StatusOK, func(wr io.Writer) error { return s.deps.Pages.Legal(wr, view) })
}

// findByDeepLink resolves a /detail/<id> segment against either the deep
// link id or the canonical id.
func findByDeepLink(reqs []domain.Request, id string) (domain.Request, bool) {
	for _, r := range reqs {
		if r.ID == id || render.DeepLinkID(r) == id {
			return r, true
		}
	}
	return domain.Request{}, false
}

func (s *Server) writePage(w http.ResponseWriter, status int, fn func(io.Writer) error) {
	var buf strings.Builder
	if err := fn(&buf); err != nil {
		s.logger.Error("render page failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, buf.String()) //nolint:errcheck // client went away
}

func isFormPost(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(ct, "application/x-www-form-urlencoded") || strings.HasPrefix(ct, "multipart/form-data")
}

func writeError(w http.ResponseWriter, status int, err error) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}
