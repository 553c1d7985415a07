// Package http exposes the workflow service as a JSON API with a
// server-sent event stream per workflow.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/mintline/internal/logging"
	"github.com/aretw0/mintline/internal/presentation/graph"
	"github.com/aretw0/mintline/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// WorkflowService is the part of mintline.Service the API drives.
type WorkflowService interface {
	Start(ctx context.Context, req domain.IssuanceRequest) (*domain.WorkflowState, error)
	Get(ctx context.Context, id string) (*domain.WorkflowState, error)
	List(ctx context.Context) ([]*domain.WorkflowState, error)
	SignAndSubmit(ctx context.Context, id string) (*domain.WorkflowState, error)
	Retry(ctx context.Context, id string) (*domain.WorkflowState, error)
	Reset(ctx context.Context, id string) (*domain.WorkflowState, error)
	Remove(ctx context.Context, id string) error
}

// Server serves the workflow API.
type Server struct {
	Service WorkflowService
	Streams *StreamManager

	logger  *slog.Logger
	metrics http.Handler
	ready   func(context.Context) error
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams serves GET /workflows/{id}/events from sm.
// sm.Hooks() must be registered on the service.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithReadiness makes GET /healthz report 503 while check fails.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) {
		s.ready = check
	}
}

// NewHandler creates the HTTP handler for svc.
func NewHandler(svc WorkflowService, opts ...Option) http.Handler {
	s := &Server{
		Service: svc,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.Health)
	r.Get("/graph", s.GetGraph)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", s.CreateWorkflow)
		r.Get("/", s.ListWorkflows)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetWorkflow)
			r.Delete("/", s.DeleteWorkflow)
			r.Post("/sign", s.control((WorkflowService).SignAndSubmit))
			r.Post("/retry", s.control((WorkflowService).Retry))
			r.Post("/reset", s.control((WorkflowService).Reset))
			r.Get("/events", s.SubscribeEvents)
			r.Get("/graph", s.GetGraph)
		})
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Debug("Request completed",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// CreateRequest is the body of POST /workflows. Tier, when set, overrides FeeBps.
type CreateRequest struct {
	Creator     string `json:"creator"`
	AssetCode   string `json:"assetCode"`
	DisplayName string `json:"displayName"`
	TotalSupply string `json:"totalSupply"`
	Description string `json:"description,omitempty"`
	FeeBps      *int   `json:"feeBps,omitempty"`
	Tier        string `json:"tier,omitempty"`
}

// IssuanceRequest normalizes the asset code and resolves the fee.
// Without a fee or tier the default tier applies.
func (c CreateRequest) IssuanceRequest() (domain.IssuanceRequest, error) {
	req := domain.IssuanceRequest{
		Creator:     c.Creator,
		AssetCode:   domain.NormalizeAssetCode(c.AssetCode),
		DisplayName: c.DisplayName,
		TotalSupply: c.TotalSupply,
		Description: c.Description,
		FeeBps:      domain.DefaultTier.Bps(),
	}
	switch {
	case c.Tier != "":
		tier, err := domain.ParseFeeTier(c.Tier)
		if err != nil {
			return req, &domain.ValidationError{Fields: map[string]string{"tier": err.Error()}}
		}
		req.FeeBps = tier.Bps()
	case c.FeeBps != nil:
		req.FeeBps = *c.FeeBps
	}
	return req, nil
}

type errorResponse struct {
	Error    string                `json:"error"`
	Fields   map[string]string     `json:"fields,omitempty"`
	Workflow *domain.WorkflowState `json:"workflow,omitempty"`
}

// CreateWorkflow handles POST /workflows. Backend failures still answer 201
// with the workflow in ERROR.
func (s *Server) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var body CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		s.logger.Warn("CreateWorkflow: invalid request body", "err", err)
		return
	}

	req, err := body.IssuanceRequest()
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	state, err := s.Service.Start(context.WithoutCancel(r.Context()), req)
	if err != nil {
		s.writeError(w, r, err, state)
		return
	}
	writeJSON(w, http.StatusCreated, state)
}

// ListWorkflows handles GET /workflows.
func (s *Server) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	states, err := s.Service.List(r.Context())
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// GetWorkflow handles GET /workflows/{id}.
func (s *Server) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	state, err := s.Service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GetGraph handles GET /graph and GET /workflows/{id}/graph, answering the
// stage graph as Mermaid text. The per-workflow form highlights its path.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	var overlay *graph.GraphOverlay
	if id := chi.URLParam(r, "id"); id != "" {
		state, err := s.Service.Get(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		overlay = graph.OverlayFor(state)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(graph.GenerateMermaid(domain.Edges(), overlay)))
}

// DeleteWorkflow handles DELETE /workflows/{id}.
func (s *Server) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.Service.Remove(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// control adapts a workflow control call. Calls outlive the request so a
// client disconnect does not abort a signature or submission.
func (s *Server) control(fn func(WorkflowService, context.Context, string) (*domain.WorkflowState, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := fn(s.Service, context.WithoutCancel(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, state)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusCode maps service errors to HTTP statuses.
func StatusCode(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, state *domain.WorkflowState) {
	code := StatusCode(err)
	resp := errorResponse{Error: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	if code == http.StatusConflict || code == http.StatusUnprocessableEntity {
		resp.Workflow = state
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "err", err)
	}
}

// SubscribeEvents handles GET /workflows/{id}/events (SSE). Each committed
// transition is sent as a JSON TransitionEvent.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	if s.Streams == nil {
		http.Error(w, "Event streaming disabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := s.Service.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err, nil)
		return
	}

	ch, cancel := s.Streams.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: transition\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
