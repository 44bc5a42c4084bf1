// Package api exposes the conversation protocol over HTTP. Routing and
// middleware use chi; payloads mirror the shapes in the client library.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vitwit/mcpay/engine"
	"github.com/vitwit/mcpay/logger"
	"github.com/vitwit/mcpay/store"
	"github.com/vitwit/mcpay/tools"
	"github.com/vitwit/mcpay/types"
)

const toolUsage = "To use a tool, send a message that starts with '/' followed by the tool name and the input, e.g., '/capitalize hello world'. Some tools require payment in cryptocurrency. For these tools, you'll receive payment instructions and need to resubmit with your transaction hash using format: '/toolname input --tx=YOUR_TX_HASH'"

// Server wires the store, engine and registry behind the HTTP surface.
type Server struct {
	store    *store.MemoryStore
	engine   *engine.Engine
	registry *tools.Registry
	log      logger.Logger
	metrics  http.Handler
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithMetricsHandler mounts the given handler at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

func NewServer(st *store.MemoryStore, eng *engine.Engine, reg *tools.Registry, opts ...Option) *Server {
	s := &Server{
		store:    st,
		engine:   eng,
		registry: reg,
		log:      &logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/context", s.handleCreateContext)
	r.Get("/context/{contextID}", s.handleGetContext)
	r.Post("/context/{contextID}/message", s.handlePostMessage)
	r.Get("/contexts", s.handleListContexts)
	r.Get("/tools", s.handleListTools)
	if s.metrics != nil {
		r.Get("/metrics", s.metrics.ServeHTTP)
	}

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("mcpay server is running"))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "mcpay",
	})
}

type createContextRequest struct {
	Metadata map[string]any `json:"metadata"`
}

func (s *Server) handleCreateContext(w http.ResponseWriter, r *http.Request) {
	var req createContextRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, types.Error{
				Code:    types.ErrInvalidInput,
				Message: "invalid JSON body",
			})
			return
		}
	}

	conv := s.store.Create(req.Metadata)
	s.log.Info("created context", map[string]any{"contextId": conv.ID})

	writeJSON(w, http.StatusOK, map[string]any{
		"contextId": conv.ID,
		"context":   conv,
	})
}

func (s *Server) handleGetContext(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Get(chi.URLParam(r, "contextID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"context": conv})
}

type postMessageRequest struct {
	Role    types.Role `json:"role"`
	Content string     `json:"content"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	contextID := chi.URLParam(r, "contextID")

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.Error{
			Code:    types.ErrInvalidInput,
			Message: "invalid JSON body",
		})
		return
	}
	if req.Role != types.RoleUser && req.Role != types.RoleAssistant {
		writeError(w, http.StatusBadRequest, types.Error{
			Code:    types.ErrInvalidInput,
			Message: "role must be \"user\" or \"assistant\"",
		})
		return
	}

	msg, err := s.store.AppendMessage(contextID, req.Role, req.Content)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	// Only user messages go through the engine; other roles are recorded
	// verbatim.
	var response string
	if req.Role == types.RoleUser {
		conv, err := s.store.Get(contextID)
		if err != nil {
			writeStoreError(w, err)
			return
		}

		turn := s.engine.Process(r.Context(), conv, req.Content)
		response = turn.Response

		if _, err := s.store.AppendMessage(contextID, types.RoleAssistant, turn.Response); err != nil {
			writeStoreError(w, err)
			return
		}
		if err := s.store.SetProcessingMetadata(contextID, turn.Metadata); err != nil {
			writeStoreError(w, err)
			return
		}
	}

	conv, err := s.store.Get(contextID)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  msg,
		"response": response,
		"context":  conv,
	})
}

func (s *Server) handleListContexts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"contexts": s.store.List()})
}

func (s *Server) handleListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": s.registry.Descriptors(),
		"usage": toolUsage,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, e types.Error) {
	writeJSON(w, status, map[string]any{"error": e})
}

func writeStoreError(w http.ResponseWriter, err error) {
	var typed types.Error
	if errors.As(err, &typed) && typed.Code == types.ErrNotFound {
		writeError(w, http.StatusNotFound, typed)
		return
	}
	writeError(w, http.StatusInternalServerError, types.Error{
		Code:    types.ErrToolFailed,
		Message: err.Error(),
	})
}
