// Package server exposes the support bot over HTTP: one endpoint to send
// a message on a thread, one to answer a pending suspension, plus thread
// reset, health and Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/convograph/bot"
	"github.com/dshills/convograph/graph"
	"github.com/dshills/convograph/graph/wire"
)

// defaultUserID is used when a chat request does not identify the user.
// The demo catalogue ships one customer.
const defaultUserID = 1

// Server routes HTTP requests to a bot engine.
type Server struct {
	engine   *graph.Engine[bot.AppState]
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// New creates a server for the given engine. logger may be nil for the
// default slog logger; gatherer may be nil to serve the global registry
// on /metrics.
func New(engine *graph.Engine[bot.AppState], logger *slog.Logger, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{engine: engine, logger: logger, gatherer: gatherer}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/resume", s.handleResume)
	r.Delete("/api/threads/{threadID}", s.handleReset)
	r.Get("/api/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req wire.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.NewString()
	}
	userID := req.UserID
	if userID == 0 {
		userID = defaultUserID
	}

	env, err := s.engine.Invoke(r.Context(), threadID, bot.AppState{
		UserID:      userID,
		LastUserMsg: req.Message,
	})
	if err != nil {
		s.logger.Error("invoke failed", "thread_id", threadID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "invocation failed")
		return
	}

	s.logger.Info("chat turn",
		"thread_id", threadID,
		"route", env.State.Route,
		"suspended", env.Interrupt != nil,
	)
	s.writeEnvelope(w, threadID, env)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req wire.ResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ThreadID == "" {
		s.writeError(w, http.StatusBadRequest, "thread_id is required")
		return
	}

	env, err := s.engine.Resume(r.Context(), req.ThreadID, req.Resume)
	switch {
	case errors.Is(err, graph.ErrUnknownThread):
		s.writeError(w, http.StatusNotFound, "unknown thread")
		return
	case errors.Is(err, graph.ErrNoPendingSuspension):
		s.writeError(w, http.StatusConflict, "no pending suspension")
		return
	case err != nil:
		s.logger.Error("resume failed", "thread_id", req.ThreadID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "resume failed")
		return
	}

	s.logger.Info("resume turn",
		"thread_id", req.ThreadID,
		"suspended", env.Interrupt != nil,
	)
	s.writeEnvelope(w, req.ThreadID, env)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	threadID := chi.URLParam(r, "threadID")
	if err := s.engine.Reset(r.Context(), threadID); err != nil {
		s.logger.Error("reset failed", "thread_id", threadID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeEnvelope(w http.ResponseWriter, threadID string, env graph.Envelope[bot.AppState]) {
	messages := env.State.AssistantMessages
	if messages == nil {
		messages = []wire.AssistantPayload{}
	}
	s.writeJSON(w, http.StatusOK, wire.InvocationResponse{
		ThreadID:          threadID,
		AssistantMessages: messages,
		Interrupt:         env.Interrupt,
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}
