// Package api exposes the read-side report cards and the manual
// analysis trigger over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/parlance-ai/parlance/internal/analysis"
	"github.com/parlance-ai/parlance/internal/longitudinal"
	"github.com/parlance-ai/parlance/internal/similarity"
)

// AnswerAnalyzer runs the analysis pipeline for one answer.
type AnswerAnalyzer interface {
	AnalyzeAnswer(ctx context.Context, answerID uuid.UUID) (*analysis.Report, error)
}

// SessionCounter reports a user's completed-session count, the gate
// input for the weakness card.
type SessionCounter interface {
	CountCompletedSessions(ctx context.Context, userID uuid.UUID) (int, error)
}

type Server struct {
	router   *chi.Mux
	port     int
	apiToken string
	logger   *slog.Logger

	sessions SessionCounter
	analyzer *longitudinal.Analyzer
	hints    *similarity.Service
	pipeline AnswerAnalyzer
}

func NewServer(port int, apiToken string, sessions SessionCounter, analyzer *longitudinal.Analyzer, hints *similarity.Service, pipeline AnswerAnalyzer, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:   router,
		port:     port,
		apiToken: apiToken,
		logger:   logger,
		sessions: sessions,
		analyzer: analyzer,
		hints:    hints,
		pipeline: pipeline,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/answers/{answerID}/analyze", s.analyzeAnswer)
		r.Get("/users/{userID}/weaknesses", s.weaknesses)
		r.Get("/users/{userID}/metric-changes", s.metricChanges)
		r.Get("/users/{userID}/score-evolution", s.scoreEvolution)
		r.Get("/users/{userID}/sessions/{sessionID}/similar-hint", s.similarHint)
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// BearerAuthMiddleware rejects requests without the configured bearer
// token. An empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return id, nil
}
