package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/parlance-ai/parlance/internal/analysis"
	"github.com/parlance-ai/parlance/internal/longitudinal"
	"github.com/parlance-ai/parlance/internal/store"
)

func (s *Server) analyzeAnswer(w http.ResponseWriter, r *http.Request) {
	answerID, err := pathUUID(r, "answerID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.pipeline.AnalyzeAnswer(r.Context(), answerID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "answer not found")
	case errors.Is(err, analysis.ErrNoTranscript), errors.Is(err, analysis.ErrNoMetrics):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("analysis failed", "answer_id", answerID, "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) weaknesses(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	strategy := longitudinal.EvidenceRecent
	if r.URL.Query().Get("strategy") == string(longitudinal.EvidenceFrequent) {
		strategy = longitudinal.EvidenceFrequent
	}

	total, err := s.sessions.CountCompletedSessions(r.Context(), userID)
	if err != nil {
		s.logger.Error("session count failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "session lookup failed")
		return
	}

	card, err := s.analyzer.Weakness(r.Context(), userID, total, strategy)
	if err != nil {
		s.logger.Error("weakness report failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "weakness report failed")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) metricChanges(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	card, err := s.analyzer.MetricChanges(r.Context(), userID)
	if err != nil {
		s.logger.Error("metric change report failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "metric change report failed")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *Server) scoreEvolution(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var questionNo *int
	if q := r.URL.Query().Get("question_no"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid question_no")
			return
		}
		questionNo = &n
	}

	ev, err := s.analyzer.ScoreEvolution(r.Context(), userID, questionNo)
	if err != nil {
		s.logger.Error("score evolution report failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "score evolution report failed")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) similarHint(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessionID, err := pathUUID(r, "sessionID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	hint := s.hints.Hint(r.Context(), userID, sessionID)
	if hint == nil {
		writeJSON(w, http.StatusOK, map[string]any{"hint": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hint": hint})
}
