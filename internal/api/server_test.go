package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/parlance-ai/parlance/internal/analysis"
	"github.com/parlance-ai/parlance/internal/index"
	"github.com/parlance-ai/parlance/internal/longitudinal"
	"github.com/parlance-ai/parlance/internal/similarity"
)

var testLogger = slog.New(slog.NewTextHandler(discard{}, nil))

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type fakeCounter struct {
	count int
	err   error
}

func (f *fakeCounter) CountCompletedSessions(_ context.Context, _ uuid.UUID) (int, error) {
	return f.count, f.err
}

type fakeAnalyzer struct {
	report *analysis.Report
	err    error
}

func (f *fakeAnalyzer) AnalyzeAnswer(_ context.Context, _ uuid.UUID) (*analysis.Report, error) {
	return f.report, f.err
}

func newTestServer(counter SessionCounter, pipeline AnswerAnalyzer) *Server {
	mem := index.NewMemory()
	return NewServer(8460, "",
		counter,
		longitudinal.New(mem, testLogger),
		similarity.New(mem, testLogger),
		pipeline,
		testLogger,
	)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeCounter{}, &fakeAnalyzer{})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestNotFoundEndpoint(t *testing.T) {
	srv := newTestServer(&fakeCounter{}, &fakeAnalyzer{})

	req := httptest.NewRequest("GET", "/nonexistent", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestBearerAuth(t *testing.T) {
	mem := index.NewMemory()
	srv := NewServer(8460, "secret",
		&fakeCounter{count: 5},
		longitudinal.New(mem, testLogger),
		similarity.New(mem, testLogger),
		&fakeAnalyzer{},
		testLogger,
	)

	url := fmt.Sprintf("/api/v1/users/%s/weaknesses", uuid.New())

	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", url, nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with token, got %d", w.Code)
	}
}

func TestWeaknessesEndpointGate(t *testing.T) {
	srv := newTestServer(&fakeCounter{count: 1}, &fakeAnalyzer{})

	req := httptest.NewRequest("GET", fmt.Sprintf("/api/v1/users/%s/weaknesses", uuid.New()), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var card longitudinal.WeaknessCard
	if err := json.NewDecoder(w.Body).Decode(&card); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if card.HasEnoughData {
		t.Error("expected has_enough_data false with 1 session")
	}
	if card.TotalSessions != 1 {
		t.Errorf("expected total_sessions 1, got %d", card.TotalSessions)
	}
}

func TestWeaknessesEndpointBadUserID(t *testing.T) {
	srv := newTestServer(&fakeCounter{}, &fakeAnalyzer{})

	req := httptest.NewRequest("GET", "/api/v1/users/not-a-uuid/weaknesses", nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAnalyzeEndpointPreconditionFailure(t *testing.T) {
	srv := newTestServer(&fakeCounter{}, &fakeAnalyzer{err: fmt.Errorf("answer: %w", analysis.ErrNoTranscript)})

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/answers/%s/analyze", uuid.New()), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", w.Code)
	}
}

func TestAnalyzeEndpointSuccess(t *testing.T) {
	answerID := uuid.New()
	srv := newTestServer(&fakeCounter{}, &fakeAnalyzer{report: &analysis.Report{AnswerID: answerID}})

	req := httptest.NewRequest("POST", fmt.Sprintf("/api/v1/answers/%s/analyze", answerID), nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var report analysis.Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.AnswerID != answerID {
		t.Errorf("expected answer id %s, got %s", answerID, report.AnswerID)
	}
}

func TestSimilarHintEndpointEmptyHistory(t *testing.T) {
	srv := newTestServer(&fakeCounter{}, &fakeAnalyzer{})

	url := fmt.Sprintf("/api/v1/users/%s/sessions/%s/similar-hint", uuid.New(), uuid.New())
	req := httptest.NewRequest("GET", url, nil)
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]*similarity.Hint
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["hint"] != nil {
		t.Errorf("expected null hint, got %+v", body["hint"])
	}
}
