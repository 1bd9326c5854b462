package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/parlance-ai/parlance/internal/label"
	"github.com/parlance-ai/parlance/internal/transcript"
)

// Classifier scores a span of text per category. Implementations wrap
// the multi-label model; tests substitute fakes.
type Classifier interface {
	Scores(ctx context.Context, text string) (map[string]float64, error)
}

// Thresholds maps category to the score at which its flag trips.
// Per-category, not global: categories have different base rates and
// different cost of a false positive.
type Thresholds map[string]float64

// DefaultThresholds mirrors the tuning of the served model: filler has
// a high base rate so it trips earlier, biased is expensive to get
// wrong so it trips later.
func DefaultThresholds() Thresholds {
	return Thresholds{
		label.Curse:  0.5,
		label.Slang:  0.5,
		label.Biased: 0.6,
		label.Filler: 0.35,
	}
}

// ClassifierDetector applies thresholds on top of a Classifier.
type ClassifierDetector struct {
	classifier Classifier
	thresholds Thresholds
}

func NewClassifierDetector(c Classifier, t Thresholds) *ClassifierDetector {
	if t == nil {
		t = DefaultThresholds()
	}
	return &ClassifierDetector{classifier: c, thresholds: t}
}

// Detect scores one span of text and returns scored labels with
// per-category thresholded flags.
func (d *ClassifierDetector) Detect(ctx context.Context, text string) (label.Set, error) {
	scores, err := d.classifier.Scores(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("classifier scores: %w", err)
	}

	set := make(label.Set, len(scores))
	for cat, score := range scores {
		threshold, ok := d.thresholds[cat]
		if !ok {
			threshold = 0.5
		}
		set[cat] = label.ScoredLabel(score, score >= threshold)
	}
	return set, nil
}

// DetectSentences classifies each sentence and returns both the
// per-sentence label sets (by sentence index) and, per category, the
// indices of flagged sentences.
func (d *ClassifierDetector) DetectSentences(ctx context.Context, sentences []transcript.Sentence) (map[int]label.Set, map[string][]int, error) {
	perSentence := make(map[int]label.Set, len(sentences))
	flagged := make(map[string][]int)

	for _, s := range sentences {
		set, err := d.Detect(ctx, s.Text)
		if err != nil {
			return nil, nil, fmt.Errorf("classify sentence %d: %w", s.Index, err)
		}
		perSentence[s.Index] = set
		for cat, l := range set {
			if l.Flag == 1 {
				flagged[cat] = append(flagged[cat], s.Index)
			}
		}
	}
	return perSentence, flagged, nil
}

// HTTPClassifier calls the model-serving sidecar. The model weights
// live in the sidecar process; this client is cheap and stateless.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClassifier(baseURL string) *HTTPClassifier {
	return &HTTPClassifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Scores map[string]float64 `json:"scores"`
}

func (c *HTTPClassifier) Scores(ctx context.Context, text string) (map[string]float64, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classifier call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("classifier %s: %s", resp.Status, string(msg))
	}

	var out classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode classifier response: %w", err)
	}
	return out.Scores, nil
}

var (
	classifierOnce sync.Once
	classifierInst *HTTPClassifier
)

// SharedClassifier returns the process-wide classifier client,
// constructing it on first call. Concurrent first callers cannot
// double-construct.
func SharedClassifier(baseURL string) *HTTPClassifier {
	classifierOnce.Do(func() {
		classifierInst = NewHTTPClassifier(baseURL)
	})
	return classifierInst
}
