package longitudinal

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlance-ai/parlance/internal/index"
	"github.com/parlance-ai/parlance/internal/transcript"
)

var testLogger = slog.New(slog.NewTextHandler(testWriter{}, nil))

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func fullAnswer(userID, sessionID uuid.UUID, at time.Time, meta map[string]float64) index.Record {
	return index.Record{
		ID:        fmt.Sprintf("full-%s-%d", sessionID, at.UnixNano()),
		Type:      index.TypeFullAnswer,
		UserID:    userID,
		SessionID: sessionID,
		AnswerID:  uuid.New(),
		Text:      "answer text",
		Embedding: []float64{1, 0},
		Meta:      meta,
		CreatedAt: at,
	}
}

func flaggedSentence(userID, sessionID uuid.UUID, at time.Time, text, category string) index.Record {
	return index.Record{
		ID:        fmt.Sprintf("sent-%s-%d", sessionID, at.UnixNano()),
		Type:      index.TypeSentence,
		UserID:    userID,
		SessionID: sessionID,
		AnswerID:  uuid.New(),
		Text:      text,
		Embedding: []float64{1, 0},
		Meta:      map[string]float64{category + "_label": 1},
		CreatedAt: at,
	}
}

func TestWeaknessGate(t *testing.T) {
	a := New(index.NewMemory(), testLogger)

	card, err := a.Weakness(context.Background(), uuid.New(), 2, EvidenceRecent)
	require.NoError(t, err)
	assert.False(t, card.HasEnoughData)
	assert.Equal(t, 2, card.TotalSessions)
	assert.Empty(t, card.TopWeaknesses)
	assert.Contains(t, card.Summary, "2 completed sessions")
}

func TestWeaknessNoStoredSentences(t *testing.T) {
	a := New(index.NewMemory(), testLogger)

	// Enough sessions on record but nothing indexed yet.
	card, err := a.Weakness(context.Background(), uuid.New(), 4, EvidenceRecent)
	require.NoError(t, err)
	assert.False(t, card.HasEnoughData)
	assert.Equal(t, 4, card.TotalSessions)
	assert.Empty(t, card.TopWeaknesses)
	assert.Contains(t, card.Summary, "No analyzable answers")
}

func TestWeaknessCountsFlaggedSentencesNotSessions(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	s1, s2 := uuid.New(), uuid.New()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, mem.Upsert(ctx, []index.Record{
		flaggedSentence(userID, s1, base, "음 그러니까요.", "filler"),
		flaggedSentence(userID, s1, base.Add(time.Minute), "어 네 맞아요.", "filler"),
		flaggedSentence(userID, s2, base.Add(48*time.Hour), "음 글쎄요.", "filler"),
	}))

	card, err := New(mem, testLogger).Weakness(ctx, userID, 3, EvidenceRecent)
	require.NoError(t, err)
	assert.True(t, card.HasEnoughData)
	require.Len(t, card.TopWeaknesses, 1)

	top := card.TopWeaknesses[0]
	assert.Equal(t, "filler", top.Category)
	assert.Equal(t, 3, top.OccurrenceCount)
	assert.NotEmpty(t, top.ImprovementGuidance)
	require.NotEmpty(t, top.EvidenceSentences)
	assert.Equal(t, "음 글쎄요.", top.EvidenceSentences[0], "most recent occurrence first")
}

func TestWeaknessRanksAndCaps(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	sessionID := uuid.New()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	counts := map[string]int{"filler": 5, "curse": 4, "slang": 3, "vague": 2}
	var recs []index.Record
	i := 0
	for cat, n := range counts {
		for j := 0; j < n; j++ {
			recs = append(recs, flaggedSentence(userID, sessionID,
				base.Add(time.Duration(i)*time.Minute), fmt.Sprintf("%s hit %d", cat, j), cat))
			i++
		}
	}
	require.NoError(t, mem.Upsert(ctx, recs))

	card, err := New(mem, testLogger).Weakness(ctx, userID, 4, EvidenceRecent)
	require.NoError(t, err)
	require.Len(t, card.TopWeaknesses, 3)
	assert.Equal(t, "filler", card.TopWeaknesses[0].Category)
	assert.Equal(t, "curse", card.TopWeaknesses[1].Category)
	assert.Equal(t, "slang", card.TopWeaknesses[2].Category)
}

func TestFrequentEvidencePrefersRepeatedPhrasing(t *testing.T) {
	now := time.Now()
	occ := []index.Record{
		{Text: "음 그러니까요.", CreatedAt: now},
		{Text: "사실 어렵네요.", CreatedAt: now.Add(time.Minute)},
		{Text: "음 그러니까요.", CreatedAt: now.Add(2 * time.Minute)},
		{Text: "음 그러니까요.", CreatedAt: now.Add(3 * time.Minute)},
		{Text: "다시 말하면요.", CreatedAt: now.Add(4 * time.Minute)},
	}

	got := pickEvidence(occ, EvidenceFrequent)
	require.Len(t, got, 3)
	assert.Equal(t, "음 그러니까요.", got[0])
	// Remaining singletons tie on count, recency breaks the tie.
	assert.Equal(t, "다시 말하면요.", got[1])
	assert.Equal(t, "사실 어렵네요.", got[2])
}

func TestTrendPhrase(t *testing.T) {
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	at := func(h int) index.Record {
		return index.Record{CreatedAt: base.Add(time.Duration(h) * time.Hour)}
	}

	tests := []struct {
		name string
		occ  []index.Record
		want string
	}{
		{"single occurrence", []index.Record{at(0)}, "stable"},
		{"growth", []index.Record{at(0), at(90), at(95), at(100)}, "increasing"},
		{"decline", []index.Record{at(0), at(5), at(10), at(100)}, "decreasing"},
		{"even split", []index.Record{at(0), at(10), at(90), at(100)}, "stable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, trendPhrase(tt.occ))
		})
	}
}

func TestScoreEvolution(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, mem.Upsert(ctx, []index.Record{
		fullAnswer(userID, uuid.New(), base, map[string]float64{"filler_score": 0.8}),
		fullAnswer(userID, uuid.New(), base.Add(72*time.Hour), map[string]float64{"filler_score": 0.4}),
	}))

	ev, err := New(mem, testLogger).ScoreEvolution(ctx, userID, nil)
	require.NoError(t, err)
	assert.True(t, ev.HasEnoughData)
	assert.Equal(t, "improved", ev.Direction)
	assert.InDelta(t, 0.8, ev.FirstAverage, 1e-9)
	assert.InDelta(t, 0.4, ev.LastAverage, 1e-9)
	assert.InDelta(t, -50, ev.ChangePercent, 1e-9)
}

func TestScoreEvolutionNeedsTwoSessions(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()

	require.NoError(t, mem.Upsert(ctx, []index.Record{
		fullAnswer(userID, uuid.New(), time.Now(), map[string]float64{"filler_score": 0.5}),
	}))

	ev, err := New(mem, testLogger).ScoreEvolution(ctx, userID, nil)
	require.NoError(t, err)
	assert.False(t, ev.HasEnoughData)
	assert.Equal(t, "unchanged", ev.Direction)
}

func TestScoreEvolutionCapsRunawayChange(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	base := time.Now()

	// Near-zero baseline would explode without the denominator floor.
	require.NoError(t, mem.Upsert(ctx, []index.Record{
		fullAnswer(userID, uuid.New(), base, map[string]float64{"filler_score": 0.0}),
		fullAnswer(userID, uuid.New(), base.Add(time.Hour), map[string]float64{"filler_score": 0.9}),
	}))

	ev, err := New(mem, testLogger).ScoreEvolution(ctx, userID, nil)
	require.NoError(t, err)
	assert.Equal(t, "worsened", ev.Direction)
	assert.InDelta(t, 100, ev.ChangePercent, 1e-9)
}

func TestMetricChangesGate(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	base := time.Now()

	for i := 0; i < 5; i++ {
		require.NoError(t, mem.Upsert(ctx, []index.Record{
			fullAnswer(userID, uuid.New(), base.Add(time.Duration(i)*time.Hour),
				map[string]float64{"stt_pause_count": 10}),
		}))
	}

	card, err := New(mem, testLogger).MetricChanges(ctx, userID)
	require.NoError(t, err)
	assert.False(t, card.HasEnoughData)
	assert.Equal(t, 5, card.TotalSessions)
	assert.Empty(t, card.SignificantChanges)
}

func TestMetricChangesPauseCountImprovement(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	pauseBySession := []float64{10, 10, 10, 4, 4, 4}
	for i, p := range pauseBySession {
		require.NoError(t, mem.Upsert(ctx, []index.Record{
			fullAnswer(userID, uuid.New(), base.Add(time.Duration(i)*24*time.Hour),
				map[string]float64{"stt_pause_count": p, "stt_silence_ratio": 0.2}),
		}))
	}

	card, err := New(mem, testLogger).MetricChanges(ctx, userID)
	require.NoError(t, err)
	assert.True(t, card.HasEnoughData)
	require.Len(t, card.SignificantChanges, 1, "silence ratio is unchanged and must not appear")

	c := card.SignificantChanges[0]
	assert.Equal(t, "pause_count", c.MetricName)
	assert.InDelta(t, 10, c.PreviousAverage, 1e-9)
	assert.InDelta(t, 4, c.RecentAverage, 1e-9)
	assert.InDelta(t, -60, c.ChangePercent, 1e-9)
	assert.Equal(t, "down", c.Direction)
	assert.True(t, c.IsImprovement)
}

func TestMetricChangesLongerPausesWorsen(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	// Average pause doubles across the windows. The metric key comes
	// straight from Metrics.Flatten, so this also pins the key the
	// polarity table resolves.
	flat := transcript.Metrics{AvgPauseDuration: 1}.Flatten()
	avgPauseKey := "stt_avg_pause_duration"
	require.Contains(t, flat, avgPauseKey)

	pauseBySession := []float64{1, 1, 1, 2, 2, 2}
	for i, p := range pauseBySession {
		require.NoError(t, mem.Upsert(ctx, []index.Record{
			fullAnswer(userID, uuid.New(), base.Add(time.Duration(i)*24*time.Hour),
				map[string]float64{avgPauseKey: p}),
		}))
	}

	card, err := New(mem, testLogger).MetricChanges(ctx, userID)
	require.NoError(t, err)
	require.Len(t, card.SignificantChanges, 1)

	c := card.SignificantChanges[0]
	assert.Equal(t, "avg_pause_duration", c.MetricName)
	assert.Equal(t, "up", c.Direction)
	assert.False(t, c.IsImprovement, "longer pauses must not read as progress")
}

func TestMetricChangesPolarity(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		wentUp bool
		want   bool
	}{
		{"speech rate up", "stt_speech_rate_wpm", true, true},
		{"speech rate down", "stt_speech_rate_wpm", false, false},
		{"confidence up", "stt_avg_confidence", true, true},
		{"pause count down", "stt_pause_count", false, true},
		{"silence ratio up", "stt_silence_ratio", true, false},
		{"severity score down", "curse_score", false, true},
		{"severity score up", "filler_score", true, false},
		{"avg pause up", "stt_avg_pause_duration", true, false},
		{"max pause down", "stt_max_pause_duration", false, true},
		{"unknown metric up", "stt_num_words", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isImprovement(tt.metric, tt.wentUp))
		})
	}
}

func TestMetricChangesSortAndCap(t *testing.T) {
	ctx := context.Background()
	mem := index.NewMemory()
	userID := uuid.New()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	// Seven metrics move materially; only the five largest survive.
	prev := map[string]float64{
		"stt_pause_count":     10,
		"stt_silence_ratio":   0.5,
		"stt_avg_confidence":  0.5,
		"stt_speech_rate_wpm": 100,
		"filler_score":        0.8,
		"curse_score":         0.5,
		"slang_score":         0.5,
	}
	recent := map[string]float64{
		"stt_pause_count":     4,   // -60%
		"stt_silence_ratio":   0.4, // -20%
		"stt_avg_confidence":  0.6, // +20%
		"stt_speech_rate_wpm": 155, // +55%
		"filler_score":        0.4, // -50%
		"curse_score":         0.65, // +30%
		"slang_score":         0.3, // -40%
	}
	for i := 0; i < 6; i++ {
		meta := prev
		if i >= 3 {
			meta = recent
		}
		copied := make(map[string]float64, len(meta))
		for k, v := range meta {
			copied[k] = v
		}
		require.NoError(t, mem.Upsert(ctx, []index.Record{
			fullAnswer(userID, uuid.New(), base.Add(time.Duration(i)*24*time.Hour), copied),
		}))
	}

	card, err := New(mem, testLogger).MetricChanges(ctx, userID)
	require.NoError(t, err)
	require.Len(t, card.SignificantChanges, 5)
	assert.Equal(t, "pause_count", card.SignificantChanges[0].MetricName)
	assert.Equal(t, "speech_rate_wpm", card.SignificantChanges[1].MetricName)
	for i := 1; i < len(card.SignificantChanges); i++ {
		prev := absPercent(card.SignificantChanges[i-1].ChangePercent)
		cur := absPercent(card.SignificantChanges[i].ChangePercent)
		assert.GreaterOrEqual(t, prev, cur)
	}
}
