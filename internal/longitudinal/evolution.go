package longitudinal

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parlance-ai/parlance/internal/index"
)

const (
	minEvolutionSessions    = 2
	minMetricChangeSessions = 6
	comparisonWindow        = 3
	materialityPercent      = 10.0
	maxMetricChanges        = 5

	// Percent-change guards: denominators floor at 0.1 and the
	// reported magnitude caps at 100 so a near-zero baseline cannot
	// produce an absurd headline number.
	denominatorFloor = 0.1
	percentCap       = 100.0
)

type ScoreEvolution struct {
	TotalSessions int     `json:"total_sessions"`
	HasEnoughData bool    `json:"has_enough_data"`
	FirstAverage  float64 `json:"first_average"`
	LastAverage   float64 `json:"last_average"`
	ChangePercent float64 `json:"change_percent"`
	Direction     string  `json:"direction"`
	Summary       string  `json:"summary"`
}

type MetricChange struct {
	MetricName      string  `json:"metric_name"`
	PreviousAverage float64 `json:"previous_average"`
	RecentAverage   float64 `json:"recent_average"`
	ChangePercent   float64 `json:"change_percent"`
	Direction       string  `json:"direction"`
	IsImprovement   bool    `json:"is_improvement"`
}

type MetricChangeCard struct {
	TotalSessions      int            `json:"total_sessions"`
	HasEnoughData      bool           `json:"has_enough_data"`
	SignificantChanges []MetricChange `json:"significant_changes"`
	Summary            string         `json:"summary"`
}

// sessionGroup is one session's full-answer records, stamped with the
// session's earliest record time for chronological ordering.
type sessionGroup struct {
	sessionID uuid.UUID
	earliest  time.Time
	records   []index.Record
}

// ScoreEvolution compares the mean severity score of the user's first
// and latest sessions. questionNo, when set, restricts the comparison
// to answers at that position. Severity scores read lower-is-better.
func (a *Analyzer) ScoreEvolution(ctx context.Context, userID uuid.UUID, questionNo *int) (ScoreEvolution, error) {
	records, err := a.index.Get(ctx, index.Filter{
		UserID:     userID,
		Type:       index.TypeFullAnswer,
		QuestionNo: questionNo,
	})
	if err != nil {
		return ScoreEvolution{}, fmt.Errorf("load answer records: %w", err)
	}

	sessions := groupBySession(records)
	ev := ScoreEvolution{TotalSessions: len(sessions)}
	if len(sessions) < minEvolutionSessions {
		ev.Direction = "unchanged"
		ev.Summary = notEnoughSessionsCopy(len(sessions), minEvolutionSessions)
		return ev, nil
	}

	ev.HasEnoughData = true
	ev.FirstAverage = sessionScoreMean(sessions[0])
	ev.LastAverage = sessionScoreMean(sessions[len(sessions)-1])
	ev.ChangePercent = percentChange(ev.FirstAverage, ev.LastAverage)

	switch {
	case ev.LastAverage < ev.FirstAverage:
		ev.Direction = "improved"
	case ev.LastAverage > ev.FirstAverage:
		ev.Direction = "worsened"
	default:
		ev.Direction = "unchanged"
	}
	ev.Summary = scoreEvolutionCopy(ev)
	return ev, nil
}

// MetricChanges compares the previous three sessions against the most
// recent three, per metric, and reports only material moves.
func (a *Analyzer) MetricChanges(ctx context.Context, userID uuid.UUID) (MetricChangeCard, error) {
	records, err := a.index.Get(ctx, index.Filter{UserID: userID, Type: index.TypeFullAnswer})
	if err != nil {
		return MetricChangeCard{}, fmt.Errorf("load answer records: %w", err)
	}

	sessions := groupBySession(records)
	card := MetricChangeCard{TotalSessions: len(sessions)}
	if len(sessions) < minMetricChangeSessions {
		card.Summary = notEnoughSessionsCopy(len(sessions), minMetricChangeSessions)
		return card, nil
	}
	card.HasEnoughData = true

	recent := sessions[len(sessions)-comparisonWindow:]
	previous := sessions[len(sessions)-2*comparisonWindow : len(sessions)-comparisonWindow]

	for _, name := range metricNames(records) {
		prevAvg, prevOK := windowMean(previous, name)
		recentAvg, recentOK := windowMean(recent, name)
		if !prevOK || !recentOK {
			continue
		}

		change := percentChange(prevAvg, recentAvg)
		if math.Abs(change) <= materialityPercent {
			continue
		}

		direction := "up"
		if recentAvg < prevAvg {
			direction = "down"
		}
		card.SignificantChanges = append(card.SignificantChanges, MetricChange{
			MetricName:      displayMetricName(name),
			PreviousAverage: round2(prevAvg),
			RecentAverage:   round2(recentAvg),
			ChangePercent:   round2(change),
			Direction:       direction,
			IsImprovement:   isImprovement(name, recentAvg > prevAvg),
		})
	}

	sort.Slice(card.SignificantChanges, func(i, j int) bool {
		ci := math.Abs(card.SignificantChanges[i].ChangePercent)
		cj := math.Abs(card.SignificantChanges[j].ChangePercent)
		if ci != cj {
			return ci > cj
		}
		return card.SignificantChanges[i].MetricName < card.SignificantChanges[j].MetricName
	})
	if len(card.SignificantChanges) > maxMetricChanges {
		card.SignificantChanges = card.SignificantChanges[:maxMetricChanges]
	}

	card.Summary = metricChangeCopy(card)
	return card, nil
}

// groupBySession buckets full-answer records by session id and orders
// the sessions chronologically by their earliest record.
func groupBySession(records []index.Record) []sessionGroup {
	byID := make(map[uuid.UUID]*sessionGroup)
	for _, r := range records {
		g, ok := byID[r.SessionID]
		if !ok {
			g = &sessionGroup{sessionID: r.SessionID, earliest: r.CreatedAt}
			byID[r.SessionID] = g
		}
		if r.CreatedAt.Before(g.earliest) {
			g.earliest = r.CreatedAt
		}
		g.records = append(g.records, r)
	}

	out := make([]sessionGroup, 0, len(byID))
	for _, g := range byID {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].earliest.Equal(out[j].earliest) {
			return out[i].earliest.Before(out[j].earliest)
		}
		return out[i].sessionID.String() < out[j].sessionID.String()
	})
	return out
}

// sessionScoreMean averages every "_score" metadata value present in
// one session's records.
func sessionScoreMean(g sessionGroup) float64 {
	var sum float64
	var n int
	for _, r := range g.records {
		for key, val := range r.Meta {
			if strings.HasSuffix(key, "_score") {
				sum += val
				n++
			}
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// sessionMetricMean averages one metric inside one session, reporting
// whether the session carries it at all.
func sessionMetricMean(g sessionGroup, name string) (float64, bool) {
	var sum float64
	var n int
	for _, r := range g.records {
		if v, ok := r.Meta[name]; ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// windowMean averages the per-session means across a window. The
// window qualifies only when every session in it carries the metric.
func windowMean(window []sessionGroup, name string) (float64, bool) {
	var sum float64
	for _, g := range window {
		m, ok := sessionMetricMean(g, name)
		if !ok {
			return 0, false
		}
		sum += m
	}
	return sum / float64(len(window)), true
}

// metricNames collects the comparable metric keys present in the
// records: acoustic "stt_" metrics and per-category severity scores.
func metricNames(records []index.Record) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		for key := range r.Meta {
			if strings.HasPrefix(key, "stt_") || strings.HasSuffix(key, "_score") {
				seen[key] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// percentChange guards the near-zero denominator and caps magnitude.
func percentChange(previous, recent float64) float64 {
	denom := math.Abs(previous)
	if denom < denominatorFloor {
		denom = denominatorFloor
	}
	change := (recent - previous) / denom * 100
	if change > percentCap {
		return percentCap
	}
	if change < -percentCap {
		return -percentCap
	}
	return change
}

// upIsGood lists the metrics where a rise reads as improvement. Any
// severity "_score" metric improves when it falls; unknown metrics
// default to up-is-good.
var upIsGood = map[string]bool{
	"stt_speech_rate_wpm":    true,
	"stt_avg_confidence":     true,
	"stt_pause_count":        false,
	"stt_avg_pause_duration": false,
	"stt_max_pause_duration": false,
	"stt_silence_ratio":      false,
	"stt_low_conf_ratio":     false,
}

func isImprovement(name string, wentUp bool) bool {
	if strings.HasSuffix(name, "_score") {
		return !wentUp
	}
	if up, ok := upIsGood[name]; ok {
		return up == wentUp
	}
	return wentUp
}

func displayMetricName(name string) string {
	return strings.TrimPrefix(name, "stt_")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
