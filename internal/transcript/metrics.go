package transcript

import (
	"math"
	"sort"
)

const (
	// pauseThreshold is the minimum inter-word gap counted as a pause.
	pauseThreshold = 0.7
	// lowConfidence marks a word the recognizer was unsure about.
	lowConfidence = 0.8
)

// Metrics is the acoustic/STT metric set computed from word timestamps.
type Metrics struct {
	DurationSec        float64 `json:"duration_sec"`
	WordCount          int     `json:"num_words"`
	SpeechRateWPM      float64 `json:"speech_rate_wpm"`
	PauseCount         int     `json:"pause_count"`
	AvgPauseDuration   float64 `json:"avg_pause_duration"`
	MaxPauseDuration   float64 `json:"max_pause_duration"`
	SilenceRatio       float64 `json:"silence_ratio"`
	AvgConfidence      float64 `json:"avg_confidence"`
	LowConfidenceRatio float64 `json:"low_conf_ratio"`
}

// ComputeMetrics derives speaking-rate, pause and confidence metrics
// from decoded words. An empty word list yields the zero value rather
// than an error: a silent answer is valid input.
func ComputeMetrics(words []Word) Metrics {
	if len(words) == 0 {
		return Metrics{}
	}

	minStart := math.Inf(1)
	maxEnd := math.Inf(-1)
	var confidences []float64
	for _, w := range words {
		minStart = math.Min(minStart, w.Start)
		maxEnd = math.Max(maxEnd, w.End)
		if w.Confidence != nil {
			confidences = append(confidences, *w.Confidence)
		}
	}

	m := Metrics{
		DurationSec: round2(maxEnd - minStart),
		WordCount:   len(words),
	}
	if m.DurationSec > 0 {
		m.SpeechRateWPM = round2(float64(len(words)) / (m.DurationSec / 60.0))
	}

	// Pauses are gaps between consecutive words in start-time order.
	spans := make([][2]float64, len(words))
	for i, w := range words {
		spans[i] = [2]float64{w.Start, w.End}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })

	var totalSilence, pauseSum, maxPause float64
	for i := 0; i < len(spans)-1; i++ {
		gap := spans[i+1][0] - spans[i][1]
		if gap <= 0 {
			continue
		}
		totalSilence += gap
		if gap >= pauseThreshold {
			m.PauseCount++
			pauseSum += gap
			maxPause = math.Max(maxPause, gap)
		}
	}
	if m.PauseCount > 0 {
		m.AvgPauseDuration = round2(pauseSum / float64(m.PauseCount))
		m.MaxPauseDuration = round2(maxPause)
	}
	if m.DurationSec > 0 {
		m.SilenceRatio = round2(totalSilence / m.DurationSec)
	}

	if len(confidences) > 0 {
		var sum float64
		low := 0
		for _, c := range confidences {
			sum += c
			if c < lowConfidence {
				low++
			}
		}
		m.AvgConfidence = round2(sum / float64(len(confidences)))
		m.LowConfidenceRatio = round2(float64(low) / float64(len(confidences)))
	}

	return m
}

// Flatten exposes the metric set as scalar key/value pairs with the
// "stt_" prefix used in embedding-record metadata.
func (m Metrics) Flatten() map[string]float64 {
	return map[string]float64{
		"stt_duration_sec":       m.DurationSec,
		"stt_num_words":          float64(m.WordCount),
		"stt_speech_rate_wpm":    m.SpeechRateWPM,
		"stt_pause_count":        float64(m.PauseCount),
		"stt_avg_pause_duration": m.AvgPauseDuration,
		"stt_max_pause_duration": m.MaxPauseDuration,
		"stt_silence_ratio":      m.SilenceRatio,
		"stt_avg_confidence":     m.AvgConfidence,
		"stt_low_conf_ratio":     m.LowConfidenceRatio,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
