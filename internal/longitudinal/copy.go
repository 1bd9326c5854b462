package longitudinal

import (
	"fmt"
	"strings"
)

// Copy builders for the report cards. The strings are shown to the
// user verbatim, so they carry the literal counts the cards compute.

func notEnoughSessionsCopy(have, need int) string {
	return fmt.Sprintf("You have %d completed sessions so far. At least %d are needed for this report.", have, need)
}

func noAnalyzableDataCopy() string {
	return "No analyzable answers were found for your sessions."
}

func weaknessSummaryCopy(card WeaknessCard) string {
	if len(card.TopWeaknesses) == 0 {
		return fmt.Sprintf("No recurring issues found across your %d sessions. Keep it up.", card.TotalSessions)
	}
	top := card.TopWeaknesses[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Across %d sessions your most frequent issue is %s (%d occurrences, %s).",
		card.TotalSessions, top.DisplayName, top.OccurrenceCount, top.Trend)
	if len(card.TopWeaknesses) > 1 {
		others := make([]string, 0, len(card.TopWeaknesses)-1)
		for _, f := range card.TopWeaknesses[1:] {
			others = append(others, f.DisplayName)
		}
		fmt.Fprintf(&b, " Also watch: %s.", strings.Join(others, ", "))
	}
	fmt.Fprintf(&b, " %s", top.ImprovementGuidance)
	return b.String()
}

func scoreEvolutionCopy(ev ScoreEvolution) string {
	switch ev.Direction {
	case "improved":
		return fmt.Sprintf("Your severity score improved %.0f%% between your first and latest session (%.2f to %.2f).",
			absPercent(ev.ChangePercent), ev.FirstAverage, ev.LastAverage)
	case "worsened":
		return fmt.Sprintf("Your severity score worsened %.0f%% between your first and latest session (%.2f to %.2f).",
			absPercent(ev.ChangePercent), ev.FirstAverage, ev.LastAverage)
	default:
		return "Your severity score is unchanged between your first and latest session."
	}
}

func metricChangeCopy(card MetricChangeCard) string {
	if len(card.SignificantChanges) == 0 {
		return fmt.Sprintf("No material changes across your last %d sessions. Your speaking metrics are holding steady.", card.TotalSessions)
	}
	var improved, regressed []string
	for _, c := range card.SignificantChanges {
		phrase := fmt.Sprintf("%s %s %.0f%%", metricPhrase(c.MetricName), c.Direction, absPercent(c.ChangePercent))
		if c.IsImprovement {
			improved = append(improved, phrase)
		} else {
			regressed = append(regressed, phrase)
		}
	}

	var b strings.Builder
	if len(improved) > 0 {
		fmt.Fprintf(&b, "Improved: %s.", strings.Join(improved, ", "))
	}
	if len(regressed) > 0 {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "Needs attention: %s.", strings.Join(regressed, ", "))
	}
	return b.String()
}

var metricPhrases = map[string]string{
	"speech_rate_wpm":    "speech rate",
	"pause_count":        "pause count",
	"avg_pause_duration": "average pause length",
	"max_pause_duration": "longest pause",
	"silence_ratio":      "silence ratio",
	"avg_confidence":     "transcription confidence",
	"low_conf_ratio":     "unclear-speech ratio",
	"duration_sec":       "answer length",
	"num_words":          "word count",
}

func metricPhrase(name string) string {
	if p, ok := metricPhrases[name]; ok {
		return p
	}
	if cat, ok := strings.CutSuffix(name, "_score"); ok {
		return cat + " score"
	}
	return strings.ReplaceAll(name, "_", " ")
}

func absPercent(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
