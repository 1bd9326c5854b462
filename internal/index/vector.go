package index

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// pgVector formats a float64 slice as a pgvector-compatible literal,
// e.g. "[0.1,0.2,0.3]", suitable for a parameterized query targeting a
// vector column.
func pgVector(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parsePgVector parses a pgvector literal like "[0.1,0.2,0.3]".
func parsePgVector(s string) ([]float64, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("invalid vector format")
	}
	s = s[1 : len(s)-1]
	if s == "" {
		return []float64{}, nil
	}

	parts := strings.Split(s, ",")
	result := make([]float64, len(parts))
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", part, err)
		}
		result[i] = val
	}
	return result, nil
}

// cosineSimilarity between two vectors; zero when lengths differ or
// either vector is all-zero.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0.0 || normB == 0.0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
