package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// embeddingLiteral renders vec as a pgvector input literal, e.g.
// "[0.1,0.2,0.3]". GORM has no pgvector column type in this stack, so
// the embedding column is written and read through raw SQL using this
// text format, matching how internal/database/pool.go drops to *sql.DB
// for anything outside GORM's query builder.
func embeddingLiteral(vec []float32) string {
	if len(vec) == 0 {
		return ""
	}
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseEmbeddingLiteral parses pgvector's text output format back into a
// []float32.
func parseEmbeddingLiteral(s string) ([]float32, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	out := make([]float32, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 32)
		if err != nil {
			return nil, fmt.Errorf("postgres: parse embedding literal: %w", err)
		}
		out[i] = float32(v)
	}
	return out, nil
}
