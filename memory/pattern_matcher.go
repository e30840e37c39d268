package memory

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cortexmem/engine/internal/blob"
	"github.com/cortexmem/engine/types"
)

// PatternMatcher finds the first procedural pattern whose trigger
// matches an incoming query (spec.md §4.7), grounded on
// layered_memory.go's ProceduralMemory.FindByTrigger, extended with
// regex and semantic (embedding-similarity) trigger kinds.
type PatternMatcher struct {
	repo         ProceduralRepo
	collaborator Collaborator
	logger       *zap.Logger
}

// NewPatternMatcher builds a PatternMatcher. collaborator may be nil; in
// that case semantic triggers never match (no embedding to compare
// against).
func NewPatternMatcher(repo ProceduralRepo, collaborator Collaborator, logger *zap.Logger) *PatternMatcher {
	return &PatternMatcher{repo: repo, collaborator: collaborator, logger: logger.With(zap.String("component", "pattern_matcher"))}
}

// Match returns the best matching pattern for query among userID's
// patterns, or nil if none match. Patterns are pre-sorted by usage_count
// descending, then created_at ascending (spec.md §4.7 tie-break), and
// the first one with a matching trigger wins.
func (m *PatternMatcher) Match(ctx context.Context, userID, query string) (*types.ProceduralPattern, error) {
	patterns, err := m.repo.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].UsageCount != patterns[j].UsageCount {
			return patterns[i].UsageCount > patterns[j].UsageCount
		}
		return patterns[i].CreatedAt.Before(patterns[j].CreatedAt)
	})

	var queryEmbedding []float32
	for i := range patterns {
		p := &patterns[i]
		matched, err := m.matches(ctx, p, query, &queryEmbedding)
		if err != nil {
			m.logger.Warn("trigger evaluation failed, skipping pattern", zap.String("pattern_id", p.ID), zap.Error(err))
			continue
		}
		if matched {
			return p, nil
		}
	}
	return nil, nil
}

func (m *PatternMatcher) matches(ctx context.Context, p *types.ProceduralPattern, query string, queryEmbedding *[]float32) (bool, error) {
	for _, trig := range p.Triggers {
		switch trig.Kind {
		case types.TriggerKeyword:
			if _, ok := tokenizeWords(query)[strings.ToLower(trig.Pattern)]; ok {
				return true, nil
			}
		case types.TriggerRegex:
			re, err := regexp.Compile(trig.Pattern)
			if err != nil {
				return false, err
			}
			if re.MatchString(query) {
				return true, nil
			}
		case types.TriggerSemantic:
			if m.collaborator == nil || len(trig.Embedding) == 0 {
				continue
			}
			if *queryEmbedding == nil {
				emb, err := m.collaborator.Embed(ctx, query)
				if err != nil {
					return false, err
				}
				*queryEmbedding = emb
			}
			sim, err := blob.CosineSimilarity(*queryEmbedding, trig.Embedding)
			if err != nil {
				return false, err
			}
			if sim >= p.ConfidenceThreshold {
				return true, nil
			}
		}
	}
	return false, nil
}

// RecordOutcome updates a pattern's usage counters after it has been
// applied. The orchestrator's RetrieveContext calls it with
// succeeded=true each time Match returns a pattern.
func (m *PatternMatcher) RecordOutcome(ctx context.Context, patternID string, succeeded bool) error {
	return m.repo.Touch(ctx, patternID, succeeded)
}
