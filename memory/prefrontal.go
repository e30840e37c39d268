package memory

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/cortexmem/engine/config"
	"github.com/cortexmem/engine/types"
)

// surfaceRule is one entry in the prefrontal's first-stage pattern
// table: a regex and the QueryKind/confidence it implies when it
// matches (spec.md §4.4).
type surfaceRule struct {
	kind    types.QueryKind
	pattern *regexp.Regexp
	confidence float64
}

var surfaceRules = []surfaceRule{
	{types.QueryContinuation, regexp.MustCompile(`(?i)^\s*(continue|go on|and then|what about that|keep going)\b`), 0.9},
	{types.QueryFactRetrieval, regexp.MustCompile(`(?i)\b(what is|what's|who is|when is|where is|what was my|remind me)\b`), 0.8},
	{types.QueryDeepRecall, regexp.MustCompile(`(?i)\b(remember when|last (week|month|time)|a while back|previously we|in the past|exactly what I said|show me the code from earlier)\b`), 0.85},
	{types.QueryProceduralTrigger, regexp.MustCompile(`(?i)\b(every time|whenever|always do|my usual|the way I like)\b`), 0.8},
}

// layerPlans is the default ordered tier-read set and include-history
// flag for each QueryKind (spec.md §4.4); token budgets come from
// RetrievalConfig.TierTokenBudget.
var layerPlans = map[types.QueryKind]struct {
	layers         []types.MemoryCategory
	includeHistory bool
}{
	types.QueryContinuation:      {[]types.MemoryCategory{types.Working}, true},
	types.QueryFactRetrieval:     {[]types.MemoryCategory{types.Working, types.Semantic}, false},
	types.QueryDeepRecall:        {[]types.MemoryCategory{types.Working, types.Episodic}, false},
	types.QueryProceduralTrigger: {[]types.MemoryCategory{types.Working, types.Semantic, types.Procedural}, true},
	types.QueryComplex:           {[]types.MemoryCategory{types.Working, types.Semantic, types.Episodic}, true},
}

// Prefrontal classifies an incoming query into a types.QueryPlan: which
// tiers to read and with what token budget. Two stages: a surface
// pattern match, then an optional deferral to Collaborator.ClassifyQuery
// when no surface rule matches confidently. New code; the
// pluggable-collaborator shape follows the teacher's llm/embedding
// provider-interface idiom.
type Prefrontal struct {
	cfg          config.RetrievalConfig
	heuristics   config.HeuristicsConfig
	collaborator Collaborator
	tokens       *TokenCounter
	logger       *zap.Logger
}

// NewPrefrontal builds a Prefrontal. collaborator may be nil, in which
// case unrecognized queries always classify as QueryComplex.
func NewPrefrontal(cfg config.RetrievalConfig, heuristics config.HeuristicsConfig, collaborator Collaborator, tokens *TokenCounter, logger *zap.Logger) *Prefrontal {
	return &Prefrontal{cfg: cfg, heuristics: heuristics, collaborator: collaborator, tokens: tokens, logger: logger.With(zap.String("component", "prefrontal"))}
}

// Plan classifies query and returns its QueryPlan.
func (p *Prefrontal) Plan(ctx context.Context, query string) types.QueryPlan {
	kind, confidence := p.classifySurface(query)

	if confidence < p.heuristics.SpecificLayersThreshold {
		if deferred, ok := p.deferToCollaborator(ctx, query); ok {
			kind = deferred
			confidence = 1.0
		} else {
			kind = types.QueryComplex
			confidence = 0
		}
	}

	plan := layerPlans[kind]
	estimated := p.estimateTokens(plan.layers)

	return types.QueryPlan{
		Kind:            kind,
		Layers:          plan.layers,
		EstimatedTokens: estimated,
		IncludeHistory:  plan.includeHistory,
		Confidence:      confidence,
	}
}

// classifySurface returns the highest-confidence surface rule matching
// query, defaulting to QueryComplex with zero confidence if none match.
func (p *Prefrontal) classifySurface(query string) (types.QueryKind, float64) {
	trimmed := strings.TrimSpace(query)
	best := types.QueryComplex
	bestConfidence := 0.0
	for _, rule := range surfaceRules {
		if rule.pattern.MatchString(trimmed) && rule.confidence > bestConfidence {
			best = rule.kind
			bestConfidence = rule.confidence
		}
	}
	return best, bestConfidence
}

// deferToCollaborator asks the external classifier for a kind when the
// surface match was unconfident. Any error, nil collaborator, or
// unrecognized label defaults to QueryComplex per spec.md §4.4.
func (p *Prefrontal) deferToCollaborator(ctx context.Context, query string) (types.QueryKind, bool) {
	if p.collaborator == nil {
		return "", false
	}
	kind, err := p.collaborator.ClassifyQuery(ctx, query)
	if err != nil {
		p.logger.Warn("collaborator classification failed, defaulting to complex", zap.Error(err))
		return "", false
	}
	if _, ok := layerPlans[kind]; !ok {
		p.logger.Warn("collaborator returned unrecognized query kind, defaulting to complex", zap.String("kind", string(kind)))
		return "", false
	}
	return kind, true
}

func (p *Prefrontal) estimateTokens(layers []types.MemoryCategory) int {
	total := 0
	for _, l := range layers {
		total += p.cfg.TierTokenBudget[string(l)]
	}
	return total
}
