package memory

import (
	"context"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cortexmem/engine/config"
	"github.com/cortexmem/engine/types"
)

// Importance thresholds a scored message is bucketed into (spec.md §4.3).
const (
	ThresholdCritical = 0.80
	ThresholdHigh     = 0.60
	ThresholdNormal    = 0.40
)

var (
	decisionPattern = regexp.MustCompile(`(?i)\b(decide[ds]?|will use|let's go with|going with|chose|chosen|we'll|plan to)\b`)
	questionPattern = regexp.MustCompile(`\?\s*$`)
	technicalPattern = regexp.MustCompile(`(?i)\b(function|class|api|database|schema|endpoint|algorithm|config|deploy|server|query|error|exception)\b`)
)

// Amygdala computes a message's importance score: a deterministic, pure
// function of its content and a small window of recent context. No
// teacher analog scores messages this way (the teacher takes Importance
// as caller-supplied); the weighted-composite-with-clamp shape is
// grounded on intelligent_decay.go's CompositeScore.
type Amygdala struct {
	cfg       config.ImportanceConfig
	dampening float64
	logger    *zap.Logger
}

// NewAmygdala builds an Amygdala from cfg and the configured importance
// dampener (heuristics.dampening, spec.md §6).
func NewAmygdala(cfg config.ImportanceConfig, dampening float64, logger *zap.Logger) *Amygdala {
	return &Amygdala{cfg: cfg, dampening: dampening, logger: logger.With(zap.String("component", "amygdala"))}
}

// ScoreInput carries everything Score needs beyond the message itself:
// a pure function still needs the recent window to compute novelty and
// a "now" anchor to compute recency, both supplied by the caller rather
// than read from a clock or a store.
type ScoreInput struct {
	Message types.Message
	// Recent holds up to cfg.NoveltyWindow prior messages in the same
	// conversation, most recent first.
	Recent []types.Message
	Now    time.Time
}

// Score computes msg's importance in [0, 1]. Deterministic: equal
// inputs always produce an equal score (spec.md I1).
func (a *Amygdala) Score(ctx context.Context, in ScoreInput) float64 {
	content := in.Message.Content

	base := a.cfg.BaseWeight
	decision := a.cfg.DecisionWeight * boolScore(decisionPattern.MatchString(content))
	question := a.cfg.QuestionWeight * boolScore(isUserQuestion(in.Message))
	novelty := a.cfg.NoveltyWeight * a.noveltyScore(content, in.Recent)
	sentiment := a.cfg.SentimentWeight * sentimentMagnitude(content)
	technical := a.cfg.TechnicalWeight * technicalDepth(content)
	recency := a.cfg.RecencyWeight * a.recencyFactor(in.Message.Timestamp, in.Now)

	sum := base + decision + question + novelty + sentiment + technical + recency
	dampened := sum * a.dampening

	if math.IsNaN(dampened) || dampened <= 0 {
		return a.cfg.Default
	}
	return types.Clamp01(dampened)
}

func boolScore(matched bool) float64 {
	if matched {
		return 1.0
	}
	return 0.0
}

// isUserQuestion reports whether msg is a question asked by the user
// role; questions are down-weighted relative to answers (spec.md §4.3),
// and only the user's own questions should count toward that discount.
func isUserQuestion(msg types.Message) bool {
	return msg.Role == types.RoleUser && questionPattern.MatchString(strings.TrimSpace(msg.Content))
}

// noveltyScore is 1 minus the highest word-overlap ratio against any
// message in the recent window — a message that repeats prior content
// verbatim scores low novelty.
func (a *Amygdala) noveltyScore(content string, recent []types.Message) float64 {
	if len(content) == 0 {
		return 0
	}
	words := tokenizeWords(content)
	if len(words) == 0 {
		return 0
	}

	window := recent
	if len(window) > a.cfg.NoveltyWindow {
		window = window[:a.cfg.NoveltyWindow]
	}

	maxOverlap := 0.0
	for _, m := range window {
		other := tokenizeWords(m.Content)
		overlap := wordOverlapRatio(words, other)
		if overlap > maxOverlap {
			maxOverlap = overlap
		}
	}
	return 1.0 - maxOverlap
}

func tokenizeWords(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()[]{}")
		if w != "" {
			out[w] = struct{}{}
		}
	}
	return out
}

func wordOverlapRatio(a, b map[string]struct{}) float64 {
	if len(a) == 0 {
		return 0
	}
	shared := 0
	for w := range a {
		if _, ok := b[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a))
}

// sentimentMagnitude is a lightweight lexicon-free proxy: the fraction
// of exclamation/emphasis markers plus presence of strong-sentiment
// punctuation, clamped to [0, 1]. It is a cheap, deterministic stand-in
// for Collaborator.AnalyzeSentiment so Score never depends on an
// external call; nothing in this package calls AnalyzeSentiment.
func sentimentMagnitude(content string) float64 {
	if content == "" {
		return 0
	}
	bangs := strings.Count(content, "!")
	caps := 0
	letters := 0
	for _, r := range content {
		if r >= 'A' && r <= 'Z' {
			caps++
			letters++
		} else if r >= 'a' && r <= 'z' {
			letters++
		}
	}
	capsRatio := 0.0
	if letters > 0 {
		capsRatio = float64(caps) / float64(letters)
	}
	score := float64(bangs)*0.2 + capsRatio
	return types.Clamp01(score)
}

func technicalDepth(content string) float64 {
	matches := technicalPattern.FindAllString(content, -1)
	if len(matches) == 0 {
		return 0
	}
	return types.Clamp01(float64(len(matches)) / 5.0)
}

// recencyFactor decays exponentially with the message's age at Now,
// with time constant cfg.RecencyTau.
func (a *Amygdala) recencyFactor(ts, now time.Time) float64 {
	if now.IsZero() || ts.IsZero() {
		return 1.0
	}
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	tau := a.cfg.RecencyTau
	if tau <= 0 {
		return 1.0
	}
	return math.Exp(-float64(age) / float64(tau))
}

// Bucket classifies a score into the thresholds spec.md §4.3 names.
func Bucket(score float64) string {
	switch {
	case score >= ThresholdCritical:
		return "critical"
	case score >= ThresholdHigh:
		return "high"
	case score >= ThresholdNormal:
		return "normal"
	default:
		return "low"
	}
}

// ShouldPromote reports whether score strictly exceeds the configured
// promotion threshold for Working->Semantic eligibility.
func (a *Amygdala) ShouldPromote(score float64) bool {
	return score > a.cfg.PromotionThreshold
}
