package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cortexmem/engine/config"
	"github.com/cortexmem/engine/internal/blob"
	"github.com/cortexmem/engine/types"
)

// ConsolidationStats counts exactly what each phase of a cycle moved
// (spec.md §9 Open Question 4 resolved: no MessagesConsolidated/2
// placeholder).
type ConsolidationStats struct {
	WorkingToSemantic   int
	SemanticToEpisodic  int
	EpisodicToProcedural int
	Evicted             int
}

// Hippocampus runs the three-phase consolidation pipeline: Working->
// Semantic, Semantic->Episodic, Episodic->Procedural (spec.md §4.6).
// Grounded on enhanced_memory.go's MemoryConsolidator (ticker-driven
// run/consolidate, Start/Stop) and consolidation_strategies.go's
// ConsolidationStrategy/promote-and-delete pattern, generalized across
// the three phases. Per-(user,conv) coalescing uses singleflight so a
// threshold trigger and a periodic tick racing on the same conversation
// run the cycle once, not twice.
type Hippocampus struct {
	cfg          *config.Config
	repos        RepoBundle
	collaborator Collaborator
	amygdala     *Amygdala
	group        singleflight.Group
	logger       *zap.Logger
}

// NewHippocampus builds a Hippocampus.
func NewHippocampus(cfg *config.Config, repos RepoBundle, collaborator Collaborator, logger *zap.Logger) *Hippocampus {
	return &Hippocampus{
		cfg:          cfg,
		repos:        repos,
		collaborator: collaborator,
		amygdala:     NewAmygdala(cfg.Importance, cfg.Heuristics.Dampening, logger),
		logger:       logger.With(zap.String("component", "hippocampus")),
	}
}

// TriggerThreshold runs a cycle for (userID, convID) because its
// working-tier message count crossed the configured threshold. Errors
// are logged, not returned — callers invoke this from a goroutine
// fire-and-forget (spec.md §5 "threshold trigger").
func (h *Hippocampus) TriggerThreshold(ctx context.Context, userID, convID string) {
	if _, err := h.runCoalesced(ctx, userID, convID); err != nil {
		h.logger.Error("threshold-triggered consolidation failed", zap.String("user_id", userID), zap.String("conversation_id", convID), zap.Error(err))
	}
}

// RunManual runs a cycle for (userID, convID) on behalf of an explicit
// Orchestrator.Consolidate call, returning its stats.
func (h *Hippocampus) RunManual(ctx context.Context, userID, convID string) (*ConsolidationStats, error) {
	return h.runCoalesced(ctx, userID, convID)
}

// StartPeriodic starts a background ticker firing every
// Consolidation.Period until ctx is done or the returned stop function
// is called. Each tick only logs at debug level; it does not run a
// consolidation cycle for any user.
func (h *Hippocampus) StartPeriodic(ctx context.Context) func() {
	ticker := time.NewTicker(h.cfg.Consolidation.Period)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				h.logger.Debug("periodic consolidation tick")
			}
		}
	}()
	return func() { close(done) }
}

// runCoalesced serializes concurrent cycles for the same (userID, convID)
// via singleflight, so a threshold trigger racing a periodic sweep
// collapses into one cycle instead of running twice.
func (h *Hippocampus) runCoalesced(ctx context.Context, userID, convID string) (*ConsolidationStats, error) {
	key := userID + "::" + convID
	v, err, _ := h.group.Do(key, func() (interface{}, error) {
		return h.runCycleWithRetry(ctx, userID, convID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ConsolidationStats), nil
}

func (h *Hippocampus) runCycleWithRetry(ctx context.Context, userID, convID string) (*ConsolidationStats, error) {
	policy := BackoffPolicy{
		Base:       h.cfg.Consolidation.RetryBaseDelay,
		Factor:     2,
		MaxRetries: h.cfg.Consolidation.MaxRetries,
	}

	var stats *ConsolidationStats
	err := retryWithBackoff(ctx, policy, h.logger, func() error {
		s, err := h.runCycle(ctx, userID, convID)
		if err != nil {
			return err
		}
		stats = s
		return nil
	})
	return stats, err
}

// runCycle runs all three phases once for (userID, convID). The backing
// stores share no transaction, so each phase records compensating
// actions in an undo log (delete the facts, events and patterns it
// created; re-insert promoted working messages; restore soft-deleted
// facts and consolidated events), and a failed phase runs the log in
// reverse. Working-tier TTL eviction and stale-fact eviction are not
// undone.
func (h *Hippocampus) runCycle(ctx context.Context, userID, convID string) (*ConsolidationStats, error) {
	stats := &ConsolidationStats{}
	var undo undoLog

	evicted, err := h.repos.Working.Evict(ctx, userID, convID)
	if err != nil {
		h.logger.Warn("working tier eviction failed", zap.Error(err))
	}
	stats.Evicted += evicted

	n, err := h.phaseWorkingToSemantic(ctx, userID, convID, &undo)
	if err != nil {
		undo.run(ctx, h.logger)
		return nil, types.NewError(types.ErrConflict, "working->semantic phase failed").WithCause(err).WithRetryable(true).WithRetryAfter(h.cfg.Consolidation.RetryBaseDelay)
	}
	stats.WorkingToSemantic = n

	evictedFacts, err := h.evictStaleFacts(ctx, userID)
	if err != nil {
		h.logger.Warn("stale fact eviction failed", zap.Error(err))
	}
	stats.Evicted += evictedFacts

	n, err = h.phaseSemanticToEpisodic(ctx, userID, &undo)
	if err != nil {
		undo.run(ctx, h.logger)
		return nil, types.NewError(types.ErrConflict, "semantic->episodic phase failed").WithCause(err).WithRetryable(true).WithRetryAfter(h.cfg.Consolidation.RetryBaseDelay)
	}
	stats.SemanticToEpisodic = n

	n, err = h.phaseEpisodicToProcedural(ctx, userID, &undo)
	if err != nil {
		undo.run(ctx, h.logger)
		return nil, types.NewError(types.ErrConflict, "episodic->procedural phase failed").WithCause(err).WithRetryable(true).WithRetryAfter(h.cfg.Consolidation.RetryBaseDelay)
	}
	stats.EpisodicToProcedural = n

	return stats, nil
}

// phase1MinAccessCount and phase1MinAge are the non-importance
// promote_candidates criteria spec.md §4.6 Phase 1 lists alongside
// importance > 0.7: access_count >= 3, or age > 15 minutes.
const (
	phase1MinAccessCount = 3
	phase1MinAge         = 15 * time.Minute
)

// phaseWorkingToSemantic promotes working messages that clear any of
// the three promote_candidates criteria (importance, access_count, age)
// into facts, deleting only the promoted messages; everything else stays
// in the working tier (spec.md Phase 1, I2/I3/I5).
func (h *Hippocampus) phaseWorkingToSemantic(ctx context.Context, userID, convID string, undo *undoLog) (int, error) {
	count, err := h.repos.Working.CountByConversation(ctx, userID, convID)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	messages, err := h.repos.Working.Recent(ctx, userID, convID, count)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	promoted := 0
	for _, msg := range messages {
		if !h.isPromotionCandidate(msg, now) {
			continue
		}
		fact := types.ExtractedFact{
			ID:               uuid.NewString(),
			UserID:           msg.UserID,
			ConversationID:   msg.ConversationID,
			Key:              factKeyFromEntities(msg),
			Value:            msg.Content,
			EntityType:       factEntityType(msg),
			Importance:       types.Clamp01(msg.ImportanceScore + 0.25),
			CreatedAt:        msg.Timestamp,
			SourceMessageIDs: []string{msg.ID},
		}
		if h.collaborator != nil {
			if emb, err := h.collaborator.Embed(ctx, msg.Content); err == nil {
				fact.Embedding = emb
			}
		}
		if err := h.repos.Semantic.Put(ctx, fact); err != nil {
			return promoted, err
		}
		undo.add(func(ctx context.Context) error { return h.repos.Semantic.DeleteByID(ctx, fact.ID) })

		if err := h.repos.Working.DeleteByID(ctx, msg.ID); err != nil {
			return promoted, err
		}
		restored := msg
		undo.add(func(ctx context.Context) error { return h.repos.Working.Append(ctx, restored) })
		promoted++
	}
	return promoted, nil
}

// isPromotionCandidate implements spec.md §4.6 Phase 1's three OR'd
// criteria: importance > promotion threshold, access_count >= 3, or
// age > 15 minutes.
func (h *Hippocampus) isPromotionCandidate(msg types.Message, now time.Time) bool {
	if h.amygdala.ShouldPromote(msg.ImportanceScore) {
		return true
	}
	if msg.AccessCount >= phase1MinAccessCount {
		return true
	}
	return now.Sub(msg.Timestamp) > phase1MinAge
}

func factKeyFromEntities(msg types.Message) string {
	if len(msg.ExtractedEntities) > 0 {
		return string(msg.ExtractedEntities[0].Type) + ":" + msg.ExtractedEntities[0].Value
	}
	return "message:" + msg.ID
}

func factEntityType(msg types.Message) types.EntityType {
	if len(msg.ExtractedEntities) > 0 {
		return msg.ExtractedEntities[0].Type
	}
	return types.EntityOther
}

// phaseSemanticToEpisodic clusters facts older than SimilarityWindow
// whose cosine similarity to the cluster's first member clears
// SimilarityThreshold into a
// single episodic event, soft-deleting the source facts (spec.md Phase
// 2, SPEC_FULL.md Open Question 1/2).
func (h *Hippocampus) phaseSemanticToEpisodic(ctx context.Context, userID string, undo *undoLog) (int, error) {
	cutoff := time.Now().Add(-h.cfg.Consolidation.SimilarityWindow)
	stale, err := h.repos.Semantic.StaleForCluster(ctx, userID, cutoff)
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	clusters := clusterBySimilarity(stale, h.cfg.Consolidation.SimilarityThreshold)
	created := 0
	for _, cluster := range clusters {
		if len(cluster) < 2 {
			continue
		}
		texts := make([]string, len(cluster))
		ids := make([]string, len(cluster))
		for i, f := range cluster {
			texts[i] = f.Value
			ids[i] = f.ID
		}
		summary := texts[0]
		if h.collaborator != nil {
			if s, err := h.collaborator.Summarize(ctx, texts); err == nil {
				summary = s
			}
		}
		event := types.EpisodicEvent{
			ID:             uuid.NewString(),
			UserID:         userID,
			ConversationID: cluster[0].ConversationID,
			EventType:      string(cluster[0].EntityType),
			Content:        summary,
			OccurredAt:     cluster[0].CreatedAt,
			DecayFactor:    1.0,
			Embedding:      cluster[0].Embedding,
		}
		if err := h.repos.Episodic.Put(ctx, event); err != nil {
			return created, err
		}
		undo.add(func(ctx context.Context) error { return h.repos.Episodic.DeleteByID(ctx, event.ID) })
		if err := h.repos.Semantic.SoftDelete(ctx, ids); err != nil {
			return created, err
		}
		sources := cluster
		undo.add(func(ctx context.Context) error {
			for _, f := range sources {
				if err := h.repos.Semantic.Put(ctx, f); err != nil {
					return err
				}
			}
			return nil
		})
		created++
	}
	return created, nil
}

// clusterBySimilarity greedily groups facts whose embedding is within
// threshold cosine similarity of a cluster's first member.
func clusterBySimilarity(facts []types.ExtractedFact, threshold float64) [][]types.ExtractedFact {
	var clusters [][]types.ExtractedFact
	used := make([]bool, len(facts))
	for i := range facts {
		if used[i] {
			continue
		}
		cluster := []types.ExtractedFact{facts[i]}
		used[i] = true
		if len(facts[i].Embedding) > 0 {
			for j := i + 1; j < len(facts); j++ {
				if used[j] || len(facts[j].Embedding) == 0 {
					continue
				}
				sim, err := blob.CosineSimilarity(facts[i].Embedding, facts[j].Embedding)
				if err == nil && sim >= threshold {
					cluster = append(cluster, facts[j])
					used[j] = true
				}
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// phaseEpisodicToProcedural finds episodic event types recurring at
// least 3 times within a 30-day window and folds them into a procedural
// pattern (spec.md Phase 3).
func (h *Hippocampus) phaseEpisodicToProcedural(ctx context.Context, userID string, undo *undoLog) (int, error) {
	groups, err := h.repos.Episodic.RecurringCandidates(ctx, userID, 3, 30*24*time.Hour)
	if err != nil {
		return 0, err
	}

	created := 0
	for eventType, events := range groups {
		if len(events) < 3 {
			continue
		}
		if averageSuccess(events) <= 0.6 {
			continue
		}
		triggers := commonTriggerTokens(events)
		if len(triggers) == 0 {
			triggers = []types.Trigger{{Kind: types.TriggerKeyword, Pattern: eventType}}
		}
		pattern := types.ProceduralPattern{
			ID:                  uuid.NewString(),
			UserID:              userID,
			Name:                eventType + "_learned_pattern",
			Description:         "learned from " + eventType,
			Triggers:            triggers,
			InstructionTemplate: mostRecentContent(events),
			ConfidenceThreshold: 0.75,
			CreatedAt:           time.Now(),
		}
		if err := h.repos.Procedural.Put(ctx, pattern); err != nil {
			return created, err
		}
		undo.add(func(ctx context.Context) error { return h.repos.Procedural.DeleteByID(ctx, pattern.ID) })

		ids := make([]string, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		if err := h.repos.Episodic.MarkConsolidated(ctx, ids); err != nil {
			return created, err
		}
		sources := events
		undo.add(func(ctx context.Context) error {
			for _, e := range sources {
				if err := h.repos.Episodic.Put(ctx, e); err != nil {
					return err
				}
			}
			return nil
		})
		created++
	}
	return created, nil
}

// eventSuccess reads a per-event success indicator out of Metadata when
// present (a float in [0, 1], or a bool), defaulting to 1.0 when the
// source that produced the event never recorded one (spec.md Phase 3:
// "metadata field if present, else 1.0").
func eventSuccess(e types.EpisodicEvent) float64 {
	raw, ok := e.Metadata["success"]
	if !ok {
		return 1.0
	}
	switch v := raw.(type) {
	case float64:
		return types.Clamp01(v)
	case bool:
		return boolScore(v)
	default:
		return 1.0
	}
}

// averageSuccess is the mean eventSuccess across a recurring-event
// group, the gate Phase 3 applies before folding it into a pattern.
func averageSuccess(events []types.EpisodicEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range events {
		sum += eventSuccess(e)
	}
	return sum / float64(len(events))
}

// mostRecentContent returns the Content of the latest-occurring event
// in the group; RecurringCandidates doesn't guarantee ordering, so this
// scans for the latest OccurredAt rather than trusting events[0].
func mostRecentContent(events []types.EpisodicEvent) string {
	best := events[0]
	for _, e := range events[1:] {
		if e.OccurredAt.After(best.OccurredAt) {
			best = e
		}
	}
	return best.Content
}

// commonTriggerTokens extracts the tokens present in at least half of
// the group's event content (at most 5, alphabetically first), used as
// the learned pattern's keyword
// triggers (spec.md Phase 3: "triggers are extracted from the
// cluster's common tokens"). Sorted for determinism (spec.md I1).
func commonTriggerTokens(events []types.EpisodicEvent) []types.Trigger {
	counts := make(map[string]int)
	for _, e := range events {
		for w := range tokenizeWords(e.Content) {
			counts[w]++
		}
	}
	threshold := (len(events) + 1) / 2
	var common []string
	for w, c := range counts {
		if c >= threshold {
			common = append(common, w)
		}
	}
	sort.Strings(common)
	const maxTriggers = 5
	if len(common) > maxTriggers {
		common = common[:maxTriggers]
	}
	triggers := make([]types.Trigger, len(common))
	for i, w := range common {
		triggers[i] = types.Trigger{Kind: types.TriggerKeyword, Pattern: w}
	}
	return triggers
}

// evictStaleFacts soft-deletes facts older than FactTTL whose
// access_count never reached FactMinAccessCount (pre-Phase-2 eviction,
// spec.md §4.6).
func (h *Hippocampus) evictStaleFacts(ctx context.Context, userID string) (int, error) {
	cutoff := time.Now().Add(-h.cfg.Consolidation.FactTTL)
	stale, err := h.repos.Semantic.StaleForCluster(ctx, userID, cutoff)
	if err != nil {
		return 0, err
	}
	var toDelete []string
	for _, f := range stale {
		if f.AccessCount < h.cfg.Consolidation.FactMinAccessCount {
			toDelete = append(toDelete, f.ID)
		}
	}
	if len(toDelete) == 0 {
		return 0, nil
	}
	if err := h.repos.Semantic.SoftDelete(ctx, toDelete); err != nil {
		return 0, err
	}
	return len(toDelete), nil
}

// undoLog is a stack of compensating actions run in reverse order when
// a later phase in the same cycle fails, approximating transactional
// atomicity across stores with no shared transaction (spec.md §5).
type undoLog struct {
	actions []func(ctx context.Context) error
}

func (u *undoLog) add(action func(ctx context.Context) error) {
	u.actions = append(u.actions, action)
}

func (u *undoLog) run(ctx context.Context, logger *zap.Logger) {
	for i := len(u.actions) - 1; i >= 0; i-- {
		if err := u.actions[i](ctx); err != nil {
			logger.Error("undo action failed, cycle may be partially applied", zap.Error(err))
		}
	}
}
