package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cortexmem/engine/config"
	"github.com/cortexmem/engine/types"
)

// Orchestrator is the engine's public API: Store, Query/RetrieveContext,
// Consolidate, Forget, ListPatterns (spec.md §4.5). Grounded on
// enhanced_memory.go's EnhancedMemorySystem — constructor shape,
// config-driven enable flags, Save*/Load* method pairs — restructured
// around spec.md's exact operation set.
type Orchestrator struct {
	cfg          *config.Config
	repos        RepoBundle
	amygdala     *Amygdala
	prefrontal   *Prefrontal
	matcher      *PatternMatcher
	hippocampus  *Hippocampus
	collaborator Collaborator
	tokens       *TokenCounter
	metrics      *MetricsSink
	logger       *zap.Logger

	// novelMu is not locked by any method: Store reads a conversation's
	// recent window for Amygdala scoring without holding it, so
	// concurrent Store calls on one conversation are not serialized.
	novelMu sync.Mutex
}

// NewOrchestrator wires every component together.
func NewOrchestrator(cfg *config.Config, repos RepoBundle, collaborator Collaborator, metrics *MetricsSink, logger *zap.Logger) *Orchestrator {
	logger = logger.With(zap.String("component", "orchestrator"))
	tokens := NewTokenCounter()
	o := &Orchestrator{
		cfg:          cfg,
		repos:        repos,
		amygdala:     NewAmygdala(cfg.Importance, cfg.Heuristics.Dampening, logger),
		prefrontal:   NewPrefrontal(cfg.Retrieval, cfg.Heuristics, collaborator, tokens, logger),
		matcher:      NewPatternMatcher(repos.Procedural, collaborator, logger),
		collaborator: collaborator,
		tokens:       tokens,
		metrics:      metrics,
		logger:       logger,
	}
	o.hippocampus = NewHippocampus(cfg, repos, collaborator, logger)
	return o
}

// CreateConversation is a no-op existence marker: conversations are
// implicit in (user_id, conversation_id) pairs on messages, nothing to
// persist up front. Kept as an explicit call so callers have a single
// lifecycle entry point, matching enhanced_memory.go's session-open step.
func (o *Orchestrator) CreateConversation(ctx context.Context, userID, conversationID string) error {
	if userID == "" || conversationID == "" {
		return types.NewError(types.ErrValidation, "user_id and conversation_id are required")
	}
	return nil
}

// StoreInput is Store's argument: a new message plus the role/content
// the amygdala and entity extractor need.
type StoreInput struct {
	UserID         string
	ConversationID string
	Role           types.Role
	Content        string
	Tags           []string
}

// Store validates and scores a new message, writes it to the working
// tier, best-effort extracts entities, and triggers consolidation once
// the conversation crosses its message threshold (spec.md §4.5 Store).
func (o *Orchestrator) Store(ctx context.Context, in StoreInput) (*types.Message, error) {
	start := time.Now()
	defer func() { o.recordMetric("store", in.UserID, start) }()

	if err := validateStoreInput(in); err != nil {
		return nil, err
	}

	now := time.Now()
	recent, err := o.repos.Working.Recent(ctx, in.UserID, in.ConversationID, o.cfg.Importance.NoveltyWindow)
	if err != nil {
		o.logger.Warn("failed to load recent window for scoring, scoring without context", zap.Error(err))
		recent = nil
	}

	msg := types.Message{
		ID:             uuid.NewString(),
		UserID:         in.UserID,
		ConversationID: in.ConversationID,
		Role:           in.Role,
		Content:        in.Content,
		Timestamp:      now,
		Tags:           in.Tags,
	}
	msg.ImportanceScore = o.amygdala.Score(ctx, ScoreInput{Message: msg, Recent: recent, Now: now})

	ttl := now.Add(o.cfg.WorkingTier.TTL)
	msg.ExpiresAt = &ttl

	if o.collaborator != nil {
		if entities, err := o.collaborator.ExtractEntities(ctx, in.Content); err != nil {
			o.logger.Warn("entity extraction failed, storing message without entities", zap.Error(err))
		} else {
			msg.ExtractedEntities = entities
		}
	}

	if err := o.repos.Working.Append(ctx, msg); err != nil {
		return nil, err
	}

	count, err := o.repos.Working.CountByConversation(ctx, in.UserID, in.ConversationID)
	if err == nil && count > o.cfg.Consolidation.ThresholdMessages {
		go o.hippocampus.TriggerThreshold(context.Background(), in.UserID, in.ConversationID)
	}

	return &msg, nil
}

func validateStoreInput(in StoreInput) error {
	if in.UserID == "" || in.ConversationID == "" {
		return types.NewError(types.ErrValidation, "user_id and conversation_id are required")
	}
	if in.Content == "" {
		return types.NewError(types.ErrValidation, "content must not be empty")
	}
	if len(in.Content) > maxContentLength {
		return types.NewError(types.ErrValidation, "content exceeds maximum length")
	}
	if len(in.Tags) > maxTagCount {
		return types.NewError(types.ErrValidation, "too many tags")
	}
	switch in.Role {
	case types.RoleUser, types.RoleAssistant, types.RoleSystem:
	default:
		return types.NewError(types.ErrValidation, fmt.Sprintf("unknown role %q", in.Role))
	}
	return nil
}

// maxContentLength and maxTagCount are the Store validation limits
// spec.md §7 names.
const (
	maxContentLength = 10000
	maxTagCount      = 10
)

// GetMessagesOption narrows a GetMessages call (spec.md §6 GetMessages:
// before?/after?/layer?).
type GetMessagesOption func(*getMessagesOptions)

type getMessagesOptions struct {
	before *time.Time
	after  *time.Time
	layer  types.MemoryCategory
}

// WithBefore restricts results to messages timestamped strictly before t.
func WithBefore(t time.Time) GetMessagesOption {
	return func(o *getMessagesOptions) { o.before = &t }
}

// WithAfter restricts results to messages timestamped strictly after t.
func WithAfter(t time.Time) GetMessagesOption {
	return func(o *getMessagesOptions) { o.after = &t }
}

// WithLayer selects the tier GetMessages reads from. Only types.Working
// is supported: the other tiers hold facts/events/patterns, not
// types.Message, so there is no lossless conversion back to a message
// list for them.
func WithLayer(layer types.MemoryCategory) GetMessagesOption {
	return func(o *getMessagesOptions) { o.layer = layer }
}

// GetMessages returns a tier's recent messages for a conversation,
// optionally bounded by timestamp (spec.md §6 GetMessages).
func (o *Orchestrator) GetMessages(ctx context.Context, userID, conversationID string, limit int, opts ...GetMessagesOption) ([]types.Message, error) {
	cfg := getMessagesOptions{layer: types.Working}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.layer != types.Working {
		return nil, types.NewError(types.ErrValidation, fmt.Sprintf("GetMessages does not support layer %q", cfg.layer))
	}

	msgs, err := o.repos.Working.Recent(ctx, userID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	if cfg.before == nil && cfg.after == nil {
		return msgs, nil
	}
	filtered := make([]types.Message, 0, len(msgs))
	for _, m := range msgs {
		if cfg.before != nil && !m.Timestamp.Before(*cfg.before) {
			continue
		}
		if cfg.after != nil && !m.Timestamp.After(*cfg.after) {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered, nil
}

// Query plans and retrieves context in one call — a convenience wrapper
// spec.md §4.5 names alongside the lower-level RetrieveContext.
func (o *Orchestrator) Query(ctx context.Context, userID, conversationID, query string) (*types.MemoryContext, error) {
	return o.RetrieveContext(ctx, userID, conversationID, query)
}

// RetrieveContext plans the query, checks for an applicable procedural
// pattern, reads the planned tiers in parallel under a deadline, and
// assembles a token-bounded MemoryContext (spec.md §4.5 RetrieveContext,
// §4.4, §4.7).
func (o *Orchestrator) RetrieveContext(ctx context.Context, userID, conversationID, query string) (*types.MemoryContext, error) {
	start := time.Now()
	defer func() { o.recordMetric("retrieve_context", userID, start) }()

	plan := o.prefrontal.Plan(ctx, query)

	deadlineCtx, cancel := context.WithTimeout(ctx, o.cfg.Retrieval.Deadline)
	defer cancel()

	result := &types.MemoryContext{QueryPlan: plan}

	if pattern, err := o.matcher.Match(deadlineCtx, userID, query); err != nil {
		result.Warnings = append(result.Warnings, "pattern match failed: "+err.Error())
	} else if pattern != nil {
		result.AppliedPattern = pattern
		if err := o.matcher.RecordOutcome(deadlineCtx, pattern.ID, true); err != nil {
			result.Warnings = append(result.Warnings, "pattern usage update failed: "+err.Error())
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, layer := range plan.Layers {
		layer := layer
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.readLayer(deadlineCtx, userID, conversationID, query, layer, result, &mu)
		}()
	}
	wg.Wait()

	o.truncateToBudget(result, plan.EstimatedTokens)
	return result, nil
}

func (o *Orchestrator) readLayer(ctx context.Context, userID, conversationID, query string, layer types.MemoryCategory, result *types.MemoryContext, mu *sync.Mutex) {
	switch layer {
	case types.Working:
		msgs, err := o.repos.Working.Recent(ctx, userID, conversationID, o.cfg.Retrieval.WorkingRecent)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Warnings = append(result.Warnings, "working tier read failed: "+err.Error())
			return
		}
		result.WorkingMessages = msgs
	case types.Semantic:
		facts, err := o.readSemantic(ctx, userID, query)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Warnings = append(result.Warnings, "semantic tier read failed: "+err.Error())
			return
		}
		result.Facts = facts
	case types.Episodic:
		events, err := o.readEpisodic(ctx, userID, query)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			result.Warnings = append(result.Warnings, "episodic tier read failed: "+err.Error())
			return
		}
		result.ArchivedMessages = events
	case types.Procedural:
		// handled up front via PatternMatcher.Match
	}
}

func (o *Orchestrator) readSemantic(ctx context.Context, userID, query string) ([]types.ExtractedFact, error) {
	if o.collaborator != nil {
		emb, err := o.collaborator.Embed(ctx, query)
		if err == nil {
			facts, err := o.repos.Semantic.SearchByEmbedding(ctx, userID, emb, o.cfg.Retrieval.SemanticTopK, o.cfg.Retrieval.SimilarityThreshold)
			if err == nil {
				return facts, nil
			}
			if !types.IsCode(err, types.ErrCapabilityMissing) {
				return nil, err
			}
		}
	}
	return o.repos.Semantic.ByUser(ctx, userID, o.cfg.Retrieval.SemanticTopK)
}

func (o *Orchestrator) readEpisodic(ctx context.Context, userID, query string) ([]types.EpisodicEvent, error) {
	if o.collaborator != nil {
		emb, err := o.collaborator.Embed(ctx, query)
		if err == nil {
			events, err := o.repos.Episodic.SearchByEmbedding(ctx, userID, emb, o.cfg.Retrieval.EpisodicTopK, o.cfg.Retrieval.SimilarityThreshold)
			if err == nil {
				return events, nil
			}
			if !types.IsCode(err, types.ErrCapabilityMissing) {
				return nil, err
			}
		}
	}
	return o.repos.Episodic.ByUser(ctx, userID, o.cfg.Retrieval.EpisodicTopK)
}

// truncateToBudget drops entries from the end of each list in priority
// order (archived events first, then facts, then working messages,
// always keeping at least one working message) until the assembled
// context's token count fits budget.
func (o *Orchestrator) truncateToBudget(result *types.MemoryContext, budget int) {
	total := 0
	for _, m := range result.WorkingMessages {
		total += o.tokens.Count(m.Content)
	}
	for _, f := range result.Facts {
		total += o.tokens.Count(f.Value)
	}
	for _, e := range result.ArchivedMessages {
		total += o.tokens.Count(e.Content)
	}

	for total > budget && len(result.ArchivedMessages) > 0 {
		last := result.ArchivedMessages[len(result.ArchivedMessages)-1]
		total -= o.tokens.Count(last.Content)
		result.ArchivedMessages = result.ArchivedMessages[:len(result.ArchivedMessages)-1]
	}
	for total > budget && len(result.Facts) > 0 {
		last := result.Facts[len(result.Facts)-1]
		total -= o.tokens.Count(last.Value)
		result.Facts = result.Facts[:len(result.Facts)-1]
	}
	for total > budget && len(result.WorkingMessages) > 1 {
		last := result.WorkingMessages[len(result.WorkingMessages)-1]
		total -= o.tokens.Count(last.Content)
		result.WorkingMessages = result.WorkingMessages[:len(result.WorkingMessages)-1]
	}
	if total > budget {
		result.Warnings = append(result.Warnings, "context exceeds token budget after truncation")
	}
	result.TotalTokens = total
}

// ForgetMessage deletes a single message from the working tier. Not
// found is tolerated as a no-op (spec.md §7).
func (o *Orchestrator) ForgetMessage(ctx context.Context, messageID string) error {
	return o.repos.Working.DeleteByID(ctx, messageID)
}

// ForgetUser deletes every record for userID across all four tiers.
func (o *Orchestrator) ForgetUser(ctx context.Context, userID string) error {
	var errs []error
	if err := o.repos.Working.DeleteByUser(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := o.repos.Semantic.DeleteByUser(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := o.repos.Episodic.DeleteByUser(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if err := o.repos.Procedural.DeleteByUser(ctx, userID); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return types.NewError(types.ErrInternal, fmt.Sprintf("forget_user: %d of 4 tiers failed", len(errs))).WithCause(errs[0])
	}
	return nil
}

// Consolidate runs a manual consolidation cycle for (userID, conversationID).
func (o *Orchestrator) Consolidate(ctx context.Context, userID, conversationID string) (*ConsolidationStats, error) {
	start := time.Now()
	defer func() { o.recordMetric("consolidate", userID, start) }()
	return o.hippocampus.RunManual(ctx, userID, conversationID)
}

// ListPatterns returns every procedural pattern learned for userID.
func (o *Orchestrator) ListPatterns(ctx context.Context, userID string) ([]types.ProceduralPattern, error) {
	return o.repos.Procedural.ByUser(ctx, userID)
}

// StartBackgroundConsolidation starts the hippocampus's periodic ticker.
// Callers own the returned stop function's lifecycle.
func (o *Orchestrator) StartBackgroundConsolidation(ctx context.Context) func() {
	return o.hippocampus.StartPeriodic(ctx)
}

func (o *Orchestrator) recordMetric(op, userID string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.Record(op, userID, time.Since(start))
}
