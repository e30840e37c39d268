// Package memory implements the engine's four-tier hierarchy: the
// amygdala (importance scoring), prefrontal (query planning), pattern
// matcher (procedural triggers), hippocampus (consolidation), and the
// orchestrator that ties them together against a pluggable storage
// backend (spec.md §4).
package memory

import (
	"context"
	"time"

	"github.com/cortexmem/engine/types"
)

// WorkingRepo stores the working tier: a TTL-bounded, per-conversation
// recent-message buffer (spec.md §3 Working).
type WorkingRepo interface {
	Append(ctx context.Context, msg types.Message) error
	Recent(ctx context.Context, userID, convID string, limit int) ([]types.Message, error)
	ByID(ctx context.Context, id string) (*types.Message, error)
	Touch(ctx context.Context, id string) error
	CountByConversation(ctx context.Context, userID, convID string) (int, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	// Evict removes expired (TTL-lapsed) messages and returns how many
	// were removed, independent of any consolidation cycle.
	Evict(ctx context.Context, userID, convID string) (int, error)
	// Drain removes and returns every message for (userID, convID).
	// Used for bulk export/reset paths, not by the hippocampus's
	// Working->Semantic phase, which promotes selectively instead.
	Drain(ctx context.Context, userID, convID string) ([]types.Message, error)
	DeleteByUser(ctx context.Context, userID string) error
	DeleteByID(ctx context.Context, id string) error
}

// SemanticRepo stores the semantic tier: extracted facts with vector
// search (spec.md §3 Semantic).
type SemanticRepo interface {
	Put(ctx context.Context, fact types.ExtractedFact) error
	ByUser(ctx context.Context, userID string, limit int) ([]types.ExtractedFact, error)
	ByKey(ctx context.Context, userID, key string) (*types.ExtractedFact, error)
	// SearchByEmbedding returns the topK facts closest to query by
	// cosine similarity, at or above threshold. Drivers without a
	// vector index return types.ErrCapabilityMissing.
	SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.ExtractedFact, error)
	Touch(ctx context.Context, id string) error
	// GetByID returns a single fact (spec.md §4.1 get_by_id).
	GetByID(ctx context.Context, id string) (*types.ExtractedFact, error)
	// StaleForCluster returns facts eligible for Phase-2 clustering:
	// older than olderThan and not already soft-deleted.
	StaleForCluster(ctx context.Context, userID string, olderThan time.Time) ([]types.ExtractedFact, error)
	SoftDelete(ctx context.Context, ids []string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteByID(ctx context.Context, id string) error
}

// EpisodicRepo stores the episodic tier: time-ordered consolidated
// events (spec.md §3 Episodic).
type EpisodicRepo interface {
	Put(ctx context.Context, event types.EpisodicEvent) error
	ByUser(ctx context.Context, userID string, limit int) ([]types.EpisodicEvent, error)
	SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.EpisodicEvent, error)
	// ByTimeRange returns events within [start, end] for a conversation,
	// ordered by occurred_at (spec.md §4.1 by_time_range).
	ByTimeRange(ctx context.Context, userID, conversationID string, start, end time.Time) ([]types.EpisodicEvent, error)
	// ByType returns up to k most recent events of eventType (spec.md
	// §4.1 by_type).
	ByType(ctx context.Context, userID, eventType string, k int) ([]types.EpisodicEvent, error)
	// Search does a substring match over event content, returning up to
	// k results (spec.md §4.1 search(user, query, k)).
	Search(ctx context.Context, userID, query string, k int) ([]types.EpisodicEvent, error)
	// Get returns a single event by id (spec.md §4.1 get(id)).
	Get(ctx context.Context, id string) (*types.EpisodicEvent, error)
	// RecurringCandidates returns unconsolidated events grouped by
	// event_type that recur at least minOccurrences times within window,
	// for the hippocampus's Episodic->Procedural phase.
	RecurringCandidates(ctx context.Context, userID string, minOccurrences int, window time.Duration) (map[string][]types.EpisodicEvent, error)
	MarkConsolidated(ctx context.Context, ids []string) error
	UpdateDecay(ctx context.Context, id string, decayFactor float64) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteByID(ctx context.Context, id string) error
}

// ProceduralRepo stores the procedural tier: learned trigger->instruction
// patterns (spec.md §3 Procedural).
type ProceduralRepo interface {
	Put(ctx context.Context, pattern types.ProceduralPattern) error
	ByUser(ctx context.Context, userID string) ([]types.ProceduralPattern, error)
	ByID(ctx context.Context, id string) (*types.ProceduralPattern, error)
	// Touch records a pattern application: increments usage_count, sets
	// last_used, and bumps success_count/failure_count per outcome.
	Touch(ctx context.Context, id string, succeeded bool) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteByID(ctx context.Context, id string) error
}

// RepoBundle is the four per-tier repositories a storage provider wires
// up together (see storage/factory.go).
type RepoBundle struct {
	Working    WorkingRepo
	Semantic   SemanticRepo
	Episodic   EpisodicRepo
	Procedural ProceduralRepo
}

// Collaborator is the external LLM-backed surface the orchestrator and
// hippocampus call out to: embeddings, query classification, entity
// extraction, summarization/answering, and sentiment. Kept as a single
// narrow interface so a test double can implement it without a real
// model behind it.
type Collaborator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// ClassifyQuery is the prefrontal's second-stage deferral: returns
	// one of types.QueryKind's string values, or an error if the
	// classifier is unavailable.
	ClassifyQuery(ctx context.Context, query string) (types.QueryKind, error)
	ExtractEntities(ctx context.Context, content string) ([]types.Entity, error)
	// Summarize condenses a cluster of facts/messages into a single
	// episodic event's Content, used by the hippocampus's Phase 2.
	Summarize(ctx context.Context, texts []string) (string, error)
	AnswerWithContext(ctx context.Context, query string, ctxMsgs []types.Message) (string, error)
	// AnalyzeSentiment returns a value in [-1, 1].
	AnalyzeSentiment(ctx context.Context, content string) (float64, error)
}
