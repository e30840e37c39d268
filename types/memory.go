// Package types defines the data model shared by every tier of the
// memory engine: messages, extracted facts, episodic events, procedural
// patterns, and the query-plan/context values the orchestrator produces.
package types

import "time"

// MemoryCategory names one of the four memory tiers.
type MemoryCategory string

const (
	Working    MemoryCategory = "working"
	Semantic   MemoryCategory = "semantic"
	Episodic   MemoryCategory = "episodic"
	Procedural MemoryCategory = "procedural"
)

// Role is the speaker of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// EntityType classifies an extracted entity or fact.
type EntityType string

const (
	EntityPerson     EntityType = "person"
	EntityPlace      EntityType = "place"
	EntityTechnology EntityType = "technology"
	EntityDecision   EntityType = "decision"
	EntityPreference EntityType = "preference"
	EntityConstraint EntityType = "constraint"
	EntityGoal       EntityType = "goal"
	EntityOther      EntityType = "other"
)

// Entity is a named thing extracted from message content.
type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
}

// Message is the atomic unit stored by the engine. It is owned by
// exactly one tier at a time; promotion preserves ID and UserID (I3).
type Message struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	ConversationID    string     `json:"conversation_id"`
	Role              Role       `json:"role"`
	Content           string     `json:"content"`
	Timestamp         time.Time  `json:"timestamp"`
	Tags              []string   `json:"tags,omitempty"`
	ImportanceScore   float64    `json:"importance_score"`
	AccessCount       int        `json:"access_count"`
	LastAccessed      time.Time  `json:"last_accessed"`
	ExtractedEntities []Entity   `json:"extracted_entities,omitempty"`
	PromotedTo        string     `json:"promoted_to,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
}

// Clamp01 returns v clamped to [0, 1]. Used to enforce I1/I6.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ExtractedFact is a short textual assertion derived from one or more
// messages and stored in the semantic tier.
type ExtractedFact struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ConversationID   string     `json:"conversation_id"`
	Key              string     `json:"key"`
	Value            string     `json:"value"`
	EntityType       EntityType `json:"entity_type"`
	Importance       float64    `json:"importance"`
	AccessCount      int        `json:"access_count"`
	LastAccessed     time.Time  `json:"last_accessed"`
	Embedding        []float32  `json:"embedding,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	SourceMessageIDs []string   `json:"source_message_ids,omitempty"`
	// SoftDeleted marks a fact collapsed into an episodic cluster during
	// Phase 2. Soft-deleted facts are never returned by reads (see
	// SPEC_FULL.md Open Question 2).
	SoftDeleted bool `json:"soft_deleted,omitempty"`
}

// EpisodicEvent is a time-anchored record stored in the episodic tier.
type EpisodicEvent struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id"`
	ConversationID string         `json:"conversation_id"`
	EventType      string         `json:"event_type"`
	Content        string         `json:"content"`
	OccurredAt     time.Time      `json:"occurred_at"`
	DecayFactor    float64        `json:"decay_factor"`
	Embedding      []float32      `json:"embedding,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	// Consolidated marks an event already folded into a procedural
	// pattern during Phase 3.
	Consolidated bool `json:"consolidated,omitempty"`
}

// TriggerKind names how a ProceduralPattern trigger is evaluated.
type TriggerKind string

const (
	TriggerKeyword  TriggerKind = "keyword"
	TriggerRegex    TriggerKind = "regex"
	TriggerSemantic TriggerKind = "semantic"
)

// Trigger is one matching rule in a ProceduralPattern's ordered trigger
// list. Embedding is populated only for TriggerSemantic triggers.
type Trigger struct {
	Kind      TriggerKind `json:"kind"`
	Pattern   string      `json:"pattern"`
	Embedding []float32   `json:"embedding,omitempty"`
}

// ProceduralPattern is a learned routine stored in the procedural tier.
type ProceduralPattern struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"user_id"`
	Name                string    `json:"name"`
	Description         string    `json:"description"`
	Triggers            []Trigger `json:"triggers"`
	InstructionTemplate string    `json:"instruction_template"`
	ConfidenceThreshold float64   `json:"confidence_threshold"`
	UsageCount          int       `json:"usage_count"`
	LastUsed            time.Time `json:"last_used"`
	SuccessCount        int       `json:"success_count"`
	FailureCount        int       `json:"failure_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// QueryKind is the query planner's classification of an incoming query.
type QueryKind string

const (
	QueryContinuation    QueryKind = "continuation"
	QueryFactRetrieval   QueryKind = "fact_retrieval"
	QueryDeepRecall      QueryKind = "deep_recall"
	QueryComplex         QueryKind = "complex"
	QueryProceduralTrigger QueryKind = "procedural_trigger"
)

// QueryPlan is the query planner's output: which tiers to read, how
// many tokens may be spent, and whether a procedural pattern applies.
type QueryPlan struct {
	Kind               QueryKind        `json:"kind"`
	Layers             []MemoryCategory `json:"layers"`
	SuggestedPatternID string           `json:"suggested_pattern_id,omitempty"`
	EstimatedTokens    int              `json:"estimated_tokens"`
	IncludeHistory     bool             `json:"include_history"`
	// Confidence is the surface-match confidence that produced Kind,
	// before any deferral to the external classifier. Exposed so the
	// planner's determinism is independently testable.
	Confidence float64 `json:"confidence"`
}

// MemoryContext is the bounded, assembled read result returned to a
// caller by RetrieveContext.
type MemoryContext struct {
	WorkingMessages  []Message           `json:"working_messages"`
	Facts            []ExtractedFact     `json:"facts"`
	ArchivedMessages []EpisodicEvent     `json:"archived_messages"`
	AppliedPattern   *ProceduralPattern  `json:"applied_pattern,omitempty"`
	QueryPlan        QueryPlan           `json:"query_plan"`
	TotalTokens      int                 `json:"total_tokens"`
	// Warnings carries partial-failure / deadline-miss annotations
	// (spec.md §4.5, §7) without failing the whole retrieval.
	Warnings []string `json:"warnings,omitempty"`
}
