// Package sqlite implements the embedded-file storage provider using
// gorm with the pure-Go glebarez/sqlite dialect — the same "no cgo"
// driver agentflow itself depends on for this use case. Grounded on
// internal/database/pool.go's PoolManager (health check, WithTransaction).
package sqlite

import "time"

// workingRow is the GORM model backing the working tier table.
type workingRow struct {
	ID                string `gorm:"primaryKey"`
	UserID            string `gorm:"index:idx_working_user_conv"`
	ConversationID    string `gorm:"index:idx_working_user_conv"`
	Role              string
	Content           string
	Timestamp         time.Time `gorm:"index"`
	TagsJSON          string
	ImportanceScore   float64
	AccessCount       int
	LastAccessed      time.Time
	EntitiesJSON      string
	ExpiresAt         *time.Time `gorm:"index"`
}

func (workingRow) TableName() string { return "working_messages" }

// semanticRow is the GORM model backing the semantic tier table.
type semanticRow struct {
	ID               string `gorm:"primaryKey"`
	UserID           string `gorm:"index:idx_semantic_user"`
	ConversationID   string
	Key              string `gorm:"index:idx_semantic_user_key"`
	Value            string
	EntityType       string
	Importance       float64
	AccessCount      int
	LastAccessed     time.Time
	EmbeddingJSON    string
	CreatedAt        time.Time `gorm:"index"`
	SourceMessageIDsJSON string
	SoftDeleted      bool `gorm:"index"`
}

func (semanticRow) TableName() string { return "semantic_facts" }

// episodicRow is the GORM model backing the episodic tier table.
type episodicRow struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"index:idx_episodic_user"`
	ConversationID string
	EventType      string `gorm:"index"`
	Content        string
	OccurredAt     time.Time `gorm:"index"`
	DecayFactor    float64
	EmbeddingJSON  string
	MetadataJSON   string
	Consolidated   bool `gorm:"index"`
}

func (episodicRow) TableName() string { return "episodic_events" }

// proceduralRow is the GORM model backing the procedural tier table.
type proceduralRow struct {
	ID                  string `gorm:"primaryKey"`
	UserID              string `gorm:"index"`
	Name                string
	Description         string
	TriggersJSON        string
	InstructionTemplate string
	ConfidenceThreshold float64
	UsageCount          int
	LastUsed            time.Time
	SuccessCount        int
	FailureCount        int
	CreatedAt           time.Time
}

func (proceduralRow) TableName() string { return "procedural_patterns" }
