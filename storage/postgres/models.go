// Package postgres implements the four tier contracts against a
// networked Postgres instance via gorm.io/driver/postgres, with native
// vector search over the pgvector extension. Grounded on
// internal/database/pool.go's PoolManager (health loop, Ping/Stats/Close)
// and internal/migration/migrator.go (golang-migrate wiring), narrowed to
// the Postgres source/driver pair this module actually exercises.
package postgres

import "time"

// workingRow mirrors storage/sqlite's workingRow. No vector column here;
// the working tier never holds embeddings.
type workingRow struct {
	ID              string `gorm:"primaryKey"`
	UserID          string `gorm:"index:idx_working_conv"`
	ConversationID  string `gorm:"index:idx_working_conv"`
	Role            string
	Content         string
	Timestamp       time.Time `gorm:"index:idx_working_conv"`
	TagsJSON        string
	ImportanceScore float64
	AccessCount     int
	LastAccessed    time.Time
	EntitiesJSON    string
	ExpiresAt       *time.Time `gorm:"index"`
}

func (workingRow) TableName() string { return "working_messages" }

// semanticRow's Embedding column is pgvector(1536), created by the
// migration and populated/queried through raw SQL (embeddingLiteral/
// parseEmbeddingLiteral in vector.go) since GORM has no pgvector column type in
// this stack.
type semanticRow struct {
	ID                   string `gorm:"primaryKey"`
	UserID               string `gorm:"index:idx_semantic_user_key"`
	ConversationID       string
	Key                  string `gorm:"index:idx_semantic_user_key"`
	Value                string
	EntityType           string
	Importance           float64
	AccessCount          int
	LastAccessed         time.Time
	CreatedAt            time.Time
	SourceMessageIDsJSON string
	SoftDeleted          bool
}

func (semanticRow) TableName() string { return "semantic_facts" }

type episodicRow struct {
	ID             string `gorm:"primaryKey"`
	UserID         string `gorm:"index:idx_episodic_user"`
	ConversationID string
	EventType      string `gorm:"index:idx_episodic_type"`
	Content        string
	OccurredAt     time.Time `gorm:"index:idx_episodic_user"`
	DecayFactor    float64
	MetadataJSON   string
	Consolidated   bool `gorm:"index:idx_episodic_type"`
}

func (episodicRow) TableName() string { return "episodic_events" }

type proceduralRow struct {
	ID                  string `gorm:"primaryKey"`
	UserID              string `gorm:"index:idx_procedural_user"`
	Name                string
	Description         string
	TriggersJSON        string
	InstructionTemplate string
	ConfidenceThreshold float64
	UsageCount          int `gorm:"index:idx_procedural_user"`
	LastUsed            time.Time
	SuccessCount        int
	FailureCount        int
	CreatedAt           time.Time `gorm:"index:idx_procedural_user"`
}

func (proceduralRow) TableName() string { return "procedural_patterns" }
