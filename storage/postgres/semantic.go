package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cortexmem/engine/types"
)

// SemanticRepo implements memory.SemanticRepo over Postgres with the
// pgvector extension. Unlike storage/sqlite's exhaustive scan,
// SearchByEmbedding pushes the ranking into the database via the
// `<=>` cosine-distance operator against an HNSW index (see
// migrations/000001_init_schema.up.sql) — no once-only capability
// warning is needed here because this driver actually has a native
// vector index.
type SemanticRepo struct {
	db        *gorm.DB
	vectorDim int
}

func toSemanticRow(f types.ExtractedFact) (semanticRow, error) {
	srcIDs, err := json.Marshal(f.SourceMessageIDs)
	if err != nil {
		return semanticRow{}, err
	}
	return semanticRow{
		ID: f.ID, UserID: f.UserID, ConversationID: f.ConversationID, Key: f.Key, Value: f.Value,
		EntityType: string(f.EntityType), Importance: f.Importance, AccessCount: f.AccessCount,
		LastAccessed: f.LastAccessed, CreatedAt: f.CreatedAt,
		SourceMessageIDsJSON: string(srcIDs), SoftDeleted: f.SoftDeleted,
	}, nil
}

func fromSemanticRow(r semanticRow) types.ExtractedFact {
	var srcIDs []string
	_ = json.Unmarshal([]byte(r.SourceMessageIDsJSON), &srcIDs)
	return types.ExtractedFact{
		ID: r.ID, UserID: r.UserID, ConversationID: r.ConversationID, Key: r.Key, Value: r.Value,
		EntityType: types.EntityType(r.EntityType), Importance: r.Importance, AccessCount: r.AccessCount,
		LastAccessed: r.LastAccessed, CreatedAt: r.CreatedAt,
		SourceMessageIDs: srcIDs, SoftDeleted: r.SoftDeleted,
	}
}

func (r *SemanticRepo) Put(ctx context.Context, fact types.ExtractedFact) error {
	row, err := toSemanticRow(fact)
	if err != nil {
		return types.NewError(types.ErrInternal, "marshal fact").WithCause(err)
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "put fact").WithCause(err).WithRetryable(true)
	}
	if len(fact.Embedding) > 0 {
		err := r.db.WithContext(ctx).Exec(
			"UPDATE semantic_facts SET embedding = ? WHERE id = ?", embeddingLiteral(fact.Embedding), fact.ID,
		).Error
		if err != nil {
			return types.NewError(types.ErrUnavailable, "put fact embedding").WithCause(err).WithRetryable(true)
		}
	}
	return nil
}

func (r *SemanticRepo) ByUser(ctx context.Context, userID string, limit int) ([]types.ExtractedFact, error) {
	var rows []semanticRow
	q := r.db.WithContext(ctx).Where("user_id = ? AND soft_deleted = ?", userID, false).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read facts").WithCause(err).WithRetryable(true)
	}
	out := make([]types.ExtractedFact, len(rows))
	for i, row := range rows {
		out[i] = fromSemanticRow(row)
	}
	return out, nil
}

func (r *SemanticRepo) ByKey(ctx context.Context, userID, key string) (*types.ExtractedFact, error) {
	var row semanticRow
	err := r.db.WithContext(ctx).Where("user_id = ? AND key = ? AND soft_deleted = ?", userID, key, false).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "fact not found")
		}
		return nil, types.NewError(types.ErrUnavailable, "read fact").WithCause(err).WithRetryable(true)
	}
	fact := fromSemanticRow(row)
	return &fact, nil
}

func (r *SemanticRepo) GetByID(ctx context.Context, id string) (*types.ExtractedFact, error) {
	var row semanticRow
	err := r.db.WithContext(ctx).Where("id = ? AND soft_deleted = ?", id, false).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "fact not found")
		}
		return nil, types.NewError(types.ErrUnavailable, "read fact").WithCause(err).WithRetryable(true)
	}
	fact := fromSemanticRow(row)
	return &fact, nil
}

// searchRow carries the id and distance columns read back from the raw
// pgvector query, joined against the full row afterward.
type searchRow struct {
	ID       string
	Distance float64
}

func (r *SemanticRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.ExtractedFact, error) {
	if len(query) == 0 {
		return nil, types.NewError(types.ErrValidation, "search embedding must not be empty")
	}
	if topK <= 0 {
		topK = 10
	}
	var hits []searchRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, embedding <=> ? AS distance FROM semantic_facts
		 WHERE user_id = ? AND soft_deleted = FALSE AND embedding IS NOT NULL
		 ORDER BY embedding <=> ? ASC LIMIT ?`,
		embeddingLiteral(query), userID, embeddingLiteral(query), topK,
	).Scan(&hits).Error
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "search facts").WithCause(err).WithRetryable(true)
	}

	out := make([]types.ExtractedFact, 0, len(hits))
	for _, h := range hits {
		if 1-h.Distance < threshold {
			continue
		}
		var row semanticRow
		if err := r.db.WithContext(ctx).Where("id = ?", h.ID).First(&row).Error; err != nil {
			continue
		}
		out = append(out, fromSemanticRow(row))
	}
	return out, nil
}

func (r *SemanticRepo) Touch(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&semanticRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"access_count": gorm.Expr("access_count + 1"), "last_accessed": time.Now()}).Error
	if err != nil {
		return types.NewError(types.ErrUnavailable, "touch fact").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *SemanticRepo) StaleForCluster(ctx context.Context, userID string, olderThan time.Time) ([]types.ExtractedFact, error) {
	var rows []semanticRow
	err := r.db.WithContext(ctx).Where("user_id = ? AND soft_deleted = ? AND created_at < ?", userID, false, olderThan).
		Order("created_at ASC").Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read stale facts").WithCause(err).WithRetryable(true)
	}
	out := make([]types.ExtractedFact, len(rows))
	for i, row := range rows {
		out[i] = fromSemanticRow(row)
	}
	return out, nil
}

func (r *SemanticRepo) SoftDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&semanticRow{}).Where("id IN ?", ids).Update("soft_deleted", true).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "soft delete facts").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *SemanticRepo) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&semanticRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete user facts").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *SemanticRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&semanticRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete fact").WithCause(err).WithRetryable(true)
	}
	return nil
}
