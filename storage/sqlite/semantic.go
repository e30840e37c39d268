package sqlite

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/cortexmem/engine/internal/blob"
	"github.com/cortexmem/engine/types"
)

// SemanticRepo implements memory.SemanticRepo over a GORM *gorm.DB. No
// pgvector-style index exists for sqlite, so SearchByEmbedding loads
// every candidate and scores it in Go — acceptable at embedded-file
// scale, flagged once per process via Driver.warnVectorFallbackOnce.
type SemanticRepo struct {
	db     *gorm.DB
	driver *Driver
}

func toSemanticRow(f types.ExtractedFact) (semanticRow, error) {
	emb, err := json.Marshal(f.Embedding)
	if err != nil {
		return semanticRow{}, err
	}
	srcIDs, err := json.Marshal(f.SourceMessageIDs)
	if err != nil {
		return semanticRow{}, err
	}
	return semanticRow{
		ID: f.ID, UserID: f.UserID, ConversationID: f.ConversationID, Key: f.Key, Value: f.Value,
		EntityType: string(f.EntityType), Importance: f.Importance, AccessCount: f.AccessCount,
		LastAccessed: f.LastAccessed, EmbeddingJSON: string(emb), CreatedAt: f.CreatedAt,
		SourceMessageIDsJSON: string(srcIDs), SoftDeleted: f.SoftDeleted,
	}, nil
}

func fromSemanticRow(r semanticRow) types.ExtractedFact {
	var emb []float32
	_ = json.Unmarshal([]byte(r.EmbeddingJSON), &emb)
	var srcIDs []string
	_ = json.Unmarshal([]byte(r.SourceMessageIDsJSON), &srcIDs)
	return types.ExtractedFact{
		ID: r.ID, UserID: r.UserID, ConversationID: r.ConversationID, Key: r.Key, Value: r.Value,
		EntityType: types.EntityType(r.EntityType), Importance: r.Importance, AccessCount: r.AccessCount,
		LastAccessed: r.LastAccessed, Embedding: emb, CreatedAt: r.CreatedAt,
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
		if err == gorm.ErrRecordNotFound {
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
		if err == gorm.ErrRecordNotFound {
			return nil, types.NewError(types.ErrNotFound, "fact not found")
		}
		return nil, types.NewError(types.ErrUnavailable, "read fact").WithCause(err).WithRetryable(true)
	}
	fact := fromSemanticRow(row)
	return &fact, nil
}

// SearchByEmbedding loads every non-soft-deleted fact with an embedding
// and ranks in Go (exhaustive scan), warning once per process.
func (r *SemanticRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.ExtractedFact, error) {
	if r.driver != nil {
		r.driver.warnVectorFallbackOnce()
	}
	var rows []semanticRow
	if err := r.db.WithContext(ctx).Where("user_id = ? AND soft_deleted = ? AND embedding_json <> ''", userID, false).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrUnavailable, "search facts").WithCause(err).WithRetryable(true)
	}

	type scored struct {
		fact types.ExtractedFact
		sim  float64
	}
	var candidates []scored
	for _, row := range rows {
		fact := fromSemanticRow(row)
		if len(fact.Embedding) == 0 {
			continue
		}
		sim, err := blob.CosineSimilarity(query, fact.Embedding)
		if err != nil {
			continue
		}
		if sim >= threshold {
			candidates = append(candidates, scored{fact, sim})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	out := make([]types.ExtractedFact, len(candidates))
	for i, c := range candidates {
		out[i] = c.fact
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
