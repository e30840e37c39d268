package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cortexmem/engine/types"
)

// EpisodicRepo implements memory.EpisodicRepo over Postgres, with the
// same pgvector-backed SearchByEmbedding approach as SemanticRepo.
type EpisodicRepo struct {
	db        *gorm.DB
	vectorDim int
}

func toEpisodicRow(e types.EpisodicEvent) (episodicRow, error) {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return episodicRow{}, err
	}
	return episodicRow{
		ID: e.ID, UserID: e.UserID, ConversationID: e.ConversationID, EventType: e.EventType,
		Content: e.Content, OccurredAt: e.OccurredAt, DecayFactor: e.DecayFactor,
		MetadataJSON: string(meta), Consolidated: e.Consolidated,
	}, nil
}

func fromEpisodicRow(r episodicRow) types.EpisodicEvent {
	var meta map[string]any
	_ = json.Unmarshal([]byte(r.MetadataJSON), &meta)
	return types.EpisodicEvent{
		ID: r.ID, UserID: r.UserID, ConversationID: r.ConversationID, EventType: r.EventType,
		Content: r.Content, OccurredAt: r.OccurredAt, DecayFactor: r.DecayFactor,
		Metadata: meta, Consolidated: r.Consolidated,
	}
}

func (r *EpisodicRepo) Put(ctx context.Context, event types.EpisodicEvent) error {
	row, err := toEpisodicRow(event)
	if err != nil {
		return types.NewError(types.ErrInternal, "marshal event").WithCause(err)
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "put event").WithCause(err).WithRetryable(true)
	}
	if len(event.Embedding) > 0 {
		err := r.db.WithContext(ctx).Exec(
			"UPDATE episodic_events SET embedding = ? WHERE id = ?", embeddingLiteral(event.Embedding), event.ID,
		).Error
		if err != nil {
			return types.NewError(types.ErrUnavailable, "put event embedding").WithCause(err).WithRetryable(true)
		}
	}
	return nil
}

func (r *EpisodicRepo) ByUser(ctx context.Context, userID string, limit int) ([]types.EpisodicEvent, error) {
	var rows []episodicRow
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read events").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(rows))
	for i, row := range rows {
		out[i] = fromEpisodicRow(row)
	}
	return out, nil
}

func (r *EpisodicRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.EpisodicEvent, error) {
	if len(query) == 0 {
		return nil, types.NewError(types.ErrValidation, "search embedding must not be empty")
	}
	if topK <= 0 {
		topK = 10
	}
	var hits []searchRow
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, embedding <=> ? AS distance FROM episodic_events
		 WHERE user_id = ? AND embedding IS NOT NULL
		 ORDER BY embedding <=> ? ASC LIMIT ?`,
		embeddingLiteral(query), userID, embeddingLiteral(query), topK,
	).Scan(&hits).Error
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "search events").WithCause(err).WithRetryable(true)
	}

	out := make([]types.EpisodicEvent, 0, len(hits))
	for _, h := range hits {
		if 1-h.Distance < threshold {
			continue
		}
		var row episodicRow
		if err := r.db.WithContext(ctx).Where("id = ?", h.ID).First(&row).Error; err != nil {
			continue
		}
		out = append(out, fromEpisodicRow(row))
	}
	return out, nil
}

func (r *EpisodicRepo) ByTimeRange(ctx context.Context, userID, conversationID string, start, end time.Time) ([]types.EpisodicEvent, error) {
	var rows []episodicRow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ? AND occurred_at BETWEEN ? AND ?", userID, conversationID, start, end).
		Order("occurred_at ASC").Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read events by time range").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(rows))
	for i, row := range rows {
		out[i] = fromEpisodicRow(row)
	}
	return out, nil
}

func (r *EpisodicRepo) ByType(ctx context.Context, userID, eventType string, k int) ([]types.EpisodicEvent, error) {
	var rows []episodicRow
	q := r.db.WithContext(ctx).Where("user_id = ? AND event_type = ?", userID, eventType).Order("occurred_at DESC")
	if k > 0 {
		q = q.Limit(k)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read events by type").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(rows))
	for i, row := range rows {
		out[i] = fromEpisodicRow(row)
	}
	return out, nil
}

func (r *EpisodicRepo) Search(ctx context.Context, userID, query string, k int) ([]types.EpisodicEvent, error) {
	var rows []episodicRow
	q := r.db.WithContext(ctx).Where("user_id = ? AND content ILIKE ?", userID, "%"+query+"%").Order("occurred_at DESC")
	if k > 0 {
		q = q.Limit(k)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrUnavailable, "search events").WithCause(err).WithRetryable(true)
	}
	out := make([]types.EpisodicEvent, len(rows))
	for i, row := range rows {
		out[i] = fromEpisodicRow(row)
	}
	return out, nil
}

func (r *EpisodicRepo) Get(ctx context.Context, id string) (*types.EpisodicEvent, error) {
	var row episodicRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "event not found")
		}
		return nil, types.NewError(types.ErrUnavailable, "read event").WithCause(err).WithRetryable(true)
	}
	e := fromEpisodicRow(row)
	return &e, nil
}

func (r *EpisodicRepo) RecurringCandidates(ctx context.Context, userID string, minOccurrences int, window time.Duration) (map[string][]types.EpisodicEvent, error) {
	var rows []episodicRow
	cutoff := time.Now().Add(-window)
	err := r.db.WithContext(ctx).Where("user_id = ? AND consolidated = ? AND occurred_at >= ?", userID, false, cutoff).Find(&rows).Error
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read recurring candidates").WithCause(err).WithRetryable(true)
	}
	groups := map[string][]types.EpisodicEvent{}
	for _, row := range rows {
		e := fromEpisodicRow(row)
		groups[e.EventType] = append(groups[e.EventType], e)
	}
	for k, v := range groups {
		if len(v) < minOccurrences {
			delete(groups, k)
		}
	}
	return groups, nil
}

func (r *EpisodicRepo) MarkConsolidated(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(&episodicRow{}).Where("id IN ?", ids).Update("consolidated", true).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "mark consolidated").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *EpisodicRepo) UpdateDecay(ctx context.Context, id string, decayFactor float64) error {
	res := r.db.WithContext(ctx).Model(&episodicRow{}).Where("id = ?", id).Update("decay_factor", decayFactor)
	if res.Error != nil {
		return types.NewError(types.ErrUnavailable, "update decay").WithCause(res.Error).WithRetryable(true)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "event not found")
	}
	return nil
}

func (r *EpisodicRepo) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&episodicRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete user events").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *EpisodicRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&episodicRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete event").WithCause(err).WithRetryable(true)
	}
	return nil
}
