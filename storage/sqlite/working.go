package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/cortexmem/engine/types"
)

// WorkingRepo implements memory.WorkingRepo over a GORM *gorm.DB.
type WorkingRepo struct {
	db     *gorm.DB
	driver *Driver
}

func toWorkingRow(m types.Message) (workingRow, error) {
	tags, err := json.Marshal(m.Tags)
	if err != nil {
		return workingRow{}, err
	}
	entities, err := json.Marshal(m.ExtractedEntities)
	if err != nil {
		return workingRow{}, err
	}
	return workingRow{
		ID: m.ID, UserID: m.UserID, ConversationID: m.ConversationID,
		Role: string(m.Role), Content: m.Content, Timestamp: m.Timestamp,
		TagsJSON: string(tags), ImportanceScore: m.ImportanceScore,
		AccessCount: m.AccessCount, LastAccessed: m.LastAccessed,
		EntitiesJSON: string(entities), ExpiresAt: m.ExpiresAt,
	}, nil
}

func fromWorkingRow(r workingRow) types.Message {
	var tags []string
	_ = json.Unmarshal([]byte(r.TagsJSON), &tags)
	var entities []types.Entity
	_ = json.Unmarshal([]byte(r.EntitiesJSON), &entities)
	return types.Message{
		ID: r.ID, UserID: r.UserID, ConversationID: r.ConversationID,
		Role: types.Role(r.Role), Content: r.Content, Timestamp: r.Timestamp,
		Tags: tags, ImportanceScore: r.ImportanceScore, AccessCount: r.AccessCount,
		LastAccessed: r.LastAccessed, ExtractedEntities: entities, ExpiresAt: r.ExpiresAt,
	}
}

func (r *WorkingRepo) Append(ctx context.Context, msg types.Message) error {
	row, err := toWorkingRow(msg)
	if err != nil {
		return types.NewError(types.ErrInternal, "marshal message").WithCause(err)
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "append working message").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *WorkingRepo) Recent(ctx context.Context, userID, convID string, limit int) ([]types.Message, error) {
	var rows []workingRow
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ? AND (expires_at IS NULL OR expires_at > ?)", userID, convID, time.Now()).
		Order("timestamp DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read working messages").WithCause(err).WithRetryable(true)
	}
	out := make([]types.Message, len(rows))
	for i, row := range rows {
		out[i] = fromWorkingRow(row)
	}
	return out, nil
}

func (r *WorkingRepo) ByID(ctx context.Context, id string) (*types.Message, error) {
	var row workingRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, types.NewError(types.ErrNotFound, "message not found")
		}
		return nil, types.NewError(types.ErrUnavailable, "read message").WithCause(err).WithRetryable(true)
	}
	msg := fromWorkingRow(row)
	return &msg, nil
}

func (r *WorkingRepo) Touch(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Model(&workingRow{}).Where("id = ?", id).
		Updates(map[string]interface{}{"access_count": gorm.Expr("access_count + 1"), "last_accessed": time.Now()}).Error
	if err != nil {
		return types.NewError(types.ErrUnavailable, "touch message").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *WorkingRepo) CountByConversation(ctx context.Context, userID, convID string) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&workingRow{}).Where("user_id = ? AND conversation_id = ?", userID, convID).Count(&n).Error; err != nil {
		return 0, types.NewError(types.ErrUnavailable, "count messages").WithCause(err).WithRetryable(true)
	}
	return int(n), nil
}

func (r *WorkingRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&workingRow{}).Where("user_id = ?", userID).Count(&n).Error; err != nil {
		return 0, types.NewError(types.ErrUnavailable, "count messages").WithCause(err).WithRetryable(true)
	}
	return int(n), nil
}

func (r *WorkingRepo) Evict(ctx context.Context, userID, convID string) (int, error) {
	res := r.db.WithContext(ctx).Where("user_id = ? AND conversation_id = ? AND expires_at IS NOT NULL AND expires_at <= ?", userID, convID, time.Now()).Delete(&workingRow{})
	if res.Error != nil {
		return 0, types.NewError(types.ErrUnavailable, "evict messages").WithCause(res.Error).WithRetryable(true)
	}
	return int(res.RowsAffected), nil
}

func (r *WorkingRepo) Drain(ctx context.Context, userID, convID string) ([]types.Message, error) {
	var rows []workingRow
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ? AND conversation_id = ?", userID, convID).Order("timestamp ASC").Find(&rows).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND conversation_id = ?", userID, convID).Delete(&workingRow{}).Error
	})
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "drain working tier").WithCause(err).WithRetryable(true)
	}
	out := make([]types.Message, len(rows))
	for i, row := range rows {
		out[i] = fromWorkingRow(row)
	}
	return out, nil
}

func (r *WorkingRepo) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&workingRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete user messages").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *WorkingRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&workingRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete message").WithCause(err).WithRetryable(true)
	}
	return nil
}
