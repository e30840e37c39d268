package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/cortexmem/engine/types"
)

// ProceduralRepo implements memory.ProceduralRepo over Postgres.
type ProceduralRepo struct {
	db *gorm.DB
}

func toProceduralRow(p types.ProceduralPattern) (proceduralRow, error) {
	trig, err := json.Marshal(p.Triggers)
	if err != nil {
		return proceduralRow{}, err
	}
	return proceduralRow{
		ID: p.ID, UserID: p.UserID, Name: p.Name, Description: p.Description,
		TriggersJSON: string(trig), InstructionTemplate: p.InstructionTemplate,
		ConfidenceThreshold: p.ConfidenceThreshold, UsageCount: p.UsageCount, LastUsed: p.LastUsed,
		SuccessCount: p.SuccessCount, FailureCount: p.FailureCount, CreatedAt: p.CreatedAt,
	}, nil
}

func fromProceduralRow(r proceduralRow) types.ProceduralPattern {
	var triggers []types.Trigger
	_ = json.Unmarshal([]byte(r.TriggersJSON), &triggers)
	return types.ProceduralPattern{
		ID: r.ID, UserID: r.UserID, Name: r.Name, Description: r.Description,
		Triggers: triggers, InstructionTemplate: r.InstructionTemplate,
		ConfidenceThreshold: r.ConfidenceThreshold, UsageCount: r.UsageCount, LastUsed: r.LastUsed,
		SuccessCount: r.SuccessCount, FailureCount: r.FailureCount, CreatedAt: r.CreatedAt,
	}
}

func (r *ProceduralRepo) Put(ctx context.Context, p types.ProceduralPattern) error {
	row, err := toProceduralRow(p)
	if err != nil {
		return types.NewError(types.ErrInternal, "marshal pattern").WithCause(err)
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "put pattern").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *ProceduralRepo) ByUser(ctx context.Context, userID string) ([]types.ProceduralPattern, error) {
	var rows []proceduralRow
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read patterns").WithCause(err).WithRetryable(true)
	}
	out := make([]types.ProceduralPattern, len(rows))
	for i, row := range rows {
		out[i] = fromProceduralRow(row)
	}
	return out, nil
}

func (r *ProceduralRepo) ByID(ctx context.Context, id string) (*types.ProceduralPattern, error) {
	var row proceduralRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.NewError(types.ErrNotFound, "pattern not found")
		}
		return nil, types.NewError(types.ErrUnavailable, "read pattern").WithCause(err).WithRetryable(true)
	}
	p := fromProceduralRow(row)
	return &p, nil
}

func (r *ProceduralRepo) Touch(ctx context.Context, id string, succeeded bool) error {
	updates := map[string]interface{}{"usage_count": gorm.Expr("usage_count + 1"), "last_used": time.Now()}
	if succeeded {
		updates["success_count"] = gorm.Expr("success_count + 1")
	} else {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	}
	res := r.db.WithContext(ctx).Model(&proceduralRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return types.NewError(types.ErrUnavailable, "touch pattern").WithCause(res.Error).WithRetryable(true)
	}
	if res.RowsAffected == 0 {
		return types.NewError(types.ErrNotFound, "pattern not found")
	}
	return nil
}

func (r *ProceduralRepo) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&proceduralRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete user patterns").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *ProceduralRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&proceduralRow{}).Error; err != nil {
		return types.NewError(types.ErrUnavailable, "delete pattern").WithCause(err).WithRetryable(true)
	}
	return nil
}
