package memory

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cortexmem/engine/types"
)

// EpisodicDecay recomputes an episodic event's decay_factor over time,
// grounded on intelligent_decay.go's RecencyScore/CompositeScore model,
// adapted to drive decay_factor (spec.md §3) instead of the teacher's
// generic prune score. A SPEC_FULL.md supplement: spec.md names
// decay_factor as a field but doesn't specify how it's maintained.
type EpisodicDecay struct {
	halfLife time.Duration
	logger   *zap.Logger
}

// NewEpisodicDecay builds an EpisodicDecay with the given half-life —
// the duration after which an event's decay_factor halves absent reuse.
func NewEpisodicDecay(halfLife time.Duration, logger *zap.Logger) *EpisodicDecay {
	return &EpisodicDecay{halfLife: halfLife, logger: logger.With(zap.String("component", "episodic_decay"))}
}

// Compute returns the decayed factor for an event last touched at
// occurredAt, evaluated at now.
func (d *EpisodicDecay) Compute(occurredAt, now time.Time) float64 {
	if d.halfLife <= 0 {
		return 1.0
	}
	age := now.Sub(occurredAt)
	if age < 0 {
		age = 0
	}
	lambda := math.Ln2 / float64(d.halfLife)
	return types.Clamp01(math.Exp(-lambda * float64(age)))
}

// Refresh recomputes and persists decay_factor for every event owned by
// userID, called periodically alongside the hippocampus's sweep.
func (d *EpisodicDecay) Refresh(ctx context.Context, repo EpisodicRepo, userID string) (int, error) {
	events, err := repo.ByUser(ctx, userID, 0)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	updated := 0
	for _, e := range events {
		factor := d.Compute(e.OccurredAt, now)
		if err := repo.UpdateDecay(ctx, e.ID, factor); err != nil {
			d.logger.Warn("failed to update decay factor", zap.String("event_id", e.ID), zap.Error(err))
			continue
		}
		updated++
	}
	return updated, nil
}
