package memory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cortexmem/engine/types"
)

// ResilientEpisodicRepo wraps a primary EpisodicRepo with retry and an
// optional fallback EpisodicRepo.
type ResilientEpisodicRepo struct {
	primary, fallback EpisodicRepo
	res               *resilience
}

func NewResilientEpisodicRepo(primary, fallback EpisodicRepo, policy BackoffPolicy, logger *zap.Logger) *ResilientEpisodicRepo {
	return &ResilientEpisodicRepo{primary: primary, fallback: fallback, res: newResilience(policy, fallback != nil, logger.With(zap.String("component", "resilient_episodic")))}
}

func (r *ResilientEpisodicRepo) PrimaryErrorCount() int64 { return r.res.PrimaryErrorCount() }

func (r *ResilientEpisodicRepo) Put(ctx context.Context, event types.EpisodicEvent) error {
	return r.res.call(ctx,
		func() error { return r.primary.Put(ctx, event) },
		func() error { return r.fallback.Put(ctx, event) })
}

func (r *ResilientEpisodicRepo) ByUser(ctx context.Context, userID string, limit int) (out []types.EpisodicEvent, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByUser(ctx, userID, limit); return e },
		func() error { var e error; out, e = r.fallback.ByUser(ctx, userID, limit); return e })
	return out, err
}

func (r *ResilientEpisodicRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.EpisodicEvent, error) {
	out, err := r.primary.SearchByEmbedding(ctx, userID, query, topK, threshold)
	if err == nil || types.IsCode(err, types.ErrCapabilityMissing) {
		return out, err
	}
	if !r.res.fallbackEnabled {
		return out, err
	}
	r.res.primaryErrors.Add(1)
	return r.fallback.SearchByEmbedding(ctx, userID, query, topK, threshold)
}

func (r *ResilientEpisodicRepo) ByTimeRange(ctx context.Context, userID, conversationID string, start, end time.Time) (out []types.EpisodicEvent, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByTimeRange(ctx, userID, conversationID, start, end); return e },
		func() error { var e error; out, e = r.fallback.ByTimeRange(ctx, userID, conversationID, start, end); return e })
	return out, err
}

func (r *ResilientEpisodicRepo) ByType(ctx context.Context, userID, eventType string, k int) (out []types.EpisodicEvent, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByType(ctx, userID, eventType, k); return e },
		func() error { var e error; out, e = r.fallback.ByType(ctx, userID, eventType, k); return e })
	return out, err
}

func (r *ResilientEpisodicRepo) Search(ctx context.Context, userID, query string, k int) (out []types.EpisodicEvent, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.Search(ctx, userID, query, k); return e },
		func() error { var e error; out, e = r.fallback.Search(ctx, userID, query, k); return e })
	return out, err
}

func (r *ResilientEpisodicRepo) Get(ctx context.Context, id string) (out *types.EpisodicEvent, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.Get(ctx, id); return e },
		func() error { var e error; out, e = r.fallback.Get(ctx, id); return e })
	return out, err
}

func (r *ResilientEpisodicRepo) RecurringCandidates(ctx context.Context, userID string, minOccurrences int, window time.Duration) (out map[string][]types.EpisodicEvent, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.RecurringCandidates(ctx, userID, minOccurrences, window); return e },
		func() error { var e error; out, e = r.fallback.RecurringCandidates(ctx, userID, minOccurrences, window); return e })
	return out, err
}

func (r *ResilientEpisodicRepo) MarkConsolidated(ctx context.Context, ids []string) error {
	return r.res.call(ctx,
		func() error { return r.primary.MarkConsolidated(ctx, ids) },
		func() error { return r.fallback.MarkConsolidated(ctx, ids) })
}

func (r *ResilientEpisodicRepo) UpdateDecay(ctx context.Context, id string, decayFactor float64) error {
	return r.res.call(ctx,
		func() error { return r.primary.UpdateDecay(ctx, id, decayFactor) },
		func() error { return r.fallback.UpdateDecay(ctx, id, decayFactor) })
}

func (r *ResilientEpisodicRepo) DeleteByUser(ctx context.Context, userID string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByUser(ctx, userID) },
		func() error { return r.fallback.DeleteByUser(ctx, userID) })
}

func (r *ResilientEpisodicRepo) DeleteByID(ctx context.Context, id string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByID(ctx, id) },
		func() error { return r.fallback.DeleteByID(ctx, id) })
}

// ResilientProceduralRepo wraps a primary ProceduralRepo with retry and
// an optional fallback ProceduralRepo.
type ResilientProceduralRepo struct {
	primary, fallback ProceduralRepo
	res               *resilience
}

func NewResilientProceduralRepo(primary, fallback ProceduralRepo, policy BackoffPolicy, logger *zap.Logger) *ResilientProceduralRepo {
	return &ResilientProceduralRepo{primary: primary, fallback: fallback, res: newResilience(policy, fallback != nil, logger.With(zap.String("component", "resilient_procedural")))}
}

func (r *ResilientProceduralRepo) PrimaryErrorCount() int64 { return r.res.PrimaryErrorCount() }

func (r *ResilientProceduralRepo) Put(ctx context.Context, p types.ProceduralPattern) error {
	return r.res.call(ctx,
		func() error { return r.primary.Put(ctx, p) },
		func() error { return r.fallback.Put(ctx, p) })
}

func (r *ResilientProceduralRepo) ByUser(ctx context.Context, userID string) (out []types.ProceduralPattern, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByUser(ctx, userID); return e },
		func() error { var e error; out, e = r.fallback.ByUser(ctx, userID); return e })
	return out, err
}

func (r *ResilientProceduralRepo) ByID(ctx context.Context, id string) (out *types.ProceduralPattern, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByID(ctx, id); return e },
		func() error { var e error; out, e = r.fallback.ByID(ctx, id); return e })
	return out, err
}

func (r *ResilientProceduralRepo) Touch(ctx context.Context, id string, succeeded bool) error {
	return r.res.call(ctx,
		func() error { return r.primary.Touch(ctx, id, succeeded) },
		func() error { return r.fallback.Touch(ctx, id, succeeded) })
}

func (r *ResilientProceduralRepo) DeleteByUser(ctx context.Context, userID string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByUser(ctx, userID) },
		func() error { return r.fallback.DeleteByUser(ctx, userID) })
}

func (r *ResilientProceduralRepo) DeleteByID(ctx context.Context, id string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByID(ctx, id) },
		func() error { return r.fallback.DeleteByID(ctx, id) })
}
