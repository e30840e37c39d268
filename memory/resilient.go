package memory

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cortexmem/engine/types"
)

// BackoffPolicy is an exponential backoff schedule, grounded on
// llm/retry/backoff.go's backoffRetryer: base delay multiplied by Factor
// per attempt, capped at Max when Max > 0.
type BackoffPolicy struct {
	Base       time.Duration
	Factor     float64
	Max        time.Duration
	MaxRetries int
}

// Delay returns the backoff delay before attempt (0-indexed).
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt))
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}

// retryWithBackoff runs fn up to policy.MaxRetries+1 times, sleeping
// policy.Delay between attempts, retrying only when fn's error is
// types.IsRetryable. Grounded on internal/database/pool.go's
// WithTransactionRetry/isRetryableError pattern.
func retryWithBackoff(ctx context.Context, policy BackoffPolicy, logger *zap.Logger, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !types.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == policy.MaxRetries {
			break
		}
		delay := policy.Delay(attempt)
		logger.Warn("retrying after error", zap.Int("attempt", attempt+1), zap.Duration("delay", delay), zap.Error(lastErr))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

// resilience wraps any repo-call with retry-then-fallback, shared across
// the four tier wrappers below. primaryErrors counts primary failures
// since construction (it is never reset) for observability/testing (spec.md §4.2 scenario 6).
type resilience struct {
	policy         BackoffPolicy
	fallbackEnabled bool
	primaryErrors  atomic.Int64
	logger         *zap.Logger
}

func newResilience(policy BackoffPolicy, fallbackEnabled bool, logger *zap.Logger) *resilience {
	return &resilience{policy: policy, fallbackEnabled: fallbackEnabled, logger: logger}
}

// call runs primary with retries; on exhaustion, if fallback is enabled
// and non-nil, runs fallback instead. Reads never block on fallback
// replay — there is no background sync attempted here, fallback simply
// serves the read/write itself once primary is judged unavailable.
func (r *resilience) call(ctx context.Context, primary func() error, fallback func() error) error {
	err := retryWithBackoff(ctx, r.policy, r.logger, primary)
	if err == nil {
		return nil
	}
	r.primaryErrors.Add(1)
	if !r.fallbackEnabled || fallback == nil {
		return err
	}
	r.logger.Warn("primary store exhausted retries, falling back", zap.Error(err))
	return fallback()
}

// PrimaryErrorCount returns the number of primary-call failures observed
// since construction.
func (r *resilience) PrimaryErrorCount() int64 {
	return r.primaryErrors.Load()
}

// ResilientWorkingRepo wraps a primary WorkingRepo with retry and an
// optional fallback WorkingRepo (spec.md C2).
type ResilientWorkingRepo struct {
	primary, fallback WorkingRepo
	res               *resilience
}

// NewResilientWorkingRepo builds a ResilientWorkingRepo. fallback may be
// nil to disable fallback entirely.
func NewResilientWorkingRepo(primary, fallback WorkingRepo, policy BackoffPolicy, logger *zap.Logger) *ResilientWorkingRepo {
	return &ResilientWorkingRepo{primary: primary, fallback: fallback, res: newResilience(policy, fallback != nil, logger.With(zap.String("component", "resilient_working")))}
}

func (r *ResilientWorkingRepo) PrimaryErrorCount() int64 { return r.res.PrimaryErrorCount() }

func (r *ResilientWorkingRepo) Append(ctx context.Context, msg types.Message) error {
	return r.res.call(ctx,
		func() error { return r.primary.Append(ctx, msg) },
		func() error { return r.fallback.Append(ctx, msg) })
}

func (r *ResilientWorkingRepo) Recent(ctx context.Context, userID, convID string, limit int) (out []types.Message, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.Recent(ctx, userID, convID, limit); return e },
		func() error { var e error; out, e = r.fallback.Recent(ctx, userID, convID, limit); return e })
	return out, err
}

func (r *ResilientWorkingRepo) ByID(ctx context.Context, id string) (out *types.Message, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByID(ctx, id); return e },
		func() error { var e error; out, e = r.fallback.ByID(ctx, id); return e })
	return out, err
}

func (r *ResilientWorkingRepo) Touch(ctx context.Context, id string) error {
	return r.res.call(ctx,
		func() error { return r.primary.Touch(ctx, id) },
		func() error { return r.fallback.Touch(ctx, id) })
}

func (r *ResilientWorkingRepo) CountByConversation(ctx context.Context, userID, convID string) (out int, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.CountByConversation(ctx, userID, convID); return e },
		func() error { var e error; out, e = r.fallback.CountByConversation(ctx, userID, convID); return e })
	return out, err
}

func (r *ResilientWorkingRepo) CountByUser(ctx context.Context, userID string) (out int, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.CountByUser(ctx, userID); return e },
		func() error { var e error; out, e = r.fallback.CountByUser(ctx, userID); return e })
	return out, err
}

func (r *ResilientWorkingRepo) Evict(ctx context.Context, userID, convID string) (out int, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.Evict(ctx, userID, convID); return e },
		func() error { var e error; out, e = r.fallback.Evict(ctx, userID, convID); return e })
	return out, err
}

func (r *ResilientWorkingRepo) Drain(ctx context.Context, userID, convID string) (out []types.Message, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.Drain(ctx, userID, convID); return e },
		func() error { var e error; out, e = r.fallback.Drain(ctx, userID, convID); return e })
	return out, err
}

func (r *ResilientWorkingRepo) DeleteByUser(ctx context.Context, userID string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByUser(ctx, userID) },
		func() error { return r.fallback.DeleteByUser(ctx, userID) })
}

func (r *ResilientWorkingRepo) DeleteByID(ctx context.Context, id string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByID(ctx, id) },
		func() error { return r.fallback.DeleteByID(ctx, id) })
}

// ResilientSemanticRepo wraps a primary SemanticRepo with retry and an
// optional fallback SemanticRepo.
type ResilientSemanticRepo struct {
	primary, fallback SemanticRepo
	res               *resilience
}

func NewResilientSemanticRepo(primary, fallback SemanticRepo, policy BackoffPolicy, logger *zap.Logger) *ResilientSemanticRepo {
	return &ResilientSemanticRepo{primary: primary, fallback: fallback, res: newResilience(policy, fallback != nil, logger.With(zap.String("component", "resilient_semantic")))}
}

func (r *ResilientSemanticRepo) PrimaryErrorCount() int64 { return r.res.PrimaryErrorCount() }

func (r *ResilientSemanticRepo) Put(ctx context.Context, fact types.ExtractedFact) error {
	return r.res.call(ctx,
		func() error { return r.primary.Put(ctx, fact) },
		func() error { return r.fallback.Put(ctx, fact) })
}

func (r *ResilientSemanticRepo) ByUser(ctx context.Context, userID string, limit int) (out []types.ExtractedFact, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByUser(ctx, userID, limit); return e },
		func() error { var e error; out, e = r.fallback.ByUser(ctx, userID, limit); return e })
	return out, err
}

func (r *ResilientSemanticRepo) ByKey(ctx context.Context, userID, key string) (out *types.ExtractedFact, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.ByKey(ctx, userID, key); return e },
		func() error { var e error; out, e = r.fallback.ByKey(ctx, userID, key); return e })
	return out, err
}

func (r *ResilientSemanticRepo) GetByID(ctx context.Context, id string) (out *types.ExtractedFact, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.GetByID(ctx, id); return e },
		func() error { var e error; out, e = r.fallback.GetByID(ctx, id); return e })
	return out, err
}

// SearchByEmbedding does not fall back on CapabilityMissing: a fallback
// driver lacking vector search is not a transient failure worth
// retrying into, it's reported to the caller as-is so the orchestrator
// can treat it as a partial read.
func (r *ResilientSemanticRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.ExtractedFact, error) {
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

func (r *ResilientSemanticRepo) Touch(ctx context.Context, id string) error {
	return r.res.call(ctx,
		func() error { return r.primary.Touch(ctx, id) },
		func() error { return r.fallback.Touch(ctx, id) })
}

func (r *ResilientSemanticRepo) StaleForCluster(ctx context.Context, userID string, olderThan time.Time) (out []types.ExtractedFact, err error) {
	err = r.res.call(ctx,
		func() error { var e error; out, e = r.primary.StaleForCluster(ctx, userID, olderThan); return e },
		func() error { var e error; out, e = r.fallback.StaleForCluster(ctx, userID, olderThan); return e })
	return out, err
}

func (r *ResilientSemanticRepo) SoftDelete(ctx context.Context, ids []string) error {
	return r.res.call(ctx,
		func() error { return r.primary.SoftDelete(ctx, ids) },
		func() error { return r.fallback.SoftDelete(ctx, ids) })
}

func (r *ResilientSemanticRepo) DeleteByUser(ctx context.Context, userID string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByUser(ctx, userID) },
		func() error { return r.fallback.DeleteByUser(ctx, userID) })
}

func (r *ResilientSemanticRepo) DeleteByID(ctx context.Context, id string) error {
	return r.res.call(ctx,
		func() error { return r.primary.DeleteByID(ctx, id) },
		func() error { return r.fallback.DeleteByID(ctx, id) })
}
