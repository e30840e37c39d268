package inprocess

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cortexmem/engine/types"
)

// SemanticRepo is an in-memory implementation of memory.SemanticRepo
// with a brute-force vector search (heap-based top-K, grounded on
// dpama's ScoredMemoryHeap) — fine at in-process scale, unlike the
// networked drivers this is never expected to hold millions of facts.
type SemanticRepo struct {
	mu    sync.RWMutex
	facts map[string]types.ExtractedFact
}

// NewSemanticRepo builds an empty SemanticRepo.
func NewSemanticRepo() *SemanticRepo {
	return &SemanticRepo{facts: map[string]types.ExtractedFact{}}
}

func (r *SemanticRepo) Put(ctx context.Context, fact types.ExtractedFact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[fact.ID] = fact
	return nil
}

func (r *SemanticRepo) ByUser(ctx context.Context, userID string, limit int) ([]types.ExtractedFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.ExtractedFact
	for _, f := range r.facts {
		if f.UserID == userID && !f.SoftDeleted {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SemanticRepo) ByKey(ctx context.Context, userID, key string) (*types.ExtractedFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.facts {
		if f.UserID == userID && f.Key == key && !f.SoftDeleted {
			out := f
			return &out, nil
		}
	}
	return nil, types.NewError(types.ErrNotFound, "fact not found")
}

func (r *SemanticRepo) GetByID(ctx context.Context, id string) (*types.ExtractedFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.facts[id]
	if !ok || f.SoftDeleted {
		return nil, types.NewError(types.ErrNotFound, "fact not found")
	}
	out := f
	return &out, nil
}

func (r *SemanticRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK_ int, threshold float64) ([]types.ExtractedFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []types.ExtractedFact
	var scores []float64
	for _, f := range r.facts {
		if f.UserID != userID || f.SoftDeleted || len(f.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, f)
		scores = append(scores, cosineSimilarity(query, f.Embedding))
	}

	indices := topK(scores, topK_, threshold)
	out := make([]types.ExtractedFact, len(indices))
	for i, idx := range indices {
		out[i] = candidates[idx]
	}
	return out, nil
}

func (r *SemanticRepo) Touch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.facts[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "fact not found")
	}
	f.AccessCount++
	f.LastAccessed = time.Now()
	r.facts[id] = f
	return nil
}

func (r *SemanticRepo) StaleForCluster(ctx context.Context, userID string, olderThan time.Time) ([]types.ExtractedFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.ExtractedFact
	for _, f := range r.facts {
		if f.UserID == userID && !f.SoftDeleted && f.CreatedAt.Before(olderThan) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *SemanticRepo) SoftDelete(ctx context.Context, ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		f, ok := r.facts[id]
		if ok {
			f.SoftDeleted = true
			r.facts[id] = f
		}
	}
	return nil
}

func (r *SemanticRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, f := range r.facts {
		if f.UserID == userID {
			delete(r.facts, id)
		}
	}
	return nil
}

func (r *SemanticRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.facts, id)
	return nil
}
