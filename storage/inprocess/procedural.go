package inprocess

import (
	"context"
	"sync"
	"time"

	"github.com/cortexmem/engine/types"
)

// ProceduralRepo is an in-memory implementation of
// memory.ProceduralRepo, grounded on
// agent/memory/layered_memory.go's ProceduralMemory map store.
type ProceduralRepo struct {
	mu       sync.RWMutex
	patterns map[string]types.ProceduralPattern
}

// NewProceduralRepo builds an empty ProceduralRepo.
func NewProceduralRepo() *ProceduralRepo {
	return &ProceduralRepo{patterns: map[string]types.ProceduralPattern{}}
}

func (r *ProceduralRepo) Put(ctx context.Context, pattern types.ProceduralPattern) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns[pattern.ID] = pattern
	return nil
}

func (r *ProceduralRepo) ByUser(ctx context.Context, userID string) ([]types.ProceduralPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.ProceduralPattern
	for _, p := range r.patterns {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *ProceduralRepo) ByID(ctx context.Context, id string) (*types.ProceduralPattern, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patterns[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "pattern not found")
	}
	return &p, nil
}

func (r *ProceduralRepo) Touch(ctx context.Context, id string, succeeded bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patterns[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "pattern not found")
	}
	p.UsageCount++
	p.LastUsed = time.Now()
	if succeeded {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	r.patterns[id] = p
	return nil
}

func (r *ProceduralRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, p := range r.patterns {
		if p.UserID == userID {
			delete(r.patterns, id)
		}
	}
	return nil
}

func (r *ProceduralRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.patterns, id)
	return nil
}
