package inprocess

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cortexmem/engine/types"
)

// EpisodicRepo is an in-memory implementation of memory.EpisodicRepo,
// grounded on agent/memory/episodic_store.go's time-ordered slice store.
type EpisodicRepo struct {
	mu     sync.RWMutex
	events map[string]types.EpisodicEvent
}

// NewEpisodicRepo builds an empty EpisodicRepo.
func NewEpisodicRepo() *EpisodicRepo {
	return &EpisodicRepo{events: map[string]types.EpisodicEvent{}}
}

func (r *EpisodicRepo) Put(ctx context.Context, event types.EpisodicEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event.ID] = event
	return nil
}

func (r *EpisodicRepo) ByUser(ctx context.Context, userID string, limit int) ([]types.EpisodicEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.EpisodicEvent
	for _, e := range r.events {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *EpisodicRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK_ int, threshold float64) ([]types.EpisodicEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []types.EpisodicEvent
	var scores []float64
	for _, e := range r.events {
		if e.UserID != userID || len(e.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, e)
		scores = append(scores, cosineSimilarity(query, e.Embedding))
	}

	indices := topK(scores, topK_, threshold)
	out := make([]types.EpisodicEvent, len(indices))
	for i, idx := range indices {
		out[i] = candidates[idx]
	}
	return out, nil
}

func (r *EpisodicRepo) ByTimeRange(ctx context.Context, userID, conversationID string, start, end time.Time) ([]types.EpisodicEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.EpisodicEvent
	for _, e := range r.events {
		if e.UserID != userID || e.ConversationID != conversationID {
			continue
		}
		if e.OccurredAt.Before(start) || e.OccurredAt.After(end) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (r *EpisodicRepo) ByType(ctx context.Context, userID, eventType string, k int) ([]types.EpisodicEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.EpisodicEvent
	for _, e := range r.events {
		if e.UserID == userID && e.EventType == eventType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (r *EpisodicRepo) Search(ctx context.Context, userID, query string, k int) ([]types.EpisodicEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(query)
	var out []types.EpisodicEvent
	for _, e := range r.events {
		if e.UserID == userID && strings.Contains(strings.ToLower(e.Content), needle) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (r *EpisodicRepo) Get(ctx context.Context, id string) (*types.EpisodicEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "event not found")
	}
	out := e
	return &out, nil
}

func (r *EpisodicRepo) RecurringCandidates(ctx context.Context, userID string, minOccurrences int, window time.Duration) (map[string][]types.EpisodicEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	groups := map[string][]types.EpisodicEvent{}
	for _, e := range r.events {
		if e.UserID != userID || e.Consolidated || e.OccurredAt.Before(cutoff) {
			continue
		}
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
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		e, ok := r.events[id]
		if ok {
			e.Consolidated = true
			r.events[id] = e
		}
	}
	return nil
}

func (r *EpisodicRepo) UpdateDecay(ctx context.Context, id string, decayFactor float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "event not found")
	}
	e.DecayFactor = decayFactor
	r.events[id] = e
	return nil
}

func (r *EpisodicRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.events {
		if e.UserID == userID {
			delete(r.events, id)
		}
	}
	return nil
}

func (r *EpisodicRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.events, id)
	return nil
}
