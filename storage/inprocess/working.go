package inprocess

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cortexmem/engine/types"
)

// WorkingRepo is an in-memory, TTL-aware implementation of
// memory.WorkingRepo, grounded on agent/memory/inmemory_store.go's
// map-backed store with expiry checks on read.
type WorkingRepo struct {
	mu       sync.RWMutex
	messages map[string]types.Message
}

// NewWorkingRepo builds an empty WorkingRepo.
func NewWorkingRepo() *WorkingRepo {
	return &WorkingRepo{messages: map[string]types.Message{}}
}

func (r *WorkingRepo) Append(ctx context.Context, msg types.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ID] = msg
	return nil
}

func (r *WorkingRepo) Recent(ctx context.Context, userID, convID string, limit int) ([]types.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now()
	var out []types.Message
	for _, m := range r.messages {
		if m.UserID != userID || m.ConversationID != convID {
			continue
		}
		if m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *WorkingRepo) ByID(ctx context.Context, id string) (*types.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "message not found")
	}
	return &m, nil
}

func (r *WorkingRepo) Touch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "message not found")
	}
	m.AccessCount++
	m.LastAccessed = time.Now()
	r.messages[id] = m
	return nil
}

func (r *WorkingRepo) CountByConversation(ctx context.Context, userID, convID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.messages {
		if m.UserID == userID && m.ConversationID == convID {
			n++
		}
	}
	return n, nil
}

func (r *WorkingRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.messages {
		if m.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Evict removes messages whose ExpiresAt has passed for (userID, convID).
func (r *WorkingRepo) Evict(ctx context.Context, userID, convID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	n := 0
	for id, m := range r.messages {
		if m.UserID == userID && m.ConversationID == convID && m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			delete(r.messages, id)
			n++
		}
	}
	return n, nil
}

func (r *WorkingRepo) Drain(ctx context.Context, userID, convID string) ([]types.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []types.Message
	for id, m := range r.messages {
		if m.UserID == userID && m.ConversationID == convID {
			out = append(out, m)
			delete(r.messages, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (r *WorkingRepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.messages {
		if m.UserID == userID {
			delete(r.messages, id)
		}
	}
	return nil
}

func (r *WorkingRepo) DeleteByID(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
	return nil
}
