package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cortexmem/engine/types"
)

// fakeWorkingRepo is a minimal in-memory WorkingRepo double shared by
// this package's tests (resilient_test.go, orchestrator_test.go,
// hippocampus_test.go). The real implementation lives in
// storage/inprocess; this fake exists so memory/ tests don't import
// storage/ and create a cycle.
type fakeWorkingRepo struct {
	messages    map[string]types.Message
	appendErr   error
	appendCalls int
}

func newFakeWorkingRepo() *fakeWorkingRepo {
	return &fakeWorkingRepo{messages: map[string]types.Message{}}
}

func (f *fakeWorkingRepo) Append(ctx context.Context, msg types.Message) error {
	f.appendCalls++
	if f.appendErr != nil {
		return f.appendErr
	}
	f.messages[msg.ID] = msg
	return nil
}

func (f *fakeWorkingRepo) Recent(ctx context.Context, userID, convID string, limit int) ([]types.Message, error) {
	var out []types.Message
	for _, m := range f.messages {
		if m.UserID == userID && m.ConversationID == convID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if len(out) > limit && limit > 0 {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeWorkingRepo) ByID(ctx context.Context, id string) (*types.Message, error) {
	m, ok := f.messages[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "message not found")
	}
	return &m, nil
}

func (f *fakeWorkingRepo) Touch(ctx context.Context, id string) error {
	m, ok := f.messages[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "message not found")
	}
	m.AccessCount++
	m.LastAccessed = time.Now()
	f.messages[id] = m
	return nil
}

func (f *fakeWorkingRepo) CountByConversation(ctx context.Context, userID, convID string) (int, error) {
	n := 0
	for _, m := range f.messages {
		if m.UserID == userID && m.ConversationID == convID {
			n++
		}
	}
	return n, nil
}

func (f *fakeWorkingRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	n := 0
	for _, m := range f.messages {
		if m.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (f *fakeWorkingRepo) Evict(ctx context.Context, userID, convID string) (int, error) {
	n := 0
	now := time.Now()
	for id, m := range f.messages {
		if m.UserID == userID && m.ConversationID == convID && m.ExpiresAt != nil && m.ExpiresAt.Before(now) {
			delete(f.messages, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeWorkingRepo) Drain(ctx context.Context, userID, convID string) ([]types.Message, error) {
	var out []types.Message
	for id, m := range f.messages {
		if m.UserID == userID && m.ConversationID == convID {
			out = append(out, m)
			delete(f.messages, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (f *fakeWorkingRepo) DeleteByUser(ctx context.Context, userID string) error {
	for id, m := range f.messages {
		if m.UserID == userID {
			delete(f.messages, id)
		}
	}
	return nil
}

func (f *fakeWorkingRepo) DeleteByID(ctx context.Context, id string) error {
	delete(f.messages, id)
	return nil
}

// fakeSemanticRepo is a minimal in-memory SemanticRepo double.
type fakeSemanticRepo struct {
	facts map[string]types.ExtractedFact
}

func newFakeSemanticRepo() *fakeSemanticRepo {
	return &fakeSemanticRepo{facts: map[string]types.ExtractedFact{}}
}

func (f *fakeSemanticRepo) Put(ctx context.Context, fact types.ExtractedFact) error {
	f.facts[fact.ID] = fact
	return nil
}

func (f *fakeSemanticRepo) ByUser(ctx context.Context, userID string, limit int) ([]types.ExtractedFact, error) {
	var out []types.ExtractedFact
	for _, ft := range f.facts {
		if ft.UserID == userID && !ft.SoftDeleted {
			out = append(out, ft)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSemanticRepo) ByKey(ctx context.Context, userID, key string) (*types.ExtractedFact, error) {
	for _, ft := range f.facts {
		if ft.UserID == userID && ft.Key == key && !ft.SoftDeleted {
			return &ft, nil
		}
	}
	return nil, types.NewError(types.ErrNotFound, "fact not found")
}

func (f *fakeSemanticRepo) GetByID(ctx context.Context, id string) (*types.ExtractedFact, error) {
	ft, ok := f.facts[id]
	if !ok || ft.SoftDeleted {
		return nil, types.NewError(types.ErrNotFound, "fact not found")
	}
	return &ft, nil
}

func (f *fakeSemanticRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.ExtractedFact, error) {
	return nil, types.NewError(types.ErrCapabilityMissing, "fake has no vector index")
}

func (f *fakeSemanticRepo) Touch(ctx context.Context, id string) error {
	ft, ok := f.facts[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "fact not found")
	}
	ft.AccessCount++
	ft.LastAccessed = time.Now()
	f.facts[id] = ft
	return nil
}

func (f *fakeSemanticRepo) StaleForCluster(ctx context.Context, userID string, olderThan time.Time) ([]types.ExtractedFact, error) {
	var out []types.ExtractedFact
	for _, ft := range f.facts {
		if ft.UserID == userID && !ft.SoftDeleted && ft.CreatedAt.Before(olderThan) {
			out = append(out, ft)
		}
	}
	return out, nil
}

func (f *fakeSemanticRepo) SoftDelete(ctx context.Context, ids []string) error {
	for _, id := range ids {
		ft, ok := f.facts[id]
		if ok {
			ft.SoftDeleted = true
			f.facts[id] = ft
		}
	}
	return nil
}

func (f *fakeSemanticRepo) DeleteByUser(ctx context.Context, userID string) error {
	for id, ft := range f.facts {
		if ft.UserID == userID {
			delete(f.facts, id)
		}
	}
	return nil
}

func (f *fakeSemanticRepo) DeleteByID(ctx context.Context, id string) error {
	delete(f.facts, id)
	return nil
}

// fakeEpisodicRepo is a minimal in-memory EpisodicRepo double.
type fakeEpisodicRepo struct {
	events map[string]types.EpisodicEvent
}

func newFakeEpisodicRepo() *fakeEpisodicRepo {
	return &fakeEpisodicRepo{events: map[string]types.EpisodicEvent{}}
}

func (f *fakeEpisodicRepo) Put(ctx context.Context, event types.EpisodicEvent) error {
	f.events[event.ID] = event
	return nil
}

func (f *fakeEpisodicRepo) ByUser(ctx context.Context, userID string, limit int) ([]types.EpisodicEvent, error) {
	var out []types.EpisodicEvent
	for _, e := range f.events {
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

func (f *fakeEpisodicRepo) SearchByEmbedding(ctx context.Context, userID string, query []float32, topK int, threshold float64) ([]types.EpisodicEvent, error) {
	return nil, types.NewError(types.ErrCapabilityMissing, "fake has no vector index")
}

func (f *fakeEpisodicRepo) ByTimeRange(ctx context.Context, userID, conversationID string, start, end time.Time) ([]types.EpisodicEvent, error) {
	var out []types.EpisodicEvent
	for _, e := range f.events {
		if e.UserID == userID && e.ConversationID == conversationID && !e.OccurredAt.Before(start) && !e.OccurredAt.After(end) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (f *fakeEpisodicRepo) ByType(ctx context.Context, userID, eventType string, k int) ([]types.EpisodicEvent, error) {
	var out []types.EpisodicEvent
	for _, e := range f.events {
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

func (f *fakeEpisodicRepo) Search(ctx context.Context, userID, query string, k int) ([]types.EpisodicEvent, error) {
	needle := strings.ToLower(query)
	var out []types.EpisodicEvent
	for _, e := range f.events {
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

func (f *fakeEpisodicRepo) Get(ctx context.Context, id string) (*types.EpisodicEvent, error) {
	e, ok := f.events[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "event not found")
	}
	return &e, nil
}

func (f *fakeEpisodicRepo) RecurringCandidates(ctx context.Context, userID string, minOccurrences int, window time.Duration) (map[string][]types.EpisodicEvent, error) {
	groups := map[string][]types.EpisodicEvent{}
	for _, e := range f.events {
		if e.UserID == userID && !e.Consolidated {
			groups[e.EventType] = append(groups[e.EventType], e)
		}
	}
	for k, v := range groups {
		if len(v) < minOccurrences {
			delete(groups, k)
		}
	}
	return groups, nil
}

func (f *fakeEpisodicRepo) MarkConsolidated(ctx context.Context, ids []string) error {
	for _, id := range ids {
		e, ok := f.events[id]
		if ok {
			e.Consolidated = true
			f.events[id] = e
		}
	}
	return nil
}

func (f *fakeEpisodicRepo) UpdateDecay(ctx context.Context, id string, decayFactor float64) error {
	e, ok := f.events[id]
	if !ok {
		return types.NewError(types.ErrNotFound, "event not found")
	}
	e.DecayFactor = decayFactor
	f.events[id] = e
	return nil
}

func (f *fakeEpisodicRepo) DeleteByUser(ctx context.Context, userID string) error {
	for id, e := range f.events {
		if e.UserID == userID {
			delete(f.events, id)
		}
	}
	return nil
}

func (f *fakeEpisodicRepo) DeleteByID(ctx context.Context, id string) error {
	delete(f.events, id)
	return nil
}
