package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cortexmem/engine/types"
)

type fakeProceduralRepo struct {
	patterns map[string]types.ProceduralPattern
}

func newFakeProceduralRepo(patterns ...types.ProceduralPattern) *fakeProceduralRepo {
	r := &fakeProceduralRepo{patterns: map[string]types.ProceduralPattern{}}
	for _, p := range patterns {
		r.patterns[p.ID] = p
	}
	return r
}

func (r *fakeProceduralRepo) Put(ctx context.Context, p types.ProceduralPattern) error {
	r.patterns[p.ID] = p
	return nil
}
func (r *fakeProceduralRepo) ByUser(ctx context.Context, userID string) ([]types.ProceduralPattern, error) {
	var out []types.ProceduralPattern
	for _, p := range r.patterns {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}
func (r *fakeProceduralRepo) ByID(ctx context.Context, id string) (*types.ProceduralPattern, error) {
	p, ok := r.patterns[id]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "pattern not found")
	}
	return &p, nil
}
func (r *fakeProceduralRepo) Touch(ctx context.Context, id string, succeeded bool) error {
	p := r.patterns[id]
	p.UsageCount++
	if succeeded {
		p.SuccessCount++
	} else {
		p.FailureCount++
	}
	r.patterns[id] = p
	return nil
}
func (r *fakeProceduralRepo) DeleteByUser(ctx context.Context, userID string) error {
	for id, p := range r.patterns {
		if p.UserID == userID {
			delete(r.patterns, id)
		}
	}
	return nil
}
func (r *fakeProceduralRepo) DeleteByID(ctx context.Context, id string) error {
	delete(r.patterns, id)
	return nil
}

func TestPatternMatcherKeywordTrigger(t *testing.T) {
	repo := newFakeProceduralRepo(types.ProceduralPattern{
		ID:     "p1",
		UserID: "u1",
		Triggers: []types.Trigger{
			{Kind: types.TriggerKeyword, Pattern: "deploy"},
		},
		ConfidenceThreshold: 0.8,
		CreatedAt:           time.Now(),
	})
	m := NewPatternMatcher(repo, nil, zap.NewNop())
	p, err := m.Match(context.Background(), "u1", "how do I deploy this service?")
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "p1", p.ID)
}

func TestPatternMatcherNoMatch(t *testing.T) {
	repo := newFakeProceduralRepo(types.ProceduralPattern{
		ID:     "p1",
		UserID: "u1",
		Triggers: []types.Trigger{
			{Kind: types.TriggerKeyword, Pattern: "deploy"},
		},
		CreatedAt: time.Now(),
	})
	m := NewPatternMatcher(repo, nil, zap.NewNop())
	p, err := m.Match(context.Background(), "u1", "what's the weather like")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestPatternMatcherRegexTrigger(t *testing.T) {
	repo := newFakeProceduralRepo(types.ProceduralPattern{
		ID:     "p1",
		UserID: "u1",
		Triggers: []types.Trigger{
			{Kind: types.TriggerRegex, Pattern: `(?i)^deploy\s+\w+`},
		},
		CreatedAt: time.Now(),
	})
	m := NewPatternMatcher(repo, nil, zap.NewNop())
	p, err := m.Match(context.Background(), "u1", "deploy staging now")
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestPatternMatcherTieBreakUsageCountThenCreatedAt(t *testing.T) {
	older := time.Now().Add(-time.Hour)
	newer := time.Now()
	repo := newFakeProceduralRepo(
		types.ProceduralPattern{ID: "low-usage-old", UserID: "u1", UsageCount: 1, CreatedAt: older,
			Triggers: []types.Trigger{{Kind: types.TriggerKeyword, Pattern: "deploy"}}},
		types.ProceduralPattern{ID: "high-usage-new", UserID: "u1", UsageCount: 5, CreatedAt: newer,
			Triggers: []types.Trigger{{Kind: types.TriggerKeyword, Pattern: "deploy"}}},
	)
	m := NewPatternMatcher(repo, nil, zap.NewNop())
	p, err := m.Match(context.Background(), "u1", "please deploy the app")
	require.NoError(t, err)
	require.Equal(t, "high-usage-new", p.ID)
}

func TestPatternMatcherSemanticTriggerWithoutCollaboratorSkipped(t *testing.T) {
	repo := newFakeProceduralRepo(types.ProceduralPattern{
		ID:     "p1",
		UserID: "u1",
		Triggers: []types.Trigger{
			{Kind: types.TriggerSemantic, Pattern: "deploy workflow", Embedding: []float32{1, 0, 0}},
		},
		CreatedAt: time.Now(),
	})
	m := NewPatternMatcher(repo, nil, zap.NewNop())
	p, err := m.Match(context.Background(), "u1", "ship it to prod")
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestPatternMatcherRecordOutcome(t *testing.T) {
	repo := newFakeProceduralRepo(types.ProceduralPattern{ID: "p1", UserID: "u1", CreatedAt: time.Now()})
	m := NewPatternMatcher(repo, nil, zap.NewNop())
	require.NoError(t, m.RecordOutcome(context.Background(), "p1", true))
	require.Equal(t, 1, repo.patterns["p1"].UsageCount)
	require.Equal(t, 1, repo.patterns["p1"].SuccessCount)
}
