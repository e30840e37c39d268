package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cortexmem/engine/config"
	"github.com/cortexmem/engine/types"
)

type fakeCollaborator struct {
	classifyKind types.QueryKind
	classifyErr  error
}

func (f *fakeCollaborator) Embed(ctx context.Context, text string) ([]float32, error) { return nil, nil }
func (f *fakeCollaborator) ClassifyQuery(ctx context.Context, query string) (types.QueryKind, error) {
	return f.classifyKind, f.classifyErr
}
func (f *fakeCollaborator) ExtractEntities(ctx context.Context, content string) ([]types.Entity, error) {
	return nil, nil
}
func (f *fakeCollaborator) Summarize(ctx context.Context, texts []string) (string, error) {
	return "", nil
}
func (f *fakeCollaborator) AnswerWithContext(ctx context.Context, query string, ctxMsgs []types.Message) (string, error) {
	return "", nil
}
func (f *fakeCollaborator) AnalyzeSentiment(ctx context.Context, content string) (float64, error) {
	return 0, nil
}

func testPrefrontal(collab Collaborator) *Prefrontal {
	cfg := config.Default()
	tc := NewTokenCounter()
	return NewPrefrontal(cfg.Retrieval, cfg.Heuristics, collab, tc, zap.NewNop())
}

func TestPlanContinuationSurfaceMatch(t *testing.T) {
	p := testPrefrontal(nil)
	plan := p.Plan(context.Background(), "continue from where we left off")
	require.Equal(t, types.QueryContinuation, plan.Kind)
	require.Contains(t, plan.Layers, types.Working)
	require.True(t, plan.IncludeHistory)
}

func TestPlanFactRetrievalSurfaceMatch(t *testing.T) {
	p := testPrefrontal(nil)
	plan := p.Plan(context.Background(), "what is my favorite editor?")
	require.Equal(t, types.QueryFactRetrieval, plan.Kind)
	require.Contains(t, plan.Layers, types.Semantic)
}

func TestPlanDeepRecallSurfaceMatch(t *testing.T) {
	p := testPrefrontal(nil)
	plan := p.Plan(context.Background(), "remember when we talked about the migration last month?")
	require.Equal(t, types.QueryDeepRecall, plan.Kind)
	require.Contains(t, plan.Layers, types.Episodic)
}

func TestPlanUnmatchedDefaultsComplexWithoutCollaborator(t *testing.T) {
	p := testPrefrontal(nil)
	plan := p.Plan(context.Background(), "asdkjfh random gibberish xyz")
	require.Equal(t, types.QueryComplex, plan.Kind)
	require.Equal(t, 0.0, plan.Confidence)
}

func TestPlanDefersToCollaboratorWhenUnconfident(t *testing.T) {
	fc := &fakeCollaborator{classifyKind: types.QueryProceduralTrigger}
	p := testPrefrontal(fc)
	plan := p.Plan(context.Background(), "asdkjfh random gibberish xyz")
	require.Equal(t, types.QueryProceduralTrigger, plan.Kind)
	require.Equal(t, 1.0, plan.Confidence)
}

func TestPlanCollaboratorErrorDefaultsComplex(t *testing.T) {
	fc := &fakeCollaborator{classifyErr: errors.New("model unavailable")}
	p := testPrefrontal(fc)
	plan := p.Plan(context.Background(), "asdkjfh random gibberish xyz")
	require.Equal(t, types.QueryComplex, plan.Kind)
}

func TestPlanCollaboratorUnrecognizedKindDefaultsComplex(t *testing.T) {
	fc := &fakeCollaborator{classifyKind: types.QueryKind("unknown_kind")}
	p := testPrefrontal(fc)
	plan := p.Plan(context.Background(), "asdkjfh random gibberish xyz")
	require.Equal(t, types.QueryComplex, plan.Kind)
}

func TestPlanEstimatedTokensSumsLayerBudgets(t *testing.T) {
	p := testPrefrontal(nil)
	plan := p.Plan(context.Background(), "continue from where we left off")
	require.Equal(t, config.Default().Retrieval.TierTokenBudget["working"], plan.EstimatedTokens)
}
