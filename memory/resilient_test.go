package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cortexmem/engine/types"
)

// flakyWorkingRepo fails its first failCount calls with a retryable
// ErrUnavailable, then succeeds.
type flakyWorkingRepo struct {
	fakeWorkingRepo
	failCount int
	calls     int
}

func (f *flakyWorkingRepo) Append(ctx context.Context, msg types.Message) error {
	f.calls++
	if f.calls <= f.failCount {
		return types.NewError(types.ErrUnavailable, "store down").WithRetryable(true)
	}
	return f.fakeWorkingRepo.Append(ctx, msg)
}

// alwaysDownWorkingRepo always fails retryably and never recovers.
type alwaysDownWorkingRepo struct {
	fakeWorkingRepo
	calls int
}

func (a *alwaysDownWorkingRepo) Append(ctx context.Context, msg types.Message) error {
	a.calls++
	return types.NewError(types.ErrUnavailable, "store down").WithRetryable(true)
}

func fastPolicy() BackoffPolicy {
	return BackoffPolicy{Base: time.Millisecond, Factor: 2, Max: 10 * time.Millisecond, MaxRetries: 3}
}

func TestResilientWorkingRepoRetriesThenSucceeds(t *testing.T) {
	flaky := &flakyWorkingRepo{fakeWorkingRepo: *newFakeWorkingRepo(), failCount: 2}
	r := NewResilientWorkingRepo(flaky, nil, fastPolicy(), zap.NewNop())

	err := r.Append(context.Background(), types.Message{ID: "m1", UserID: "u1", ConversationID: "c1"})
	require.NoError(t, err)
	require.Equal(t, 3, flaky.calls)
}

func TestResilientWorkingRepoFallsBackAfterExhaustion(t *testing.T) {
	down := &alwaysDownWorkingRepo{fakeWorkingRepo: *newFakeWorkingRepo()}
	fallback := newFakeWorkingRepo()
	r := NewResilientWorkingRepo(down, fallback, fastPolicy(), zap.NewNop())

	err := r.Append(context.Background(), types.Message{ID: "m1", UserID: "u1", ConversationID: "c1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), r.PrimaryErrorCount())

	stored, err := fallback.ByID(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestResilientWorkingRepoNoFallbackSurfacesError(t *testing.T) {
	down := &alwaysDownWorkingRepo{fakeWorkingRepo: *newFakeWorkingRepo()}
	r := NewResilientWorkingRepo(down, nil, fastPolicy(), zap.NewNop())

	err := r.Append(context.Background(), types.Message{ID: "m1"})
	require.Error(t, err)
	require.True(t, types.IsRetryable(err))
}

func TestResilientWorkingRepoNonRetryableErrorSkipsRetry(t *testing.T) {
	repo := newFakeWorkingRepo()
	repo.appendErr = types.NewError(types.ErrValidation, "bad message")
	r := NewResilientWorkingRepo(repo, newFakeWorkingRepo(), fastPolicy(), zap.NewNop())

	err := r.Append(context.Background(), types.Message{ID: "m1"})
	require.Error(t, err)
	require.Equal(t, types.ErrValidation, types.GetErrorCode(err))
	require.Equal(t, 1, repo.appendCalls)
}

func TestBackoffPolicyDelayGrowsAndCaps(t *testing.T) {
	p := BackoffPolicy{Base: 10 * time.Millisecond, Factor: 2, Max: 50 * time.Millisecond, MaxRetries: 5}
	require.Equal(t, 10*time.Millisecond, p.Delay(0))
	require.Equal(t, 20*time.Millisecond, p.Delay(1))
	require.Equal(t, 40*time.Millisecond, p.Delay(2))
	require.Equal(t, 50*time.Millisecond, p.Delay(3))
}
