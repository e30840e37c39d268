package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestEpisodicRepoSqliteByUserOrdersByOccurredAtDesc(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Episodic
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e1", UserID: "u1", OccurredAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e2", UserID: "u1", OccurredAt: now}))

	events, err := repo.ByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "e2", events[0].ID)
}

func TestEpisodicRepoSqliteRecurringCandidatesRequiresMinOccurrences(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Episodic
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e1", UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e2", UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e3", UserID: "u1", EventType: "onboarding", OccurredAt: time.Now()}))

	groups, err := repo.RecurringCandidates(ctx, "u1", 2, 30*24*time.Hour)
	require.NoError(t, err)
	require.Contains(t, groups, "standup")
	require.NotContains(t, groups, "onboarding")
}

func TestEpisodicRepoSqliteRecurringCandidatesExcludesConsolidated(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Episodic
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e1", UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e2", UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))
	require.NoError(t, repo.MarkConsolidated(ctx, []string{"e1", "e2"}))

	groups, err := repo.RecurringCandidates(ctx, "u1", 2, 30*24*time.Hour)
	require.NoError(t, err)
	require.NotContains(t, groups, "standup")
}

func TestEpisodicRepoSqliteUpdateDecayNotFound(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Episodic
	err := repo.UpdateDecay(context.Background(), "nope", 0.5)
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestEpisodicRepoSqliteSearchByEmbedding(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Episodic
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e1", UserID: "u1", Embedding: []float32{1, 0}, OccurredAt: time.Now()}))
	require.NoError(t, repo.Put(ctx, types.EpisodicEvent{ID: "e2", UserID: "u1", Embedding: []float32{0, 1}, OccurredAt: time.Now()}))

	results, err := repo.SearchByEmbedding(ctx, "u1", []float32{1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "e1", results[0].ID)
}
