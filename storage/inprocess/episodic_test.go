package inprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestEpisodicRepoPutAndByUser(t *testing.T) {
	r := NewEpisodicRepo()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, types.EpisodicEvent{ID: "e1", UserID: "u1", OccurredAt: time.Now()}))

	events, err := r.ByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestEpisodicRepoRecurringCandidatesRequiresMinOccurrences(t *testing.T) {
	r := NewEpisodicRepo()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, types.EpisodicEvent{ID: "e1", UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))
	require.NoError(t, r.Put(ctx, types.EpisodicEvent{ID: "e2", UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))

	groups, err := r.RecurringCandidates(ctx, "u1", 3, 30*24*time.Hour)
	require.NoError(t, err)
	require.Empty(t, groups)

	require.NoError(t, r.Put(ctx, types.EpisodicEvent{ID: "e3", UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))
	groups, err = r.RecurringCandidates(ctx, "u1", 3, 30*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, groups["standup"], 3)
}

func TestEpisodicRepoRecurringCandidatesExcludesConsolidated(t *testing.T) {
	r := NewEpisodicRepo()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, r.Put(ctx, types.EpisodicEvent{ID: string(rune('a' + i)), UserID: "u1", EventType: "standup", OccurredAt: time.Now()}))
	}
	require.NoError(t, r.MarkConsolidated(ctx, []string{"a"}))

	groups, err := r.RecurringCandidates(ctx, "u1", 3, 30*24*time.Hour)
	require.NoError(t, err)
	require.Empty(t, groups)
}

func TestEpisodicRepoUpdateDecay(t *testing.T) {
	r := NewEpisodicRepo()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, types.EpisodicEvent{ID: "e1", UserID: "u1", DecayFactor: 1.0}))
	require.NoError(t, r.UpdateDecay(ctx, "e1", 0.3))

	events, err := r.ByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.InDelta(t, 0.3, events[0].DecayFactor, 1e-9)
}
