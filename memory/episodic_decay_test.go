package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cortexmem/engine/types"
)

func TestEpisodicDecayHalvesAtHalfLife(t *testing.T) {
	d := NewEpisodicDecay(24*time.Hour, zap.NewNop())
	now := time.Now()
	factor := d.Compute(now.Add(-24*time.Hour), now)
	require.InDelta(t, 0.5, factor, 0.01)
}

func TestEpisodicDecayFreshEventNearOne(t *testing.T) {
	d := NewEpisodicDecay(24*time.Hour, zap.NewNop())
	now := time.Now()
	factor := d.Compute(now, now)
	require.InDelta(t, 1.0, factor, 0.01)
}

func TestEpisodicDecayZeroHalfLifeAlwaysOne(t *testing.T) {
	d := NewEpisodicDecay(0, zap.NewNop())
	require.Equal(t, 1.0, d.Compute(time.Now().Add(-100*time.Hour), time.Now()))
}

func TestEpisodicDecayRefreshUpdatesRepo(t *testing.T) {
	repo := newFakeEpisodicRepo()
	require.NoError(t, repo.Put(context.Background(), types.EpisodicEvent{ID: "e1", UserID: "u1", OccurredAt: time.Now().Add(-48 * time.Hour), DecayFactor: 1.0}))

	d := NewEpisodicDecay(24*time.Hour, zap.NewNop())
	n, err := d.Refresh(context.Background(), repo, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Less(t, repo.events["e1"].DecayFactor, 1.0)
}
