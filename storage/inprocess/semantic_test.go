package inprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestSemanticRepoPutAndByKey(t *testing.T) {
	r := NewSemanticRepo()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, types.ExtractedFact{ID: "f1", UserID: "u1", Key: "favorite_editor", Value: "neovim", CreatedAt: time.Now()}))

	f, err := r.ByKey(ctx, "u1", "favorite_editor")
	require.NoError(t, err)
	require.Equal(t, "neovim", f.Value)
}

func TestSemanticRepoSoftDeleteExcludedFromReads(t *testing.T) {
	r := NewSemanticRepo()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, types.ExtractedFact{ID: "f1", UserID: "u1", Key: "k", CreatedAt: time.Now()}))
	require.NoError(t, r.SoftDelete(ctx, []string{"f1"}))

	_, err := r.ByKey(ctx, "u1", "k")
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))

	facts, err := r.ByUser(ctx, "u1", 10)
	require.NoError(t, err)
	require.Empty(t, facts)
}

func TestSemanticRepoSearchByEmbeddingRanksBySimilarity(t *testing.T) {
	r := NewSemanticRepo()
	ctx := context.Background()
	require.NoError(t, r.Put(ctx, types.ExtractedFact{ID: "close", UserID: "u1", Embedding: []float32{1, 0, 0}, CreatedAt: time.Now()}))
	require.NoError(t, r.Put(ctx, types.ExtractedFact{ID: "far", UserID: "u1", Embedding: []float32{0, 1, 0}, CreatedAt: time.Now()}))

	results, err := r.SearchByEmbedding(ctx, "u1", []float32{0.9, 0.1, 0}, 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "close", results[0].ID)
}

func TestSemanticRepoSearchByEmbeddingRespectsTopK(t *testing.T) {
	r := NewSemanticRepo()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Put(ctx, types.ExtractedFact{ID: string(rune('a' + i)), UserID: "u1", Embedding: []float32{1, 0, 0}, CreatedAt: time.Now()}))
	}
	results, err := r.SearchByEmbedding(ctx, "u1", []float32{1, 0, 0}, 2, 0.0)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSemanticRepoStaleForCluster(t *testing.T) {
	r := NewSemanticRepo()
	ctx := context.Background()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()
	require.NoError(t, r.Put(ctx, types.ExtractedFact{ID: "old", UserID: "u1", CreatedAt: old}))
	require.NoError(t, r.Put(ctx, types.ExtractedFact{ID: "new", UserID: "u1", CreatedAt: recent}))

	stale, err := r.StaleForCluster(ctx, "u1", time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "old", stale[0].ID)
}
