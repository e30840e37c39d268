package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestProceduralRepoSqlitePutAndByID(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Procedural
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, types.ProceduralPattern{ID: "p1", UserID: "u1", Name: "deploy checklist"}))

	p, err := repo.ByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, "deploy checklist", p.Name)
}

func TestProceduralRepoSqliteByIDNotFound(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Procedural
	_, err := repo.ByID(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestProceduralRepoSqliteTouchTracksSuccessAndFailure(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Procedural
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, types.ProceduralPattern{ID: "p1", UserID: "u1"}))
	require.NoError(t, repo.Touch(ctx, "p1", true))
	require.NoError(t, repo.Touch(ctx, "p1", false))

	p, err := repo.ByID(ctx, "p1")
	require.NoError(t, err)
	require.Equal(t, 2, p.UsageCount)
	require.Equal(t, 1, p.SuccessCount)
	require.Equal(t, 1, p.FailureCount)
}

func TestProceduralRepoSqliteTouchNotFound(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Procedural
	err := repo.Touch(context.Background(), "nope", true)
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestProceduralRepoSqliteDeleteByUser(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Procedural
	ctx := context.Background()
	require.NoError(t, repo.Put(ctx, types.ProceduralPattern{ID: "p1", UserID: "u1"}))
	require.NoError(t, repo.Put(ctx, types.ProceduralPattern{ID: "p2", UserID: "u2"}))

	require.NoError(t, repo.DeleteByUser(ctx, "u1"))
	_, err := repo.ByID(ctx, "p1")
	require.Error(t, err)
	_, err = repo.ByID(ctx, "p2")
	require.NoError(t, err)
}
