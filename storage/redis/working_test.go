package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cortexmem/engine/types"
)

func newTestRepo(t *testing.T) *WorkingRepo {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	d := OpenWithClient(client, Config{DefaultTTL: time.Hour}, zap.NewNop())
	t.Cleanup(func() { _ = d.Close() })
	return d.WorkingRepo()
}

func TestWorkingRepoRedisAppendAndRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Content: "hi", Timestamp: now}))
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m2", UserID: "u1", ConversationID: "c1", Content: "again", Timestamp: now.Add(time.Second)}))

	msgs, err := repo.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m2", msgs[0].ID)
}

func TestWorkingRepoRedisByIDNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.ByID(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestWorkingRepoRedisTouchIncrementsAccessCount(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Timestamp: time.Now()}))
	require.NoError(t, repo.Touch(ctx, "m1"))

	msg, err := repo.ByID(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, 1, msg.AccessCount)
}

func TestWorkingRepoRedisExpiresNaturally(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	d := OpenWithClient(client, Config{}, zap.NewNop())
	repo := d.WorkingRepo()
	ctx := context.Background()

	expiresAt := time.Now().Add(time.Minute)
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Timestamp: time.Now(), ExpiresAt: &expiresAt}))

	mr.FastForward(2 * time.Minute)

	msgs, err := repo.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestWorkingRepoRedisDrainEmptiesConversation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Timestamp: time.Now()}))

	drained, err := repo.Drain(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Len(t, drained, 1)

	remaining, err := repo.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestWorkingRepoRedisDeleteByUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Timestamp: time.Now()}))
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m2", UserID: "u2", ConversationID: "c2", Timestamp: time.Now()}))

	require.NoError(t, repo.DeleteByUser(ctx, "u1"))
	_, err := repo.ByID(ctx, "m1")
	require.Error(t, err)
	_, err = repo.ByID(ctx, "m2")
	require.NoError(t, err)
}

func TestWorkingRepoRedisCountByConversation(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Timestamp: time.Now()}))
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m2", UserID: "u1", ConversationID: "c1", Timestamp: time.Now()}))

	n, err := repo.CountByConversation(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
