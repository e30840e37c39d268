package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestWorkingRepoSqliteRecentExcludesExpired(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Working
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Content: "expired", Timestamp: past, ExpiresAt: &past}))

	msgs, err := repo.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestWorkingRepoSqliteTouchIncrementsAccessCount(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Working
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Timestamp: time.Now()}))
	require.NoError(t, repo.Touch(ctx, "m1"))

	msg, err := repo.ByID(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, 1, msg.AccessCount)
}

func TestWorkingRepoSqliteEvictRemovesExpiredOnly(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Working
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", ExpiresAt: &past}))
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m2", UserID: "u1", ConversationID: "c1", ExpiresAt: &future}))

	n, err := repo.Evict(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = repo.ByID(ctx, "m2")
	require.NoError(t, err)
}

func TestWorkingRepoSqliteDrainEmptiesConversation(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Working
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1"}))

	drained, err := repo.Drain(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Len(t, drained, 1)

	remaining, err := repo.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestWorkingRepoSqliteCountByUser(t *testing.T) {
	d := openTestDriver(t)
	repo := d.Bundle().Working
	ctx := context.Background()
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1"}))
	require.NoError(t, repo.Append(ctx, types.Message{ID: "m2", UserID: "u1", ConversationID: "c2"}))

	n, err := repo.CountByUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}
