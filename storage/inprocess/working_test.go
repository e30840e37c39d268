package inprocess

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestWorkingRepoAppendAndRecent(t *testing.T) {
	r := NewWorkingRepo()
	ctx := context.Background()
	now := time.Now()
	require.NoError(t, r.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Content: "hi", Timestamp: now}))
	require.NoError(t, r.Append(ctx, types.Message{ID: "m2", UserID: "u1", ConversationID: "c1", Content: "again", Timestamp: now.Add(time.Second)}))

	msgs, err := r.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m2", msgs[0].ID)
}

func TestWorkingRepoRecentExcludesExpired(t *testing.T) {
	r := NewWorkingRepo()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, r.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Content: "expired", Timestamp: past, ExpiresAt: &past}))

	msgs, err := r.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestWorkingRepoByIDNotFound(t *testing.T) {
	r := NewWorkingRepo()
	_, err := r.ByID(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestWorkingRepoEvictRemovesExpiredOnly(t *testing.T) {
	r := NewWorkingRepo()
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	require.NoError(t, r.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", ExpiresAt: &past}))
	require.NoError(t, r.Append(ctx, types.Message{ID: "m2", UserID: "u1", ConversationID: "c1", ExpiresAt: &future}))

	n, err := r.Evict(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = r.ByID(ctx, "m2")
	require.NoError(t, err)
}

func TestWorkingRepoDrainEmptiesConversation(t *testing.T) {
	r := NewWorkingRepo()
	ctx := context.Background()
	require.NoError(t, r.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1"}))

	drained, err := r.Drain(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Len(t, drained, 1)

	remaining, err := r.Recent(ctx, "u1", "c1", 10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestWorkingRepoDeleteByUser(t *testing.T) {
	r := NewWorkingRepo()
	ctx := context.Background()
	require.NoError(t, r.Append(ctx, types.Message{ID: "m1", UserID: "u1", ConversationID: "c1"}))
	require.NoError(t, r.Append(ctx, types.Message{ID: "m2", UserID: "u2", ConversationID: "c2"}))

	require.NoError(t, r.DeleteByUser(ctx, "u1"))
	_, err := r.ByID(ctx, "m1")
	require.Error(t, err)
	_, err = r.ByID(ctx, "m2")
	require.NoError(t, err)
}
