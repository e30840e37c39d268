package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestToFromEpisodicDocRoundTrip(t *testing.T) {
	event := types.EpisodicEvent{
		ID: "e1", UserID: "u1", ConversationID: "c1", EventType: "standup",
		Content: "daily standup", OccurredAt: time.Now().Truncate(time.Millisecond),
		DecayFactor: 0.8, Embedding: []float32{0.1, 0.2}, Metadata: map[string]any{"room": "3"},
	}

	doc := toEpisodicDoc(event)
	back := fromEpisodicDoc(doc)

	require.Equal(t, event.ID, back.ID)
	require.Equal(t, event.EventType, back.EventType)
	require.Equal(t, event.DecayFactor, back.DecayFactor)
	require.Equal(t, event.Embedding, back.Embedding)
	require.True(t, event.OccurredAt.Equal(back.OccurredAt))
}

func TestEpisodicRepoSearchByEmbeddingReportsCapabilityMissing(t *testing.T) {
	repo := &EpisodicRepo{}
	_, err := repo.SearchByEmbedding(context.Background(), "u1", []float32{1, 0}, 5, 0.5)
	require.Error(t, err)
	require.Equal(t, types.ErrCapabilityMissing, types.GetErrorCode(err))
}
