package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestEpisodicRepoPutWritesRowAndEmbedding(t *testing.T) {
	d, mock := setupMockDriver(t)
	repo := d.Bundle().Episodic

	mock.ExpectExec(`INSERT INTO "episodic_events"`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`UPDATE episodic_events SET embedding`).WillReturnResult(sqlmock.NewResult(1, 1))

	event := types.EpisodicEvent{ID: "e1", UserID: "u1", EventType: "standup", Embedding: []float32{1, 0}, OccurredAt: time.Now()}
	require.NoError(t, repo.Put(context.Background(), event))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEpisodicRepoSearchByEmbeddingRejectsEmptyQuery(t *testing.T) {
	d, _ := setupMockDriver(t)
	repo := d.Bundle().Episodic

	_, err := repo.SearchByEmbedding(context.Background(), "u1", nil, 5, 0.5)
	require.Error(t, err)
	require.Equal(t, types.ErrValidation, types.GetErrorCode(err))
}

func TestEpisodicRepoUpdateDecayNotFound(t *testing.T) {
	d, mock := setupMockDriver(t)
	repo := d.Bundle().Episodic

	mock.ExpectExec(`UPDATE "episodic_events" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateDecay(context.Background(), "nope", 0.5)
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestEpisodicRepoUpdateDecaySucceeds(t *testing.T) {
	d, mock := setupMockDriver(t)
	repo := d.Bundle().Episodic

	mock.ExpectExec(`UPDATE "episodic_events" SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateDecay(context.Background(), "e1", 0.5))
}
