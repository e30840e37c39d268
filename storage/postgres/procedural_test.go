package postgres

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/cortexmem/engine/types"
)

func TestProceduralRepoPutWritesRow(t *testing.T) {
	d, mock := setupMockDriver(t)
	repo := d.Bundle().Procedural

	mock.ExpectExec(`INSERT INTO "procedural_patterns"`).WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.Put(context.Background(), types.ProceduralPattern{ID: "p1", UserID: "u1", Name: "deploy"}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProceduralRepoByIDNotFound(t *testing.T) {
	d, mock := setupMockDriver(t)
	repo := d.Bundle().Procedural

	mock.ExpectQuery(`SELECT \* FROM "procedural_patterns"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.ByID(context.Background(), "nope")
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestProceduralRepoTouchNotFound(t *testing.T) {
	d, mock := setupMockDriver(t)
	repo := d.Bundle().Procedural

	mock.ExpectExec(`UPDATE "procedural_patterns" SET`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Touch(context.Background(), "nope", true)
	require.Error(t, err)
	require.Equal(t, types.ErrNotFound, types.GetErrorCode(err))
}

func TestProceduralRepoTouchSuccess(t *testing.T) {
	d, mock := setupMockDriver(t)
	repo := d.Bundle().Procedural

	mock.ExpectExec(`UPDATE "procedural_patterns" SET`).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Touch(context.Background(), "p1", true))
}
