package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cortexmem/engine/types"
)

func setupMockDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := gormpostgres.New(gormpostgres.Config{Conn: mockDB})
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	d, err := OpenWithGormDB(gormDB, zap.NewNop(), 1536)
	require.NoError(t, err)
	return d, mock
}

func TestDriverPing(t *testing.T) {
	d, mock := setupMockDriver(t)
	mock.ExpectPing()

	require.NoError(t, d.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverPingFailsWhenClosed(t *testing.T) {
	d, mock := setupMockDriver(t)
	mock.ExpectClose()
	require.NoError(t, d.Close())

	err := d.Ping(context.Background())
	require.Error(t, err)
}

func TestDriverPingPropagatesError(t *testing.T) {
	d, mock := setupMockDriver(t)
	mock.ExpectPing().WillReturnError(sql.ErrConnDone)

	require.Error(t, d.Ping(context.Background()))
}

func TestDriverClose(t *testing.T) {
	d, mock := setupMockDriver(t)
	mock.ExpectClose()

	require.NoError(t, d.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriverBundleAppendsWorkingMessage(t *testing.T) {
	d, mock := setupMockDriver(t)
	repos := d.Bundle()

	mock.ExpectExec(`INSERT INTO "working_messages"`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	msg := types.Message{ID: "m1", UserID: "u1", ConversationID: "c1", Role: types.RoleUser, Content: "hi", Timestamp: time.Now()}
	err := repos.Working.Append(context.Background(), msg)
	require.NoError(t, err)
}
