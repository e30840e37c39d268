package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDriverPing(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	d := OpenWithClient(client, Config{}, zap.NewNop())

	require.NoError(t, d.Ping(context.Background()))
}

func TestDriverPingAfterCloseFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	d := OpenWithClient(client, Config{}, zap.NewNop())

	require.NoError(t, d.Close())
	require.Error(t, d.Ping(context.Background()))
}

func TestOpenFailsOnBadAddr(t *testing.T) {
	_, err := Open(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	require.Error(t, err)
}
