package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cortexmem/engine/types"
)

// WorkingRepo implements memory.WorkingRepo over Redis. Each message is
// a JSON blob at a TTL-bearing string key; a per-conversation sorted set
// (score = unix timestamp) and a per-user set index it for Recent/Count/
// Drain/DeleteByUser without a full key scan.
type WorkingRepo struct {
	client     *redis.Client
	defaultTTL time.Duration
}

func msgKey(id string) string               { return "cortexmem:working:msg:" + id }
func convZKey(userID, convID string) string { return "cortexmem:working:conv:" + userID + ":" + convID }
func userSetKey(userID string) string       { return "cortexmem:working:user:" + userID }
func msgConvKey(id string) string           { return "cortexmem:working:msgconv:" + id }

func (r *WorkingRepo) Append(ctx context.Context, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return types.NewError(types.ErrInternal, "marshal message").WithCause(err)
	}

	ttl := time.Duration(0)
	if msg.ExpiresAt != nil {
		ttl = time.Until(*msg.ExpiresAt)
		if ttl <= 0 {
			ttl = time.Millisecond
		}
	} else if r.defaultTTL > 0 {
		ttl = r.defaultTTL
	}

	pipe := r.client.TxPipeline()
	if ttl > 0 {
		pipe.Set(ctx, msgKey(msg.ID), data, ttl)
	} else {
		pipe.Set(ctx, msgKey(msg.ID), data, 0)
	}
	zkey := convZKey(msg.UserID, msg.ConversationID)
	pipe.ZAdd(ctx, zkey, redis.Z{Score: float64(msg.Timestamp.UnixNano()), Member: msg.ID})
	pipe.SAdd(ctx, userSetKey(msg.UserID), msg.ID)
	pipe.Set(ctx, msgConvKey(msg.ID), zkey, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrUnavailable, "append working message").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *WorkingRepo) get(ctx context.Context, id string) (*types.Message, error) {
	data, err := r.client.Get(ctx, msgKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read working message").WithCause(err).WithRetryable(true)
	}
	var msg types.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, types.NewError(types.ErrInternal, "unmarshal message").WithCause(err)
	}
	return &msg, nil
}

func (r *WorkingRepo) Recent(ctx context.Context, userID, convID string, limit int) ([]types.Message, error) {
	zkey := convZKey(userID, convID)
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := r.client.ZRevRange(ctx, zkey, 0, stop).Result()
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read conversation index").WithCause(err).WithRetryable(true)
	}

	out := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			// Expired since the zset entry was written; lazily drop it.
			r.client.ZRem(ctx, zkey, id)
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

func (r *WorkingRepo) ByID(ctx context.Context, id string) (*types.Message, error) {
	msg, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, types.NewError(types.ErrNotFound, "message not found")
	}
	return msg, nil
}

func (r *WorkingRepo) Touch(ctx context.Context, id string) error {
	msg, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if msg == nil {
		return types.NewError(types.ErrNotFound, "message not found")
	}
	msg.AccessCount++
	now := time.Now()
	msg.LastAccessed = now

	data, err := json.Marshal(msg)
	if err != nil {
		return types.NewError(types.ErrInternal, "marshal message").WithCause(err)
	}
	if err := r.client.Set(ctx, msgKey(id), data, redis.KeepTTL).Err(); err != nil {
		return types.NewError(types.ErrUnavailable, "touch message").WithCause(err).WithRetryable(true)
	}
	return nil
}

func (r *WorkingRepo) CountByConversation(ctx context.Context, userID, convID string) (int, error) {
	n, err := r.client.ZCard(ctx, convZKey(userID, convID)).Result()
	if err != nil {
		return 0, types.NewError(types.ErrUnavailable, "count messages").WithCause(err).WithRetryable(true)
	}
	return int(n), nil
}

func (r *WorkingRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	n, err := r.client.SCard(ctx, userSetKey(userID)).Result()
	if err != nil {
		return 0, types.NewError(types.ErrUnavailable, "count messages").WithCause(err).WithRetryable(true)
	}
	return int(n), nil
}

// Evict removes conversation-index entries whose underlying key has
// already expired, returning how many were dropped.
func (r *WorkingRepo) Evict(ctx context.Context, userID, convID string) (int, error) {
	zkey := convZKey(userID, convID)
	ids, err := r.client.ZRange(ctx, zkey, 0, -1).Result()
	if err != nil {
		return 0, types.NewError(types.ErrUnavailable, "read conversation index").WithCause(err).WithRetryable(true)
	}
	evicted := 0
	for _, id := range ids {
		exists, err := r.client.Exists(ctx, msgKey(id)).Result()
		if err != nil {
			return evicted, types.NewError(types.ErrUnavailable, "check message existence").WithCause(err).WithRetryable(true)
		}
		if exists == 0 {
			r.client.ZRem(ctx, zkey, id)
			r.client.SRem(ctx, userSetKey(userID), id)
			r.client.Del(ctx, msgConvKey(id))
			evicted++
		}
	}
	return evicted, nil
}

func (r *WorkingRepo) Drain(ctx context.Context, userID, convID string) ([]types.Message, error) {
	zkey := convZKey(userID, convID)
	ids, err := r.client.ZRange(ctx, zkey, 0, -1).Result()
	if err != nil {
		return nil, types.NewError(types.ErrUnavailable, "read conversation index").WithCause(err).WithRetryable(true)
	}

	out := make([]types.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := r.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			out = append(out, *msg)
		}
		r.client.Del(ctx, msgKey(id), msgConvKey(id))
		r.client.SRem(ctx, userSetKey(userID), id)
	}
	r.client.Del(ctx, zkey)
	return out, nil
}

func (r *WorkingRepo) DeleteByUser(ctx context.Context, userID string) error {
	ids, err := r.client.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil {
		return types.NewError(types.ErrUnavailable, "read user index").WithCause(err).WithRetryable(true)
	}
	for _, id := range ids {
		if err := r.DeleteByID(ctx, id); err != nil {
			return err
		}
	}
	r.client.Del(ctx, userSetKey(userID))
	return nil
}

func (r *WorkingRepo) DeleteByID(ctx context.Context, id string) error {
	zkey, err := r.client.Get(ctx, msgConvKey(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return types.NewError(types.ErrUnavailable, "read message index").WithCause(err).WithRetryable(true)
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, msgKey(id))
	pipe.Del(ctx, msgConvKey(id))
	if zkey != "" {
		pipe.ZRem(ctx, zkey, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrUnavailable, "delete message").WithCause(err).WithRetryable(true)
	}
	return nil
}
