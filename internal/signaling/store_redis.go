package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

// RedisRequestStore keeps requests as hashes {payload, status} with a TTL.
// The status CAS runs as a Lua script so it holds across processes.
type RedisRequestStore struct {
	rdb    *redis.Client
	prefix string
	// retain is how long a request outlives its ExpiresAt.
	retain time.Duration
}

func NewRedisRequestStore(rdb *redis.Client, retain time.Duration) *RedisRequestStore {
	if retain <= 0 {
		retain = time.Hour
	}
	return &RedisRequestStore{rdb: rdb, prefix: "call:request:", retain: retain}
}

// KEYS[1] = request key, ARGV[1] = new status.
// Returns -1 if missing, 0 if already resolved, 1 on success.
var resolveScript = redis.NewScript(`
local s = redis.call('HGET', KEYS[1], 'status')
if not s then
  return -1
end
if s ~= 'pending' then
  return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[1])
return 1
`)

func (s *RedisRequestStore) key(id string) string { return s.prefix + id }

func (s *RedisRequestStore) Create(ctx context.Context, req session.CallRequest) error {
	if req.ID == "" || req.SessionID == "" {
		return ErrInvalidRequest
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	// Measured on the request's own timeline so an injected clock holds.
	ttl := s.retain
	if !req.CreatedAt.IsZero() {
		if life := req.ExpiresAt.Sub(req.CreatedAt); life > 0 {
			ttl += life
		}
	}

	key := s.key(req.ID)
	created, err := s.rdb.HSetNX(ctx, key, "payload", raw).Result()
	if err != nil {
		return err
	}
	if !created {
		return ErrConflict
	}
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, "status", string(req.Status))
	pipe.Expire(ctx, key, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisRequestStore) Get(ctx context.Context, requestID string) (session.CallRequest, error) {
	vals, err := s.rdb.HMGet(ctx, s.key(requestID), "payload", "status").Result()
	if err != nil {
		return session.CallRequest{}, err
	}
	payload, _ := vals[0].(string)
	status, _ := vals[1].(string)
	if payload == "" {
		return session.CallRequest{}, ErrRequestNotFound
	}
	var req session.CallRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return session.CallRequest{}, err
	}
	if status != "" {
		req.Status = session.RequestStatus(status)
	}
	return req, nil
}

func (s *RedisRequestStore) Resolve(ctx context.Context, requestID string, status session.RequestStatus) (session.CallRequest, error) {
	res, err := resolveScript.Run(ctx, s.rdb, []string{s.key(requestID)}, string(status)).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return session.CallRequest{}, err
	}
	switch res {
	case -1:
		return session.CallRequest{}, ErrRequestNotFound
	case 0:
		req, gerr := s.Get(ctx, requestID)
		if gerr != nil {
			return session.CallRequest{}, gerr
		}
		return req, ErrConflict
	}
	return s.Get(ctx, requestID)
}
