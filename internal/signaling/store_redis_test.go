package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisRequestStore_ResolveIsCAS(t *testing.T) {
	store := NewRedisRequestStore(newRedis(t), time.Hour)
	ctx := context.Background()

	req := session.CallRequest{ID: "r1", SessionID: "s1", CallerID: "u1", CalleeID: "e1", CallType: session.CallTypeAudio, Status: session.RequestPending, ExpiresAt: time.Now().Add(time.Minute)}
	require.NoError(t, store.Create(ctx, req))
	require.ErrorIs(t, store.Create(ctx, req), ErrConflict)

	got, err := store.Resolve(ctx, "r1", session.RequestExpired)
	require.NoError(t, err)
	require.Equal(t, session.RequestExpired, got.Status)

	got, err = store.Resolve(ctx, "r1", session.RequestAccepted)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, session.RequestExpired, got.Status)

	_, err = store.Resolve(ctx, "missing", session.RequestAccepted)
	require.ErrorIs(t, err, ErrRequestNotFound)
}

func TestRedisRequestStore_TTLFollowsRequestTimeline(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisRequestStore(rdb, time.Hour)

	// Created on a fake clock far from the wall clock.
	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	req := session.CallRequest{
		ID: "r1", SessionID: "s1", CallerID: "u1", CalleeID: "e1",
		CallType: session.CallTypeAudio, Status: session.RequestPending,
		CreatedAt: created, ExpiresAt: created.Add(2 * time.Minute),
	}
	require.NoError(t, store.Create(context.Background(), req))
	require.Equal(t, time.Hour+2*time.Minute, mr.TTL("call:request:r1"))
}

func TestRedisBus_PublishSubscribe(t *testing.T) {
	bus := NewRedisBus(newRedis(t), nil)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, SessionTopic("s1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, bus.Publish(ctx, SessionTopic("s1"), Message{Type: TypeCancel, RequestID: "r1", SessionID: "s1"}))
	select {
	case m := <-sub.C():
		require.Equal(t, TypeCancel, m.Type)
		require.Equal(t, "r1", m.RequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a frame")
	}
}

func TestMessage_WireFormat(t *testing.T) {
	exp := time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC)
	raw, err := json.Marshal(Message{Type: TypeRequest, RequestID: "r1", SessionID: "s1", CallerID: "u1", CalleeID: "e1", CallType: session.CallTypeVideo, ExpiresAt: &exp})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"request","requestId":"r1","sessionId":"s1","callerId":"u1","calleeId":"e1","callType":"video","expiresAt":"2026-01-01T00:01:00Z"}`, string(raw))
}
