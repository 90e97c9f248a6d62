package signaling

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/suman7063/ifindLife-sub000/internal/session"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, m)
}

func (r *recorder) types() []MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]MessageType, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Type)
	}
	return out
}

func newTestChannel(t *testing.T) (*Channel, *MemoryBus, *clockwork.FakeClock) {
	t.Helper()
	bus := NewMemoryBus()
	clock := clockwork.NewFakeClock()
	ch := NewChannel(bus, NewMemoryRequestStore(), clock, WithRequestTTL(time.Minute))
	t.Cleanup(ch.Close)
	return ch, bus, clock
}

func subscribe(t *testing.T, ch *Channel, sessionID string) *recorder {
	t.Helper()
	rec := &recorder{}
	unsub, err := ch.Subscribe(context.Background(), sessionID, rec.handle)
	require.NoError(t, err)
	t.Cleanup(unsub)
	return rec
}

func validRequest() Request {
	return Request{SessionID: "s1", CallerID: "u1", CalleeID: "e1", CallType: session.CallTypeVideo}
}

func TestChannel_RequestThenAccept(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	rec := subscribe(t, ch, "s1")

	id, err := ch.PublishRequest(context.Background(), validRequest())
	require.NoError(t, err)
	require.NoError(t, ch.Respond(context.Background(), id, true))

	require.Eventually(t, func() bool {
		return len(rec.types()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []MessageType{TypeRequest, TypeAccept}, rec.types())

	// A resolved request cannot be answered again.
	err = ch.Respond(context.Background(), id, false)
	require.True(t, errors.Is(err, ErrConflict), "got %v", err)
	err = ch.Cancel(context.Background(), id)
	require.True(t, errors.Is(err, ErrConflict), "got %v", err)
}

func TestChannel_ExpiresExactlyOnce(t *testing.T) {
	ch, _, clock := newTestChannel(t)
	rec := subscribe(t, ch, "s1")

	id, err := ch.PublishRequest(context.Background(), validRequest())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	require.Eventually(t, func() bool {
		return len(rec.types()) == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, TypeExpire, rec.types()[1])

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, rec.types(), 2)

	require.True(t, errors.Is(ch.Respond(context.Background(), id, true), ErrConflict))
}

func TestChannel_AcceptDisarmsExpiry(t *testing.T) {
	ch, _, clock := newTestChannel(t)
	rec := subscribe(t, ch, "s1")

	id, err := ch.PublishRequest(context.Background(), validRequest())
	require.NoError(t, err)
	require.NoError(t, ch.Respond(context.Background(), id, false))

	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		return len(rec.types()) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []MessageType{TypeRequest, TypeDecline}, rec.types())
}

func TestChannel_SubscribeDropsDuplicates(t *testing.T) {
	ch, bus, _ := newTestChannel(t)
	rec := subscribe(t, ch, "s1")

	m := Message{Type: TypeAccept, RequestID: "r1", SessionID: "s1"}
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, SessionTopic("s1"), m))
	require.NoError(t, bus.Publish(ctx, SessionTopic("s1"), m))
	require.NoError(t, bus.Publish(ctx, SessionTopic("s1"), Message{Type: TypeDecline, RequestID: "r1", SessionID: "s1"}))

	require.Eventually(t, func() bool {
		return len(rec.types()) == 2
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, []MessageType{TypeAccept, TypeDecline}, rec.types())
}

func TestChannel_NotifyReachesUserTopic(t *testing.T) {
	ch, bus, _ := newTestChannel(t)
	sub, err := bus.Subscribe(context.Background(), UserTopic("u1"))
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, ch.Notify(context.Background(), "u1", Message{Type: TypeWarning, SessionID: "s1", Reason: "no_show_warning"}))
	select {
	case m := <-sub.C():
		require.Equal(t, TypeWarning, m.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a frame on the user topic")
	}
}

func TestChannel_RejectsInvalidRequest(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	_, err := ch.PublishRequest(context.Background(), Request{SessionID: "s1", CallerID: "u1", CalleeID: "e1", CallType: "hologram"})
	require.ErrorIs(t, err, ErrInvalidRequest)
}

func TestChannel_ConcurrentResolutionsHaveOneWinner(t *testing.T) {
	ch, _, _ := newTestChannel(t)
	id, err := ch.PublishRequest(context.Background(), validRequest())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				err = ch.Respond(context.Background(), id, true)
			} else {
				err = ch.Cancel(context.Background(), id)
			}
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}
