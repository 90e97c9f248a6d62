package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/suman7063/ifindLife-sub000/internal/signaling"
	"github.com/suman7063/ifindLife-sub000/pkg/logger"
)

// stalledBus holds Subscribe for one user's topic until released.
type stalledBus struct {
	signaling.Bus
	topic   string
	entered chan struct{}
	release chan struct{}
}

func (b *stalledBus) Subscribe(ctx context.Context, topic string) (signaling.Subscription, error) {
	if topic == b.topic {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.Bus.Subscribe(ctx, topic)
}

func TestHub_SlowSubscribeDoesNotBlockOtherUsers(t *testing.T) {
	bus := &stalledBus{
		Bus:     signaling.NewMemoryBus(),
		topic:   signaling.UserTopic("slow"),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	hub := NewHub(bus, logger.Discard())
	ctx := context.Background()

	slow := make(chan error, 1)
	go func() {
		_, err := hub.Register(ctx, "slow", nil)
		slow <- err
	}()
	<-bus.entered

	fast := make(chan *Client, 1)
	go func() {
		c, err := hub.Register(ctx, "fast", nil)
		if err == nil {
			fast <- c
		}
	}()
	var c *Client
	select {
	case c = <-fast:
	case <-time.After(2 * time.Second):
		t.Fatal("register waited on another user's subscribe")
	}
	require.True(t, hub.Online("fast"))
	require.False(t, hub.Online("slow"))
	hub.Unregister(c)

	close(bus.release)
	require.NoError(t, <-slow)
	require.True(t, hub.Online("slow"))
	require.Equal(t, 1, hub.Connections())
}

func TestHub_SecondConnectionReusesSubscription(t *testing.T) {
	hub := NewHub(signaling.NewMemoryBus(), logger.Discard())
	ctx := context.Background()

	a, err := hub.Register(ctx, "u1", nil)
	require.NoError(t, err)
	b, err := hub.Register(ctx, "u1", nil)
	require.NoError(t, err)
	require.Equal(t, 2, hub.Connections())

	hub.Unregister(a)
	require.True(t, hub.Online("u1"))
	hub.Unregister(b)
	require.False(t, hub.Online("u1"))
}
