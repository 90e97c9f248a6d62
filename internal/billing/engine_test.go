package billing

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func TestEngine_TicksUntilStopped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan Tick, 16)
	e := NewEngine(clock, time.Second, func(ctx context.Context, tk Tick) {
		select {
		case ticks <- tk:
		case <-ctx.Done():
		}
	})

	require.True(t, e.Start("s1"))
	require.False(t, e.Start("s1"), "second start must be rejected")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(time.Second)
	select {
	case tk := <-ticks:
		require.Equal(t, "s1", tk.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a tick")
	}

	e.Stop("s1")
	require.False(t, e.Running("s1"))
	e.StopAll()
}

func TestEngine_StopAllWaits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := NewEngine(clock, time.Second, func(ctx context.Context, tk Tick) {})
	e.Start("a")
	e.Start("b")
	require.True(t, e.Running("a"))
	require.True(t, e.Running("b"))
	e.StopAll()
	require.False(t, e.Running("a"))
	require.False(t, e.Running("b"))
}
