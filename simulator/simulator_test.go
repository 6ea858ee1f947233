package simulator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/wireline/transport"
)

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

// connect dials and blocks until the open event arrives.
func connect(t *testing.T, sim *Simulator) {
	t.Helper()
	opened := make(chan struct{})
	sim.OnOpen(func() { close(opened) })
	require.NoError(t, sim.Connect(context.Background()))
	waitSignal(t, opened, "open event")
}

func TestSimulatorConnectAndOpen(t *testing.T) {
	sim := New(Config{}, nil)
	connect(t, sim)

	assert.Equal(t, 1, sim.Stats().Dials)
}

func TestSimulatorConnectIsAsync(t *testing.T) {
	sim := New(Config{ConnectDelay: 50 * time.Millisecond}, nil)

	opened := make(chan struct{})
	sim.OnOpen(func() { close(opened) })
	require.NoError(t, sim.Connect(context.Background()))

	select {
	case <-opened:
		t.Fatal("open arrived before the configured connect delay")
	case <-time.After(10 * time.Millisecond):
	}
	waitSignal(t, opened, "open event")
}

func TestSimulatorScriptedDialFailures(t *testing.T) {
	sim := New(Config{ConnectFailures: 2}, nil)

	for i := 0; i < 2; i++ {
		var order []string
		closed := make(chan struct{})
		sim.OnOpen(func() { t.Error("scripted failure must not open") })
		sim.OnError(func(error) { order = append(order, "error") })
		sim.OnClose(func(code int, _ string) {
			order = append(order, "close")
			assert.Equal(t, transport.CloseAbnormal, code)
			close(closed)
		})

		require.NoError(t, sim.Connect(context.Background()))
		waitSignal(t, closed, "close event")
		assert.Equal(t, []string{"error", "close"}, order)
	}

	// The failure budget is spent; the third dial succeeds.
	sim.OnError(nil)
	sim.OnClose(nil)
	connect(t, sim)
	assert.Equal(t, 3, sim.Stats().Dials)
}

func TestSimulatorSendNotConnected(t *testing.T) {
	sim := New(Config{}, nil)
	assert.ErrorIs(t, sim.Send([]byte("nope")), transport.ErrNotConnected)
}

func TestSimulatorEchoRoundTrip(t *testing.T) {
	sim := New(Config{Echo: true, EchoDelay: time.Millisecond}, nil)
	frames := make(chan []byte, 1)
	sim.OnMessage(func(data []byte) { frames <- data })
	connect(t, sim)

	require.NoError(t, sim.Send([]byte("marco")))

	select {
	case data := <-frames:
		assert.Equal(t, "marco", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestSimulatorEchoFunc(t *testing.T) {
	sim := New(Config{
		Echo:     true,
		EchoFunc: func(sent []byte) []byte { return append([]byte("re: "), sent...) },
	}, nil)
	frames := make(chan []byte, 1)
	sim.OnMessage(func(data []byte) { frames <- data })
	connect(t, sim)

	require.NoError(t, sim.Send([]byte("marco")))

	select {
	case data := <-frames:
		assert.Equal(t, "re: marco", string(data))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for echo")
	}
}

func TestSimulatorDropGate(t *testing.T) {
	sim := New(Config{DropRate: 1}, nil)
	sim.OnMessage(func([]byte) { t.Error("a frame got past a 100% drop gate") })
	connect(t, sim)

	for i := 0; i < 10; i++ {
		sim.InjectFrame([]byte("lost"))
	}

	assert.Equal(t, 10, sim.Stats().InboundDropped)
}

func TestSimulatorInjectFrameDelivers(t *testing.T) {
	sim := New(Config{}, nil)
	var got []string
	sim.OnMessage(func(data []byte) { got = append(got, string(data)) })
	connect(t, sim)

	sim.InjectFrame([]byte("one"))
	sim.InjectFrame([]byte("two"))

	assert.Equal(t, []string{"one", "two"}, got)
	assert.Zero(t, sim.Stats().InboundDropped)
}

func TestSimulatorSeedReproducesDropPattern(t *testing.T) {
	pattern := func() []bool {
		sim := New(Config{DropRate: 0.5, Seed: 42}, nil)
		delivered := false
		sim.OnMessage(func([]byte) { delivered = true })
		connect(t, sim)

		var out []bool
		for i := 0; i < 32; i++ {
			delivered = false
			sim.InjectFrame([]byte("frame"))
			out = append(out, delivered)
		}
		return out
	}

	first := pattern()
	assert.Equal(t, first, pattern())
	assert.Contains(t, first, true)
	assert.Contains(t, first, false)
}

func TestSimulatorErrorRateTearsDownConnection(t *testing.T) {
	sim := New(Config{ErrorRate: 1}, nil)

	var order []string
	closed := make(chan struct{})
	sim.OnError(func(err error) {
		assert.Error(t, err)
		order = append(order, "error")
	})
	sim.OnClose(func(code int, _ string) {
		order = append(order, "close")
		assert.Equal(t, transport.CloseAbnormal, code)
		close(closed)
	})
	connect(t, sim)

	// The send itself succeeds; the blast arrives asynchronously.
	require.NoError(t, sim.Send([]byte("boom")))
	waitSignal(t, closed, "close event")

	assert.Equal(t, []string{"error", "close"}, order)
	assert.ErrorIs(t, sim.Send([]byte("after")), transport.ErrNotConnected)
	assert.Equal(t, 1, sim.Stats().Failures)
}

func TestSimulatorSendHookFailure(t *testing.T) {
	sim := New(Config{}, nil)
	sim.OnError(func(error) { t.Error("a send hook failure must not emit transport events") })
	sim.OnClose(func(int, string) { t.Error("a send hook failure must not close the connection") })
	connect(t, sim)

	hookErr := errors.New("wire jammed")
	sim.SetSendHook(func([]byte) error { return hookErr })

	err := sim.Send([]byte("doomed"))
	require.ErrorIs(t, err, hookErr)
	assert.Empty(t, sim.SentFrames(), "a hook-failed frame must not count as sent")

	// Clearing the hook restores normal sends on the same connection.
	sim.SetSendHook(nil)
	require.NoError(t, sim.Send([]byte("fine")))
	require.Len(t, sim.SentFrames(), 1)
	assert.Equal(t, "fine", string(sim.SentFrames()[0]))
}

func TestSimulatorFailWith(t *testing.T) {
	sim := New(Config{}, nil)

	var order []string
	closed := make(chan struct{})
	sim.OnError(func(err error) {
		assert.EqualError(t, err, "carrier lost")
		order = append(order, "error")
	})
	sim.OnClose(func(code int, reason string) {
		order = append(order, "close")
		assert.Equal(t, transport.CloseAbnormal, code)
		assert.Equal(t, "carrier lost", reason)
		close(closed)
	})
	connect(t, sim)

	sim.FailWith(errors.New("carrier lost"))
	waitSignal(t, closed, "close event")
	assert.Equal(t, []string{"error", "close"}, order)

	// A second fault on a dead connection is a no-op.
	sim.FailWith(errors.New("again"))
	assert.Equal(t, 1, sim.Stats().Failures)
}

func TestSimulatorCloseWithCode(t *testing.T) {
	sim := New(Config{}, nil)

	closed := make(chan struct{})
	sim.OnError(func(error) { t.Error("a clean peer close must not emit an error") })
	sim.OnClose(func(code int, reason string) {
		assert.Equal(t, transport.CloseNormal, code)
		assert.Equal(t, "done", reason)
		close(closed)
	})
	connect(t, sim)

	sim.CloseWithCode(transport.CloseNormal, "done")
	waitSignal(t, closed, "close event")
}

func TestSimulatorCloseIsSilent(t *testing.T) {
	sim := New(Config{Echo: true, EchoDelay: 20 * time.Millisecond}, nil)
	connect(t, sim)

	require.NoError(t, sim.Send([]byte("in flight")))

	sim.OnError(func(error) { t.Error("explicit close must not emit an error") })
	sim.OnClose(func(int, string) { t.Error("explicit close must not emit a close event") })
	sim.OnMessage(func([]byte) { t.Error("an echo must not survive a close") })
	require.NoError(t, sim.Close())

	// Outlive the in-flight echo to prove it was discarded.
	time.Sleep(60 * time.Millisecond)
	assert.ErrorIs(t, sim.Send([]byte("after")), transport.ErrNotConnected)
}

func TestSimulatorRateClamping(t *testing.T) {
	sim := New(Config{DropRate: 2.5, ErrorRate: -1}, nil)
	var got []byte
	sim.OnMessage(func(data []byte) { got = data })
	connect(t, sim)

	// DropRate clamped to 1: nothing gets through.
	sim.InjectFrame([]byte("gone"))
	assert.Nil(t, got)
	// ErrorRate clamped to 0: sends never blow up.
	for i := 0; i < 20; i++ {
		require.NoError(t, sim.Send([]byte("ok")))
	}
	assert.Zero(t, sim.Stats().Failures)
}
