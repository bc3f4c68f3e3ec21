package gate

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/eniac111/ftl2/internal/types"
	"github.com/stretchr/testify/require"
)

// newTestGate wires a Gate directly to one end of an in-memory pipe,
// bypassing Open's SSH dial and bundle staging so Execute/readLoop can be
// exercised against a scripted fake gate process on the other end.
func newTestGate(t *testing.T) (*Gate, net.Conn) {
	t.Helper()
	controllerSide, fakeProcessSide := net.Pipe()
	t.Cleanup(func() { controllerSide.Close(); fakeProcessSide.Close() })

	g := &Gate{
		host:   types.Host{Name: "web-1"},
		stdin:  controllerSide,
		doneCh: make(chan struct{}),
	}
	readyCh := g.armReadySignal()
	go g.readLoop(controllerSide)

	require.NoError(t, WriteFrame(fakeProcessSide, Frame{Type: "ready"}))
	select {
	case <-readyCh:
	case <-time.After(2 * time.Second):
		t.Fatal("ready signal never arrived")
	}
	return g, fakeProcessSide
}

func TestExecuteReturnsCorrelatedResult(t *testing.T) {
	g, fake := newTestGate(t)

	go func() {
		req, err := ReadFrame(fake)
		require.NoError(t, err)
		require.Equal(t, "execute", req.Type)
		require.Equal(t, "shell", req.Module)
		require.NoError(t, WriteFrame(fake, Frame{
			Type: "result", ID: req.ID, Success: true, Changed: true,
			Output: map[string]any{"stdout": "hi"},
		}))
	}()

	out, err := g.Execute(context.Background(), "shell", map[string]any{"cmd": "echo hi"}, false, nil)
	require.NoError(t, err)
	require.True(t, out.Success)
	require.True(t, out.Changed)
	require.Equal(t, "hi", out.Output["stdout"])
}

func TestExecuteForwardsEventsBeforeResult(t *testing.T) {
	g, fake := newTestGate(t)

	var received []types.Event
	sink := func(ev types.Event) { received = append(received, ev) }

	go func() {
		req, err := ReadFrame(fake)
		require.NoError(t, err)
		require.NoError(t, WriteFrame(fake, Frame{Type: "event", ID: req.ID, Kind: "progress", Payload: map[string]any{"percent": 50.0}}))
		require.NoError(t, WriteFrame(fake, Frame{Type: "result", ID: req.ID, Success: true}))
	}()

	_, err := g.Execute(context.Background(), "shell", nil, false, sink)
	require.NoError(t, err)
	require.Len(t, received, 1)
	require.Equal(t, types.EventKind("progress"), received[0].Kind)
}

func TestExecuteFailsEveryPendingCallOnTransportLoss(t *testing.T) {
	g, fake := newTestGate(t)

	resultCh := make(chan error, 1)
	go func() {
		_, err := g.Execute(context.Background(), "shell", nil, false, nil)
		resultCh <- err
	}()

	// Give the execute call a moment to register before severing the pipe.
	time.Sleep(50 * time.Millisecond)
	fake.Close()

	select {
	case err := <-resultCh:
		require.Error(t, err)
		kind, ok := types.KindOf(err)
		require.True(t, ok)
		require.Equal(t, types.KindTransportLost, kind)
	case <-time.After(2 * time.Second):
		t.Fatal("execute did not fail after transport loss")
	}
}

func TestListModulesReturnsCorrelatedReply(t *testing.T) {
	g, fake := newTestGate(t)

	go func() {
		req, err := ReadFrame(fake)
		require.NoError(t, err)
		require.Equal(t, "list_modules", req.Type)
		require.NoError(t, WriteFrame(fake, Frame{
			Type: "list_modules_result", ID: req.ID, Modules: []string{"greet", "deploy"},
		}))
	}()

	modules, err := g.ListModules(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"greet", "deploy"}, modules)
}

func TestExecuteCancellationBlacklistsLateResult(t *testing.T) {
	g, fake := newTestGate(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		req, err := ReadFrame(fake)
		require.NoError(t, err)
		time.Sleep(50 * time.Millisecond)
		// Late result for an id the caller has already abandoned.
		_ = WriteFrame(fake, Frame{Type: "result", ID: req.ID, Success: true})
	}()

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := g.Execute(ctx, "shell", nil, false, nil)
	require.Error(t, err)
	kind, _ := types.KindOf(err)
	require.Equal(t, types.KindCancelled, kind)
}
