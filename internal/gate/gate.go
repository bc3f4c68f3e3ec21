package gate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eniac111/ftl2/internal/events"
	"github.com/eniac111/ftl2/internal/sshtransport"
	"github.com/eniac111/ftl2/internal/types"
	"golang.org/x/crypto/ssh"
)

const (
	readyTimeout    = 30 * time.Second
	shutdownGrace   = 5 * time.Second
	remoteCacheBase = ".cache/ftl2/gates"
)

// pendingCall tracks one in-flight execute/info/list_modules request
// awaiting its correlated result frame. Each id is a monotonic per-gate
// integer with at most one pending request outstanding.
type pendingCall struct {
	sink   events.Sink
	result chan Frame
}

// Gate is the controller-side handle to one long-lived remote interpreter
// process for a (host, bundle fingerprint) pair. It owns the
// SSH session, serializes writes, and demultiplexes the read side into
// correlated results and interleaved events.
type Gate struct {
	host        types.Host
	fingerprint string

	client  *ssh.Client
	session *ssh.Session
	stdin   io.Writer
	writeMu sync.Mutex

	nextID  atomic.Int64
	pending sync.Map // int64 -> *pendingCall

	closed  atomic.Bool
	lostErr atomic.Value // error
	doneCh  chan struct{}
}

// Open stages bundle on host (if not already present) and launches the
// gate process over SSH, blocking until a "ready" frame arrives or
// readyTimeout elapses.
func Open(ctx context.Context, host types.Host, bundle types.Bundle) (*Gate, error) {
	client, err := sshtransport.Dial(host)
	if err != nil {
		return nil, err
	}

	remoteDir := path.Join(remoteCacheBase, bundle.Fingerprint)
	stubPath := path.Join(remoteDir, "ftl2gate")

	exists, err := sshtransport.Exists(client, stubPath)
	if err != nil {
		client.Close()
		return nil, types.NewHostError(types.KindTransportLost, host.Name, "cannot probe remote bundle cache", err)
	}
	if !exists {
		archivePath := path.Join(remoteDir, "bundle.tar.gz")
		if err := sshtransport.UploadBytes(client, bundle.Archive, archivePath); err != nil {
			client.Close()
			return nil, types.NewHostError(types.KindTransportLost, host.Name, "cannot stage bundle", err)
		}
		extractCmd := fmt.Sprintf("tar -xzf %q -C %q", archivePath, remoteDir)
		if err := runOnce(client, extractCmd); err != nil {
			client.Close()
			return nil, types.NewHostError(types.KindBundleBuildFailed, host.Name, "cannot extract bundle on target", err)
		}
	}

	session, stdin, stdout, _, err := sshtransport.StartProcess(client, fmt.Sprintf("chmod +x %q; %q --rpc", stubPath, stubPath))
	if err != nil {
		client.Close()
		return nil, types.NewHostError(types.KindTransportLost, host.Name, "cannot launch gate process", err)
	}

	g := &Gate{
		host:        host,
		fingerprint: bundle.Fingerprint,
		client:      client,
		session:     session,
		stdin:       stdin,
		doneCh:      make(chan struct{}),
	}
	readyCh := g.armReadySignal()
	go g.readLoop(stdout)

	select {
	case <-readyCh:
	case <-time.After(readyTimeout):
		g.Close()
		return nil, types.NewHostError(types.KindTimeout, host.Name, "gate did not signal ready in time", nil)
	case <-ctx.Done():
		g.Close()
		return nil, types.NewHostError(types.KindCancelled, host.Name, "gate open cancelled", ctx.Err())
	case <-g.doneCh:
		return nil, g.lostError(host)
	}
	return g, nil
}

func runOnce(client *ssh.Client, command string) error {
	session, err := client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run(command)
}

// armReadySignal registers the ready-sentinel pending entry and returns a
// channel closed once readLoop observes the ready frame. It must be called
// before the read loop starts so the frame cannot arrive and be discarded
// before anyone is listening for it.
func (g *Gate) armReadySignal() <-chan struct{} {
	pc := &pendingCall{result: make(chan Frame, 1)}
	g.pending.Store(readySentinel, pc)
	ch := make(chan struct{})
	go func() {
		<-pc.result
		close(ch)
	}()
	return ch
}

const readySentinel int64 = -1

// readLoop demultiplexes frames: events for the correlated call's sink,
// result frames to the waiting caller, and the initial ready frame to the
// pending entry armReadySignal registered. On read error every call currently pending on this gate
// is failed with TransportLost.
func (g *Gate) readLoop(stdout io.Reader) {
	defer close(g.doneCh)
	for {
		frame, err := ReadFrame(stdout)
		if err != nil {
			slog.Warn("gate connection lost", "host", g.host.Name, "kind", types.KindTransportLost, "error", err)
			g.fail(types.NewHostError(types.KindTransportLost, g.host.Name, "gate connection lost", err))
			return
		}
		switch frame.Type {
		case string(FrameReady):
			if v, ok := g.pending.LoadAndDelete(readySentinel); ok {
				v.(*pendingCall).result <- frame
			}
		case string(FrameEvent):
			if v, ok := g.pending.Load(frame.ID); ok {
				pc := v.(*pendingCall)
				if pc.sink != nil {
					pc.sink(types.Event{Kind: types.EventKind(frame.Kind), Payload: frame.Payload})
				}
			}
		case string(FrameResult), string(FrameError), string(FrameInfoResult), string(FrameModulesReply):
			if v, ok := g.pending.LoadAndDelete(frame.ID); ok {
				v.(*pendingCall).result <- frame
			}
			// An id with no pending entry means the call was already
			// abandoned (blacklisted on cancellation); the late result is
			// discarded.
		}
	}
}

func (g *Gate) fail(err error) {
	g.lostErr.Store(err)
	g.pending.Range(func(key, value any) bool {
		pc := value.(*pendingCall)
		select {
		case pc.result <- Frame{Type: string(FrameError), Error: err.Error()}:
		default:
		}
		g.pending.Delete(key)
		return true
	})
}

func (g *Gate) lostError(host types.Host) error {
	if v := g.lostErr.Load(); v != nil {
		return v.(error)
	}
	return types.NewHostError(types.KindTransportLost, host.Name, "gate connection lost", nil)
}

// write serializes one frame onto the stream; writes are serialized per
// gate under writeMu.
func (g *Gate) write(f Frame) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return WriteFrame(g.stdin, f)
}

// Execute sends one execute frame and waits for its correlated result,
// forwarding interleaved events to sink. Context cancellation blacklists
// the request id: any result that arrives afterward is discarded rather
// than delivered to a caller who has stopped listening.
func (g *Gate) Execute(ctx context.Context, module string, params map[string]any, checkMode bool, sink events.Sink) (types.ModuleOutput, error) {
	if g.closed.Load() {
		return types.ModuleOutput{}, g.lostError(g.host)
	}

	id := g.nextID.Add(1)
	pc := &pendingCall{sink: sink, result: make(chan Frame, 1)}
	g.pending.Store(id, pc)

	if err := g.write(Frame{Type: string(FrameExecute), ID: id, Module: module, Params: params, CheckMode: checkMode}); err != nil {
		g.pending.Delete(id)
		return types.ModuleOutput{}, types.NewHostError(types.KindTransportLost, g.host.Name, "cannot write execute frame", err)
	}

	select {
	case frame := <-pc.result:
		if frame.Type == string(FrameError) {
			if lost := g.lostErr.Load(); lost != nil {
				return types.ModuleOutput{}, lost.(error)
			}
			return types.ModuleOutput{}, types.NewHostError(types.KindModuleFailed, g.host.Name, frame.Message, fmt.Errorf("%s", frame.Error))
		}
		return types.ModuleOutput{Success: frame.Success, Changed: frame.Changed, Output: frame.Output, Error: frame.Error}, nil
	case <-ctx.Done():
		g.pending.Delete(id) // blacklist: a late result is dropped by readLoop's LoadAndDelete miss
		return types.ModuleOutput{}, types.NewHostError(types.KindCancelled, g.host.Name, "execute cancelled", ctx.Err())
	case <-g.doneCh:
		return types.ModuleOutput{}, g.lostError(g.host)
	}
}

// Info requests the remote interpreter's identifying facts.
func (g *Gate) Info(ctx context.Context) (map[string]any, error) {
	id := g.nextID.Add(1)
	pc := &pendingCall{result: make(chan Frame, 1)}
	g.pending.Store(id, pc)
	if err := g.write(Frame{Type: string(FrameInfo), ID: id}); err != nil {
		g.pending.Delete(id)
		return nil, types.NewHostError(types.KindTransportLost, g.host.Name, "cannot write info frame", err)
	}
	select {
	case frame := <-pc.result:
		return frame.Payload, nil
	case <-ctx.Done():
		g.pending.Delete(id)
		return nil, types.NewHostError(types.KindCancelled, g.host.Name, "info cancelled", ctx.Err())
	case <-g.doneCh:
		return nil, g.lostError(g.host)
	}
}

// ListModules requests the remote process's bundled module inventory, the
// client side of `cmd/ftl2gate/main.go`'s list_modules handler.
func (g *Gate) ListModules(ctx context.Context) ([]string, error) {
	id := g.nextID.Add(1)
	pc := &pendingCall{result: make(chan Frame, 1)}
	g.pending.Store(id, pc)
	if err := g.write(Frame{Type: string(FrameListModules), ID: id}); err != nil {
		g.pending.Delete(id)
		return nil, types.NewHostError(types.KindTransportLost, g.host.Name, "cannot write list_modules frame", err)
	}
	select {
	case frame := <-pc.result:
		return frame.Modules, nil
	case <-ctx.Done():
		g.pending.Delete(id)
		return nil, types.NewHostError(types.KindCancelled, g.host.Name, "list_modules cancelled", ctx.Err())
	case <-g.doneCh:
		return nil, g.lostError(g.host)
	}
}

// Shutdown asks the remote process to exit cleanly, waiting up to
// shutdownGrace before forcing the SSH session closed.
func (g *Gate) Shutdown() {
	if g.closed.CompareAndSwap(false, true) {
		_ = g.write(Frame{Type: string(FrameShutdown)})
	}
	select {
	case <-g.doneCh:
	case <-time.After(shutdownGrace):
		slog.Warn("gate did not exit within shutdown grace, forcing close", "host", g.host.Name)
	}
	g.Close()
}

// Close tears down the SSH session and connection without waiting for a
// graceful shutdown handshake; used on transport-loss cleanup paths.
func (g *Gate) Close() {
	g.closed.Store(true)
	if g.session != nil {
		g.session.Close()
	}
	if g.client != nil {
		g.client.Close()
	}
}

// Fingerprint reports the bundle fingerprint this gate was opened with,
// so callers can detect a mismatch and trigger a rebuild-and-reopen
// cycle.
func (g *Gate) Fingerprint() string { return g.fingerprint }
