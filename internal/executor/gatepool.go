package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/eniac111/ftl2/internal/gate"
	"github.com/eniac111/ftl2/internal/metrics"
	"github.com/eniac111/ftl2/internal/types"
)

// gatePool keeps at most one warm gate per (host, bundle fingerprint) for
// the lifetime of the context.
type gatePool struct {
	mu    sync.Mutex
	gates map[string]*gate.Gate
}

func newGatePool() *gatePool {
	return &gatePool{gates: map[string]*gate.Gate{}}
}

func key(host types.Host, fingerprint string) string {
	return host.Name + "|" + fingerprint
}

// acquire returns the warm gate for (host, bundle.Fingerprint), opening one
// if none exists yet.
func (p *gatePool) acquire(ctx context.Context, host types.Host, b types.Bundle) (*gate.Gate, error) {
	k := key(host, b.Fingerprint)

	p.mu.Lock()
	if g, ok := p.gates[k]; ok {
		p.mu.Unlock()
		return g, nil
	}
	p.mu.Unlock()

	g, err := gate.Open(ctx, host, b)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.gates[k]; ok {
		p.mu.Unlock()
		g.Close()
		return existing, nil
	}
	p.gates[k] = g
	p.mu.Unlock()
	return g, nil
}

// evict closes and forgets the gate for (host, fingerprint), used after a
// TransportLost failure so the next acquire restarts it lazily.
func (p *gatePool) evict(host types.Host, fingerprint string) {
	k := key(host, fingerprint)
	p.mu.Lock()
	g, ok := p.gates[k]
	delete(p.gates, k)
	p.mu.Unlock()
	if ok {
		slog.Warn("restarting gate after transport loss", "host", host.Name, "fingerprint", fingerprint)
		metrics.GateRestarts.WithLabelValues(host.Name).Inc()
		g.Close()
	}
}

// closeAll shuts down every warm gate on context exit: send shutdown,
// await graceful exit, then close the session.
func (p *gatePool) closeAll() {
	p.mu.Lock()
	gates := make([]*gate.Gate, 0, len(p.gates))
	for _, g := range p.gates {
		gates = append(gates, g)
	}
	p.gates = map[string]*gate.Gate{}
	p.mu.Unlock()

	var wg sync.WaitGroup
	for _, g := range gates {
		wg.Add(1)
		go func(g *gate.Gate) {
			defer wg.Done()
			g.Shutdown()
		}(g)
	}
	wg.Wait()
}
