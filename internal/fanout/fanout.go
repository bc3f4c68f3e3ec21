// Package fanout implements the concurrent per-host driver:
// bounded parallelism across a selector's hosts, emission-order-preserving
// audit recording, and cooperative fail-fast cancellation with a drain
// grace window.
package fanout

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/eniac111/ftl2/internal/audit"
	"github.com/eniac111/ftl2/internal/executor"
	"github.com/eniac111/ftl2/internal/inventory"
	"github.com/eniac111/ftl2/internal/metrics"
	"github.com/eniac111/ftl2/internal/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultMaxParallelHosts = 50
	defaultCancelGrace      = 5 * time.Second
)

// Options configures one fan-out call.
type Options struct {
	FailFast         bool
	MaxParallelHosts int           // 0 uses the default/env-configured value
	CancelGrace      time.Duration // 0 uses defaultCancelGrace
	RequestID        string
}

func maxParallelHosts(opt int) int64 {
	if opt > 0 {
		return int64(opt)
	}
	if v := os.Getenv("FTL2_MAX_PARALLEL_HOSTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return int64(n)
		}
	}
	return defaultMaxParallelHosts
}

// Run dispatches call against every host resolved from selector via inv,
// in inventory order, returning per-host results in that same order.
// Each host's audit slot is reserved synchronously in inventory order,
// just before that host's dispatch is started, which is what guarantees
// "emission order equals fan-out start order" independent of completion
// order.
func Run(ctx context.Context, ex *executor.Executor, auditLog *audit.Log, inv *inventory.Inventory, selector string, call types.Call, opts Options) ([]types.HostResult, error) {
	start := time.Now()
	defer func() {
		metrics.FanoutDuration.WithLabelValues(call.Module).Observe(time.Since(start).Seconds())
	}()

	hosts, err := inv.Hosts(selector)
	if err != nil {
		return nil, err
	}
	if len(hosts) == 0 {
		return nil, nil
	}

	if opts.CancelGrace == 0 {
		opts.CancelGrace = defaultCancelGrace
	}
	if opts.RequestID == "" {
		opts.RequestID = uuid.NewString()
	}

	results := make([]types.HostResult, len(hosts))
	sem := semaphore.NewWeighted(maxParallelHosts(opts.MaxParallelHosts))

	// errgroup.WithContext cancels gCtx the instant any g.Go func returns a
	// non-nil error; Dispatch's wrapper below only returns non-nil when
	// FailFast is set, so this is exactly "first failure
	// cancels pending per-host calls" and requires no extra plumbing.
	g, gCtx := errgroup.WithContext(ctx)

	for i, host := range hosts {
		i, host := i, host

		replayed, merged, prepErr := ex.Prepare(host, call)
		if prepErr != nil {
			results[i] = types.HostResult{Host: host.Name, Err: prepErr}
			continue
		}
		if replayed != nil {
			idx := auditLog.Reserve()
			auditLog.Finalize(idx, *replayed)
			sink := ex.Bus.ForCall(opts.RequestID, host.Name)
			sink(types.Event{Kind: types.EventModuleComplete, Payload: map[string]any{
				types.PayloadChanged: replayed.Changed,
				types.PayloadReplay:  true,
			}})
			results[i] = types.HostResult{Host: host.Name, Output: replayed.Output}
			continue
		}

		if err := sem.Acquire(gCtx, 1); err != nil {
			// gCtx is already done (fail-fast tripped by an earlier host,
			// or the caller's own context expired): this host never runs.
			// No audit slot was reserved for it, so the log contains no
			// blank record to confuse a later positional replay.
			results[i] = types.HostResult{Host: host.Name, Skipped: true, Err: gCtx.Err()}
			continue
		}

		// Reserved only once this host is actually going to dispatch, still
		// synchronously in inventory order (this loop never parallelizes
		// itself), so emission order still equals fan-out start order.
		idx := auditLog.Reserve()

		originalParams := call.Params
		g.Go(func() error {
			defer sem.Release(1)
			callCtx, cancel := context.WithTimeout(gCtx, executor.PerCallTimeout)
			defer cancel()
			out, dispatchErr := ex.Dispatch(callCtx, idx, opts.RequestID, host, call, originalParams, merged)
			if dispatchErr != nil && callCtx.Err() == context.DeadlineExceeded {
				dispatchErr = types.NewHostError(types.KindTimeout, host.Name,
					fmt.Sprintf("per-call timeout of %s exceeded", executor.PerCallTimeout), dispatchErr)
			}
			results[i] = types.HostResult{Host: host.Name, Output: out.Output, Err: dispatchErr}
			if opts.FailFast && dispatchErr != nil {
				return dispatchErr
			}
			return nil
		})
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- g.Wait() }()

	if !opts.FailFast {
		<-waitDone
		return results, nil
	}

	select {
	case <-waitDone:
		return results, nil
	case <-gCtx.Done():
		select {
		case <-waitDone:
			return results, nil
		case <-time.After(opts.CancelGrace):
			// cancel_grace elapsed with calls still in flight: abandon them
			// and return a snapshot rather than block the
			// caller further. Straggling goroutines still finish and record
			// to the audit log in the background; they no longer affect
			// what the caller sees for this call.
			snapshot := make([]types.HostResult, len(results))
			copy(snapshot, results)
			for i := range snapshot {
				if snapshot[i].Host == "" && snapshot[i].Err == nil && snapshot[i].Output == nil && !snapshot[i].Skipped {
					snapshot[i].Host = hosts[i].Name
					snapshot[i].Skipped = true
				}
			}
			return snapshot, nil
		}
	}
}
