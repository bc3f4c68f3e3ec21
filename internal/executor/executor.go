// Package executor implements the per-call pipeline: replay
// check, policy evaluation, secret injection, dispatch to a native module
// or a remote gate, and audit recording with redaction.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eniac111/ftl2/internal/audit"
	"github.com/eniac111/ftl2/internal/bundle"
	"github.com/eniac111/ftl2/internal/events"
	"github.com/eniac111/ftl2/internal/metrics"
	"github.com/eniac111/ftl2/internal/policy"
	"github.com/eniac111/ftl2/internal/registry"
	"github.com/eniac111/ftl2/internal/secrets"
	"github.com/eniac111/ftl2/internal/types"
)

// PerCallTimeout is the default per-host-call deadline, applied
// by the fan-out driver around Dispatch when the caller supplies no
// shorter context deadline of its own.
const PerCallTimeout = 300 * time.Second

// Executor runs FTL2's per-call pipeline against one context's collaborators.
type Executor struct {
	Registry    *registry.Registry
	Builder     *bundle.Builder
	Policy      *policy.Policy
	Secrets     *secrets.Resolver
	Audit       *audit.Log
	Bus         *events.Bus
	Environment string

	pool *gatePool
}

// New wires an Executor from its collaborators. A nil Policy is treated as
// policy.Empty (always allow); a nil Secrets resolver means no bindings are
// injected and redaction only strips well-known credential parameter names.
func New(reg *registry.Registry, builder *bundle.Builder, pol *policy.Policy, sec *secrets.Resolver, auditLog *audit.Log, bus *events.Bus, environment string) *Executor {
	if pol == nil {
		pol = policy.Empty()
	}
	return &Executor{
		Registry: reg, Builder: builder, Policy: pol, Secrets: sec,
		Audit: auditLog, Bus: bus, Environment: environment,
		pool: newGatePool(),
	}
}

// Prepare runs the pipeline's fast, synchronous steps: replay check,
// policy evaluation, and secret-binding merge. It does no network I/O and
// must be called sequentially in fan-out start order so that the fan-out
// driver's Reserve/Finalize calls land at the right index.
//
// Three outcomes:
//   - replayed != nil: the call was satisfied from the prior audit log;
//     the caller should record replayed as-is and skip dispatch.
//   - err != nil: policy denied the call; the caller must NOT create an
//     audit record for it.
//   - otherwise mergedParams is ready to hand to Dispatch.
func (e *Executor) Prepare(host types.Host, call types.Call) (replayed *types.ExecutionRecord, mergedParams map[string]any, err error) {
	if rec, hit := e.Audit.TryReplay(call.Module, host.Name); hit {
		rec.Replayed = true
		rec.DurationS = 0
		return &rec, nil, nil
	}

	if err := e.Policy.Evaluate(call.Module, host.Name, e.Environment, call.Params); err != nil {
		return nil, nil, err
	}

	merged := make(map[string]any, len(call.Params))
	for k, v := range call.Params {
		merged[k] = v
	}
	if e.Secrets != nil {
		for param, value := range e.Secrets.BindingsFor(call.Module) {
			if _, explicit := merged[param]; !explicit {
				merged[param] = value
			}
		}
	}
	return nil, merged, nil
}

// Dispatch runs the actual native or remote execution and then records the
// outcome to the audit log with secret redaction, finalizing the audit
// slot at reserveIndex. It is safe to call concurrently for different
// hosts; the audit log and gate pool serialize their own internal state.
func (e *Executor) Dispatch(ctx context.Context, reserveIndex int, requestID string, host types.Host, call types.Call, originalParams, mergedParams map[string]any) (types.ModuleOutput, error) {
	start := time.Now()
	sink := e.Bus.ForCall(requestID, host.Name)
	sink(types.Event{Kind: types.EventModuleStart, Payload: map[string]any{"module": call.Module}})

	out, dispatchErr := e.dispatchOne(ctx, host, call.Module, mergedParams, call.CheckMode, sink)

	duration := time.Since(start).Seconds()
	metrics.ModuleCalls.WithLabelValues(call.Module, outcomeLabel(dispatchErr)).Inc()

	redactor := e.Secrets
	if redactor == nil {
		redactor = &secrets.Resolver{} // no bindings: strips only well-known credential names
	}
	redacted := redactor.Redact(originalParams, call.Module)

	rec := types.ExecutionRecord{
		RequestID: requestID,
		Timestamp: start,
		Host:      host.Name,
		Module:    call.Module,
		Params:    redacted,
		Success:   out.Success,
		Changed:   out.Changed,
		Output:    out.Output,
		Error:     out.Error,
		DurationS: duration,
		Replayed:  false,
	}
	e.Audit.Finalize(reserveIndex, rec)

	sink(types.Event{Kind: types.EventModuleComplete, Payload: map[string]any{
		types.PayloadChanged: out.Changed,
		types.PayloadReplay:  false,
	}})

	return out, dispatchErr
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if kind, ok := types.KindOf(err); ok {
		return string(kind)
	}
	return "error"
}

// dispatchOne branches between the local native fast path and the remote
// gate path.
func (e *Executor) dispatchOne(ctx context.Context, host types.Host, module string, params map[string]any, checkMode bool, sink events.Sink) (types.ModuleOutput, error) {
	desc, err := e.Registry.Resolve(module)
	if err != nil {
		return types.ModuleOutput{}, err
	}

	if desc.Native {
		impl, ok := e.Registry.NativeImpl(module)
		if !ok {
			return types.ModuleOutput{}, types.NewHostError(types.KindModuleFailed, host.Name, "native module lookup failed after resolve", nil)
		}
		if checkMode {
			nativeParams := make(map[string]any, len(params)+1)
			for k, v := range params {
				nativeParams[k] = v
			}
			nativeParams["_ftl2_check_mode"] = true
			params = nativeParams
		}
		out := runNativeSupervised(impl, params)
		if !out.Success {
			return out, types.NewHostError(types.KindModuleFailed, host.Name, out.Error, nil)
		}
		return out, nil
	}

	bundleOut, err := e.Builder.Build([]string{module}, targetProfile(host))
	if err != nil {
		return types.ModuleOutput{}, err
	}

	g, err := e.pool.acquire(ctx, host, bundleOut)
	if err != nil {
		return types.ModuleOutput{}, err
	}

	out, err := g.Execute(ctx, module, params, checkMode, sink)
	if err != nil {
		if kind, ok := types.KindOf(err); ok && kind == types.KindTransportLost {
			slog.Warn("gate call failed, reopening and retrying once", "host", host.Name, "module", module, "kind", kind, "error", err)
			e.pool.evict(host, bundleOut.Fingerprint)
			g, reopenErr := e.pool.acquire(ctx, host, bundleOut)
			if reopenErr != nil {
				return types.ModuleOutput{}, reopenErr
			}
			out, err = g.Execute(ctx, module, params, checkMode, sink)
		}
	}
	if err != nil {
		return types.ModuleOutput{}, err
	}
	if !out.Success {
		return out, types.NewHostError(types.KindModuleFailed, host.Name, out.Error, nil)
	}
	return out, nil
}

// targetProfile carries a host's declared platform into the bundle
// builder, so hosts with different platforms fingerprint (and cache)
// separately instead of colliding on the controller's own GOOS/GOARCH.
// A host with no platform declared falls back to that controller default
// inside Builder.Build.
func targetProfile(host types.Host) types.TargetProfile {
	return types.TargetProfile{OS: host.OS, Arch: host.Arch, InterpreterVer: host.InterpreterVer}
}

// Close shuts down every gate this executor opened, part of the
// context-exit lifecycle used by automation.Context.Close.
func (e *Executor) Close() {
	e.pool.closeAll()
}

// runNativeSupervised guards the in-process module boundary against a
// panicking module implementation, converting it into a normal failed
// output instead of taking down the controller.
func runNativeSupervised(impl interface{ Run(map[string]any) types.ModuleOutput }, params map[string]any) (out types.ModuleOutput) {
	defer func() {
		if r := recover(); r != nil {
			out = types.ModuleOutput{Success: false, Output: map[string]any{}, Error: fmt.Sprintf("module panic: %v", r)}
		}
	}()
	return impl.Run(params)
}
