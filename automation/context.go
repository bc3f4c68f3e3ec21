// Package automation is FTL2's controller API surface: a Context
// that wires together inventory, policy, secrets, audit, the module
// registry, the bundle builder, and the fan-out driver into the single
// entry point a script or CLI front-end uses.
package automation

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eniac111/ftl2/internal/audit"
	"github.com/eniac111/ftl2/internal/bundle"
	"github.com/eniac111/ftl2/internal/events"
	"github.com/eniac111/ftl2/internal/executor"
	"github.com/eniac111/ftl2/internal/fanout"
	"github.com/eniac111/ftl2/internal/inventory"
	"github.com/eniac111/ftl2/internal/policy"
	"github.com/eniac111/ftl2/internal/registry"
	"github.com/eniac111/ftl2/internal/secrets"
	"github.com/eniac111/ftl2/internal/state"
	"github.com/eniac111/ftl2/internal/types"
)

// Config assembles everything Open needs to build a Context: inventory,
// policy, audit and state file paths, the target environment, and the
// secret bindings a script declares up front.
type Config struct {
	InventoryPath string // empty: start with an empty, programmatically-built inventory
	PolicyPath    string // empty: policy.Empty() (always allow)
	StatePath     string // empty: state is not persisted across runs
	AuditPath     string // empty: audit is not persisted across runs
	ReplayPath    string // non-empty: LoadPrior for positional replay

	Environment string // matched against policy rules' "environment" clause

	SecretEnvNames []string          // must all be set in the process environment
	SecretKVRefs   map[string]string // secret name -> "path#field"
	SecretBindings secrets.Bindings  // module FQCN -> {param: secret name}
	KVBackend      secrets.KVBackend // nil if no KV secrets are referenced

	ModuleSearchPaths []string // checked before the native table and builtin root
	BuiltinModuleRoot string
	BundleCacheDir    string // empty uses bundle.DefaultCacheDir()

	Events events.Sink // nil discards events (still counted in metrics)
}

// Context is the scoped session a script acquires once and calls
// repeatedly. Open it with Open, and always defer Close so gates shut
// down and state/audit flush on every exit path.
type Context struct {
	cfg       Config
	inventory *inventory.Inventory
	state     *state.Store
	secrets   *secrets.Resolver
	audit     *audit.Log
	registry  *registry.Registry
	bundle    *bundle.Builder
	bus       *events.Bus
	executor  *executor.Executor

	mu     sync.Mutex
	errors []error
	failed bool
}

// Open resolves every collaborator from cfg. Inventory and secret errors
// are fatal at context entry, fail-closed.
func Open(cfg Config) (*Context, error) {
	stateStore, err := openState(cfg.StatePath)
	if err != nil {
		return nil, err
	}

	inv, err := openInventory(cfg.InventoryPath, stateStore)
	if err != nil {
		return nil, err
	}
	inv.LoadDynamicHosts()

	pol, err := openPolicy(cfg.PolicyPath)
	if err != nil {
		return nil, err
	}

	sec, err := secrets.New(cfg.SecretEnvNames, cfg.SecretKVRefs, cfg.KVBackend, cfg.SecretBindings)
	if err != nil {
		return nil, err
	}

	auditLog := audit.New(cfg.AuditPath)
	if cfg.ReplayPath != "" {
		if err := auditLog.LoadPrior(cfg.ReplayPath); err != nil {
			return nil, err
		}
	}

	reg := registry.New(cfg.ModuleSearchPaths, cfg.BuiltinModuleRoot)
	builder := bundle.New(reg, cfg.BundleCacheDir)
	bus := events.New(cfg.Events)
	ex := executor.New(reg, builder, pol, sec, auditLog, bus, cfg.Environment)

	return &Context{
		cfg: cfg, inventory: inv, state: stateStore, secrets: sec,
		audit: auditLog, registry: reg, bundle: builder, bus: bus, executor: ex,
	}, nil
}

func openState(path string) (*state.Store, error) {
	if path == "" {
		return state.Load("")
	}
	return state.Load(path)
}

func openInventory(path string, store *state.Store) (*inventory.Inventory, error) {
	if path == "" {
		return inventory.New(store), nil
	}
	return inventory.Load(path, store)
}

func openPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Empty(), nil
	}
	return policy.Load(path)
}

// CallOptions configures one Call beyond its selector/module/params: the
// fan-out concurrency and cancellation knobs.
type CallOptions struct {
	FailFast         bool
	MaxParallelHosts int
	CancelGrace      time.Duration
	RequestID        string
}

// Call runs module against every host resolved from selector, fanning out
// with bounded concurrency.
// Per-host outcomes are always returned; failures are also folded into
// Failed()/Errors() for a script that prefers to check status once at the
// end rather than after every call.
func (c *Context) Call(ctx context.Context, selector string, module string, params map[string]any, opts CallOptions) ([]types.HostResult, error) {
	results, err := fanout.Run(ctx, c.executor, c.audit, c.inventory, selector, types.Call{Module: module, Params: params}, fanout.Options{
		FailFast:         opts.FailFast,
		MaxParallelHosts: opts.MaxParallelHosts,
		CancelGrace:      opts.CancelGrace,
		RequestID:        opts.RequestID,
	})
	c.recordOutcome(results, err)
	return results, err
}

func (c *Context) recordOutcome(results []types.HostResult, callErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if callErr != nil {
		c.failed = true
		c.errors = append(c.errors, callErr)
	}
	for _, r := range results {
		if r.Err != nil {
			c.failed = true
			c.errors = append(c.errors, r.Err)
		}
	}
}

// Hosts returns every host known to the inventory, in declaration order.
func (c *Context) Hosts() []types.Host {
	hosts, _ := c.inventory.Hosts("all")
	return hosts
}

// Groups returns the known inventory group names.
func (c *Context) Groups() []string { return c.inventory.Groups() }

// AddHost provisions a host dynamically,
// persisted through the state store so it survives context exit.
func (c *Context) AddHost(name string, attrs map[string]string) error {
	return c.inventory.AddHost(name, attrs)
}

// StateGet/StateSet expose the state store's KV surface (`state`
// read/write property).
func (c *Context) StateGet(key string) (string, bool) { return c.state.GetVar(key) }
func (c *Context) StateSet(key, value string)         { c.state.PutVar(key, value) }

// Secret exposes a resolved secret by name.
func (c *Context) Secret(name string) (string, bool) { return c.secrets.Get(name) }

// Results returns every execution record recorded so far, in emission
// order.
func (c *Context) Results() []types.ExecutionRecord { return c.audit.Records() }

// Failed reports whether any call so far produced a per-host error or a
// context-level fan-out error.
func (c *Context) Failed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

// Errors returns every error accumulated across calls so far.
func (c *Context) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]error, len(c.errors))
	copy(out, c.errors)
	return out
}

// Group returns a namespacing handle bound to selector: a thin wrapper
// over the explicit call primitive.
func (c *Context) Group(selector string) GroupHandle {
	return GroupHandle{ctx: c, selector: selector}
}

// Close shuts down every open gate and flushes state and audit to disk,
// guaranteeing gate shutdown and a state/audit flush on every exit path.
// Errors during shutdown are collected but never mask a caller's own
// reason for closing; call this via defer immediately after Open succeeds.
func (c *Context) Close() error {
	c.executor.Close()

	var first error
	if err := c.state.Flush(); err != nil {
		kind, _ := types.KindOf(err)
		slog.Error("state flush failed during context close", "kind", kind, "error", err)
		if first == nil {
			first = err
		}
	}
	if err := c.audit.Flush(); err != nil {
		kind, _ := types.KindOf(err)
		slog.Error("audit flush failed during context close", "kind", kind, "error", err)
		if first == nil {
			first = err
		}
	}
	return first
}
