package fanout

import (
	"context"
	"testing"

	"github.com/eniac111/ftl2/internal/audit"
	"github.com/eniac111/ftl2/internal/bundle"
	"github.com/eniac111/ftl2/internal/events"
	"github.com/eniac111/ftl2/internal/executor"
	"github.com/eniac111/ftl2/internal/inventory"
	"github.com/eniac111/ftl2/internal/policy"
	"github.com/eniac111/ftl2/internal/registry"
	"github.com/eniac111/ftl2/internal/types"
	"github.com/stretchr/testify/require"
)

func testInventory(t *testing.T, names ...string) *inventory.Inventory {
	t.Helper()
	inv := inventory.New(nil)
	for _, n := range names {
		require.NoError(t, inv.AddHost(n, map[string]string{}))
	}
	return inv
}

func testExecutor(t *testing.T, auditLog *audit.Log) *executor.Executor {
	t.Helper()
	reg := registry.New(nil, "")
	b := bundle.New(reg, t.TempDir())
	bus := events.New(nil)
	return executor.New(reg, b, policy.Empty(), nil, auditLog, bus, "test")
}

func TestRunPreservesInventoryOrderRegardlessOfCompletionOrder(t *testing.T) {
	auditLog := audit.New("")
	ex := testExecutor(t, auditLog)
	inv := testInventory(t, "web01", "web02", "web03")

	call := types.Call{Module: "ping", Params: map[string]any{}}
	results, err := fanoutRun(t, ex, auditLog, inv, "all", call, Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "web01", results[0].Host)
	require.Equal(t, "web02", results[1].Host)
	require.Equal(t, "web03", results[2].Host)

	records := auditLog.Records()
	require.Len(t, records, 3)
	require.Equal(t, "web01", records[0].Host)
	require.Equal(t, "web02", records[1].Host)
	require.Equal(t, "web03", records[2].Host)
}

func TestRunAllHostsAttemptedWithoutFailFast(t *testing.T) {
	auditLog := audit.New("")
	ex := testExecutor(t, auditLog)
	inv := testInventory(t, "web01", "web02")

	// "shell" with an empty cmd fails validation inside the native module,
	// exercising the non-fail-fast "every host attempted" path.
	call := types.Call{Module: "shell", Params: map[string]any{}}
	results, err := fanoutRun(t, ex, auditLog, inv, "all", call, Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.Error(t, r.Err)
	}
}

func TestRunSkipsHostsWhenContextAlreadyCancelled(t *testing.T) {
	auditLog := audit.New("")
	ex := testExecutor(t, auditLog)
	inv := testInventory(t, "web01", "web02")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	call := types.Call{Module: "ping", Params: map[string]any{}}
	results, err := Run(ctx, ex, auditLog, inv, "all", call, Options{FailFast: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		require.True(t, r.Skipped)
		require.Error(t, r.Err)
	}

	// A skipped host never dispatches, so it must never hold an audit slot
	// either: a blank record here would desync positional replay on a
	// later run.
	require.Empty(t, auditLog.Records())
}

func TestRunFailFastReturnsWithoutHangingOnFailure(t *testing.T) {
	auditLog := audit.New("")
	ex := testExecutor(t, auditLog)
	inv := testInventory(t, "web01", "web02", "web03")

	// Serialized (MaxParallelHosts: 1) so the failure on web01 has every
	// chance to trip fail-fast before later hosts are dispatched; Run
	// must still return every host's result rather than hang waiting on
	// cancel_grace.
	call := types.Call{Module: "shell", Params: map[string]any{}}
	results, err := fanoutRun(t, ex, auditLog, inv, "all", call, Options{FailFast: true, MaxParallelHosts: 1})
	require.NoError(t, err)
	require.Len(t, results, 3)

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	require.GreaterOrEqual(t, failed, 1)
}

func TestRunUnknownSelectorErrors(t *testing.T) {
	auditLog := audit.New("")
	ex := testExecutor(t, auditLog)
	inv := testInventory(t, "web01")

	_, err := fanoutRun(t, ex, auditLog, inv, "does-not-exist", types.Call{Module: "ping"}, Options{})
	require.Error(t, err)
}

func fanoutRun(t *testing.T, ex *executor.Executor, auditLog *audit.Log, inv *inventory.Inventory, selector string, call types.Call, opts Options) ([]types.HostResult, error) {
	t.Helper()
	return Run(context.Background(), ex, auditLog, inv, selector, call, opts)
}
