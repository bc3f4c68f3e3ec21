package automation

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenWithEmptyInventoryAndAddHost(t *testing.T) {
	dir := t.TempDir()
	ctx, err := Open(Config{
		StatePath: filepath.Join(dir, "state.json"),
		AuditPath: filepath.Join(dir, "audit.json"),
	})
	require.NoError(t, err)
	defer ctx.Close()

	require.NoError(t, ctx.AddHost("web01", map[string]string{"ansible_host": "10.0.0.1"}))
	hosts := ctx.Hosts()
	require.Len(t, hosts, 1)
	require.Equal(t, "web01", hosts[0].Name)
	require.Equal(t, "10.0.0.1", hosts[0].Address)
}

func TestCallRecordsResultsAndFailedFlag(t *testing.T) {
	dir := t.TempDir()
	ctx, err := Open(Config{
		StatePath: filepath.Join(dir, "state.json"),
		AuditPath: filepath.Join(dir, "audit.json"),
	})
	require.NoError(t, err)
	defer ctx.Close()

	require.NoError(t, ctx.AddHost("web01", map[string]string{}))

	results, err := ctx.Call(context.Background(), "all", "ping", map[string]any{"data": "hi"}, CallOptions{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.False(t, ctx.Failed())
	require.Len(t, ctx.Results(), 1)

	_, err = ctx.Call(context.Background(), "all", "shell", map[string]any{}, CallOptions{})
	require.NoError(t, err)
	require.True(t, ctx.Failed())
	require.NotEmpty(t, ctx.Errors())
}

func TestGroupHandleModuleSugar(t *testing.T) {
	dir := t.TempDir()
	ctx, err := Open(Config{
		StatePath: filepath.Join(dir, "state.json"),
	})
	require.NoError(t, err)
	defer ctx.Close()

	require.NoError(t, ctx.AddHost("web01", map[string]string{}))
	web := ctx.Group("web01")
	results, err := web.Module("ping", map[string]any{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "web01", results[0].Host)
}

func TestStateGetSetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	ctx, err := Open(Config{StatePath: statePath})
	require.NoError(t, err)

	ctx.StateSet("greeting", "hello")
	v, ok := ctx.StateGet("greeting")
	require.True(t, ok)
	require.Equal(t, "hello", v)
	require.NoError(t, ctx.Close())

	reopened, err := Open(Config{StatePath: statePath})
	require.NoError(t, err)
	defer reopened.Close()
	v, ok = reopened.StateGet("greeting")
	require.True(t, ok)
	require.Equal(t, "hello", v)
}
