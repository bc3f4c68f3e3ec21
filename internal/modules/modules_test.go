package modules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileModuleTouchCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t")
	out := FileModule{}.Run(map[string]any{"path": path, "state": "touch"})
	require.True(t, out.Success)
	require.True(t, out.Changed)

	out2 := FileModule{}.Run(map[string]any{"path": path, "state": "touch"})
	require.True(t, out2.Success)
}

func TestFileModuleMissingPath(t *testing.T) {
	out := FileModule{}.Run(map[string]any{"state": "file"})
	require.False(t, out.Success)
}

func TestShellModuleRunsCommand(t *testing.T) {
	out := ShellModule{}.Run(map[string]any{"cmd": "echo hello"})
	require.True(t, out.Success)
	require.Contains(t, out.Output["stdout"], "hello")
}

func TestShellModuleCheckMode(t *testing.T) {
	out := ShellModule{}.Run(map[string]any{"cmd": "echo hello", "_ftl2_check_mode": true})
	require.True(t, out.Success)
	require.False(t, out.Changed)
}

func TestCopyModuleCopiesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	dest := filepath.Join(dir, "dest")

	out := CopyModule{}.Run(map[string]any{"src": src, "dest": dest})
	require.True(t, out.Success)
	require.True(t, out.Changed)
}

func TestPingModuleEchoes(t *testing.T) {
	out := PingModule{}.Run(map[string]any{"data": "hi"})
	require.True(t, out.Success)
	require.Equal(t, "hi", out.Output["ping"])
}

func TestSetupModuleGathersFacts(t *testing.T) {
	out := SetupModule{}.Run(nil)
	require.True(t, out.Success)
	require.Contains(t, out.Output, "ansible_facts")
}
