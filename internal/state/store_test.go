package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsEmptySnapshot(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Empty(t, s.Hosts())
	_, ok := s.GetVar("anything")
	require.False(t, ok)
}

func TestFlushIsAtomicAndReloadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s, err := Load(path)
	require.NoError(t, err)

	s.PutHost("web01", map[string]string{"ansible_host": "1.2.3.4"})
	s.PutVar("release", "42")
	require.NoError(t, s.Flush())

	reloaded, err := Load(path)
	require.NoError(t, err)

	hosts := reloaded.Hosts()
	require.Equal(t, "1.2.3.4", hosts["web01"]["ansible_host"])

	v, ok := reloaded.GetVar("release")
	require.True(t, ok)
	require.Equal(t, "42", v)
}

func TestFlushNoopWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, s.Flush())
}

func TestLoadRejectsFutureVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s, err := Load(path)
	require.NoError(t, err)
	s.snap.Version = snapshotVersion + 1
	s.dirty = true
	require.NoError(t, s.Flush())

	_, err = Load(path)
	require.Error(t, err)
}
