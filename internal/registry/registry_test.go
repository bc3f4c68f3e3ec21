package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveFindsNativeModules(t *testing.T) {
	r := New(nil, "")
	desc, err := r.Resolve("file")
	require.NoError(t, err)
	require.True(t, desc.Native)

	_, ok := r.NativeImpl("file")
	require.True(t, ok)
}

func TestResolveUserPathTakesPrecedenceOverNative(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "file"), []byte("#!/bin/sh\n"), 0o755))

	r := New([]string{dir}, "")
	desc, err := r.Resolve("file")
	require.NoError(t, err)
	require.False(t, desc.Native)
	require.Equal(t, filepath.Join(dir, "file"), desc.SourcePath)
}

func TestResolveUnknownModuleFails(t *testing.T) {
	r := New(nil, "")
	_, err := r.Resolve("does.not.exist")
	require.Error(t, err)
}

func TestListIncludesNativeModules(t *testing.T) {
	r := New(nil, "")
	names := r.List()
	require.Contains(t, names, "ping")
	require.Contains(t, names, "setup")
}
