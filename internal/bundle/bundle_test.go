package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eniac111/ftl2/internal/registry"
	"github.com/eniac111/ftl2/internal/types"
	"github.com/stretchr/testify/require"
)

func writeModule(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	profile := types.TargetProfile{OS: "linux", Arch: "amd64"}
	e1 := []entry{{fqcn: "a", contentHash: "h1"}, {fqcn: "b", contentHash: "h2"}}
	e2 := []entry{{fqcn: "b", contentHash: "h2"}, {fqcn: "a", contentHash: "h1"}}
	require.Equal(t, fingerprint(e1, profile, "v1"), fingerprint(e2, profile, "v1"))
}

func TestFingerprintChangesWithContent(t *testing.T) {
	profile := types.TargetProfile{OS: "linux", Arch: "amd64"}
	e1 := []entry{{fqcn: "a", contentHash: "h1"}}
	e2 := []entry{{fqcn: "a", contentHash: "h2"}}
	require.NotEqual(t, fingerprint(e1, profile, "v1"), fingerprint(e2, profile, "v1"))
}

func TestBuildIsCachedAndByteIdentical(t *testing.T) {
	modDir := t.TempDir()
	writeModule(t, modDir, "greet.py", "# ftl2-requires: requests>=2.0\nprint('hi')\n")

	reg := registry.New([]string{modDir}, "")
	cacheDir := t.TempDir()
	b := New(reg, cacheDir)

	profile := types.TargetProfile{OS: "linux", Arch: "amd64"}
	bundle1, err := b.Build([]string{"greet"}, profile)
	require.NoError(t, err)
	require.NotEmpty(t, bundle1.Fingerprint)

	bundle2, err := b.Build([]string{"greet"}, profile)
	require.NoError(t, err)
	require.Equal(t, bundle1.Fingerprint, bundle2.Fingerprint)
	require.Equal(t, bundle1.Archive, bundle2.Archive)
}

func TestBuildSkipsNativeModules(t *testing.T) {
	reg := registry.New(nil, "")
	b := New(reg, t.TempDir())
	profile := types.TargetProfile{OS: "linux", Arch: "amd64"}
	bundle, err := b.Build([]string{"ping"}, profile)
	require.NoError(t, err)
	require.NotEmpty(t, bundle.Fingerprint)
}

func TestScanDependenciesFindsMarker(t *testing.T) {
	deps := scanDependencies([]byte("# ftl2-requires: requests>=2.0\n# ftl2-requires: boto3\nprint(1)\n"))
	require.Equal(t, []string{"requests>=2.0", "boto3"}, deps)
}
