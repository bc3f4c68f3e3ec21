package bundle

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/eniac111/ftl2/internal/registry"
	"github.com/eniac111/ftl2/internal/types"
)

const entryStubVersion = "ftl2gate-v1"

// Builder resolves FQCNs to module files, scans their declared
// dependencies, fingerprints the result, and produces (or reuses) a
// content-addressed archive.
type Builder struct {
	registry  *registry.Registry
	cache     *cache
	entryStub []byte // optional prebuilt cmd/ftl2gate binary to embed, see WithEntryStub
}

// New returns a Builder caching archives under cacheDir (defaulting to
// $FTL2_CACHE_DIR or ~/.cache/ftl2/bundles).
func New(reg *registry.Registry, cacheDir string) *Builder {
	if cacheDir == "" {
		cacheDir = DefaultCacheDir()
	}
	return &Builder{registry: reg, cache: newCache(cacheDir)}
}

// DefaultCacheDir resolves $FTL2_CACHE_DIR, falling back to
// ~/.cache/ftl2/bundles.
func DefaultCacheDir() string {
	if dir := os.Getenv("FTL2_CACHE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".cache", "ftl2", "bundles")
}

// WithEntryStub configures a prebuilt ftl2gate binary to embed into every
// archive this Builder produces. Without one, archives ship only modules
// and the manifest. The gate transport always launches the ftl2gate found
// in the bundle's own directory on the target, so a stub-less bundle only
// starts where an ftl2gate binary has been placed in that directory by
// other means.
func (b *Builder) WithEntryStub(binary []byte) *Builder {
	b.entryStub = binary
	return b
}

// Build resolves modules, computes the fingerprint, and returns the
// (possibly cached) bundle for target profile.
func (b *Builder) Build(moduleFQCNs []string, profile types.TargetProfile) (types.Bundle, error) {
	if profile.OS == "" {
		profile.OS = runtime.GOOS
	}
	if profile.Arch == "" {
		profile.Arch = runtime.GOARCH
	}

	var (
		entries    []entry
		files      []moduleFile
		perModDeps [][]string
	)

	for _, fqcn := range moduleFQCNs {
		desc, err := b.registry.Resolve(fqcn)
		if err != nil {
			return types.Bundle{}, err
		}
		if desc.Native {
			// Native modules run in-process on the controller and never
			// travel in a bundle; skip them here.
			continue
		}

		content, err := os.ReadFile(desc.SourcePath)
		if err != nil {
			return types.Bundle{}, types.NewError(types.KindBundleBuildFailed, "cannot read module source for "+fqcn, err)
		}

		deps := scanDependencies(content)
		perModDeps = append(perModDeps, deps)

		entries = append(entries, entry{
			fqcn:         fqcn,
			contentHash:  contentHash(content),
			dependencies: deps,
		})
		files = append(files, moduleFile{
			fqcn:    fqcn,
			relPath: filepath.Base(desc.SourcePath),
			content: content,
		})
	}

	deps := collectTransitive(perModDeps)
	fp := fingerprint(entries, profile, entryStubVersion)

	data, err := b.cache.buildOnce(fp, func() ([]byte, error) {
		m := manifest{
			Fingerprint:      fp,
			Modules:          moduleFQCNs,
			Dependencies:     deps,
			EntryStubVersion: entryStubVersion,
		}
		return buildArchive(m, files, b.entryStub)
	})
	if err != nil {
		return types.Bundle{}, err
	}

	return types.Bundle{
		Fingerprint: fp,
		Archive:     data,
		Modules:     moduleFQCNs,
		Profile:     profile,
	}, nil
}
