// Package registry implements FTL2's module resolver:
// dotted-or-bare FQCN resolution with precedence explicit user path >
// native-module table > bundled collection search, plus discovery
// (list/describe).
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/eniac111/ftl2/internal/modules"
	"github.com/eniac111/ftl2/internal/types"
)

// Registry resolves module FQCNs and documents native/bundled modules.
type Registry struct {
	mu          sync.RWMutex
	native      map[string]nativeEntry
	searchPaths []string // user-supplied directories, checked before the built-in collection root
	builtinRoot string
}

type nativeEntry struct {
	descriptor types.ModuleDescriptor
	impl       modules.Module
}

// New builds a registry pre-populated with the native fast-path modules
// plus the given user module search paths and the
// built-in bundled-collection root.
func New(searchPaths []string, builtinRoot string) *Registry {
	r := &Registry{
		native:      map[string]nativeEntry{},
		searchPaths: searchPaths,
		builtinRoot: builtinRoot,
	}
	r.registerNative("file", modules.FileModule{}, "Manage file/directory/link state.", []types.ParamSpec{
		{Name: "path", Type: "string"},
		{Name: "state", Type: "string"},
		{Name: "src", Type: "string"},
		{Name: "dest", Type: "string"},
	})
	r.registerNative("shell", modules.ShellModule{}, "Run a shell command.", []types.ParamSpec{
		{Name: "cmd", Required: true, Type: "string"},
	})
	r.registerNative("copy", modules.CopyModule{}, "Copy a local file to a local destination path.", []types.ParamSpec{
		{Name: "src", Required: true, Type: "string"},
		{Name: "dest", Required: true, Type: "string"},
	})
	r.registerNative("ping", modules.PingModule{}, "Liveness/echo check.", []types.ParamSpec{
		{Name: "data", Type: "string"},
	})
	r.registerNative("setup", modules.SetupModule{}, "Gather local host facts.", nil)
	return r
}

func (r *Registry) registerNative(name string, impl modules.Module, docs string, params []types.ParamSpec) {
	r.native[name] = nativeEntry{
		descriptor: types.ModuleDescriptor{FQCN: name, Params: params, Native: true, Docs: docs},
		impl:       impl,
	}
}

// Resolve implements the registry's resolution precedence: explicit user
// path > native-module table > bundled collection search.
func (r *Registry) Resolve(fqcn string) (types.ModuleDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name := bareName(fqcn)

	for _, dir := range r.searchPaths {
		if path := findModuleFile(dir, name); path != "" {
			return types.ModuleDescriptor{FQCN: fqcn, SourcePath: path, Native: false}, nil
		}
	}

	if entry, ok := r.native[name]; ok {
		return entry.descriptor, nil
	}

	if r.builtinRoot != "" {
		if path := findModuleFile(r.builtinRoot, name); path != "" {
			return types.ModuleDescriptor{FQCN: fqcn, SourcePath: path, Native: false}, nil
		}
	}

	return types.ModuleDescriptor{}, types.NewError(types.KindBundleBuildFailed, fmt.Sprintf("module %q not found", fqcn), nil)
}

// NativeImpl returns the in-process implementation for a native module, if
// any. The executor uses this for the local fast path.
func (r *Registry) NativeImpl(fqcn string) (modules.Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.native[bareName(fqcn)]
	return entry.impl, ok
}

// List returns every known module name: native, plus what's discoverable
// on the search paths and the builtin root.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var names []string
	for name := range r.native {
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	for _, dir := range append(append([]string{}, r.searchPaths...), r.builtinRoot) {
		for _, name := range listModuleFiles(dir) {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Describe returns the descriptor for a module by bare or dotted name.
func (r *Registry) Describe(name string) (types.ModuleDescriptor, error) {
	return r.Resolve(name)
}

func bareName(fqcn string) string {
	parts := strings.Split(fqcn, ".")
	return parts[len(parts)-1]
}

func findModuleFile(dir, name string) string {
	if dir == "" {
		return ""
	}
	candidate := filepath.Join(dir, name)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	for _, ext := range []string{".py", ".go", ".sh"} {
		candidate := filepath.Join(dir, name+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
	}
	return ""
}

func listModuleFiles(dir string) []string {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		name = strings.TrimSuffix(name, filepath.Ext(name))
		out = append(out, name)
	}
	return out
}
