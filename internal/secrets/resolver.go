// Package secrets implements FTL2's secret resolution and redaction:
// env-var lookups, batched KV-store reads, per-module binding
// injection, and audit redaction.
package secrets

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"

	"github.com/eniac111/ftl2/internal/types"
)

// KVBackend is the narrow contract an external KV secret store must
// satisfy; internal/secrets/consul.go implements it against Hashicorp
// Consul's KV API.
type KVBackend interface {
	// Get returns the decoded JSON object stored at path.
	Get(path string) (map[string]any, error)
}

// Binding maps a module FQCN to {param name: secret name}, the shape
// bindings_for looks up.
type Bindings map[string]map[string]string

// Ref is a KV secret reference of the form "path#field".
type Ref struct {
	Path  string
	Field string
}

func ParseRef(s string) (Ref, error) {
	parts := strings.SplitN(s, "#", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Ref{}, types.NewError(types.KindSecretMissing, fmt.Sprintf("invalid KV reference %q, want path#field", s), nil)
	}
	return Ref{Path: parts[0], Field: parts[1]}, nil
}

// maskedParamNames are well-known credential-carrying parameter names
// redacted from audit records regardless of any binding.
var maskedParamNames = map[string]bool{
	"password":     true,
	"token":        true,
	"bearer_token": true,
}

var authHeaderPattern = regexp.MustCompile(`(?i)^headers\..*authorization$`)

// Resolver resolves env + KV secrets on context entry and exposes them to
// the executor for injection and redaction.
type Resolver struct {
	mu       sync.RWMutex
	values   map[string]string // secret name -> resolved value
	bindings Bindings
}

// New resolves envNames from the process environment and kvRefs (secret
// name -> "path#field") via backend, batched by distinct path.
// Any unresolved secret is fatal at context entry (fail closed).
func New(envNames []string, kvRefs map[string]string, backend KVBackend, bindings Bindings) (*Resolver, error) {
	r := &Resolver{values: map[string]string{}, bindings: bindings}

	for _, name := range envNames {
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil, types.SecretMissing(name)
		}
		r.values[name] = v
	}

	byPath := map[string][]struct{ name, field string }{}
	refs := map[string]Ref{}
	for name, s := range kvRefs {
		ref, err := ParseRef(s)
		if err != nil {
			return nil, err
		}
		refs[name] = ref
		byPath[ref.Path] = append(byPath[ref.Path], struct{ name, field string }{name, ref.Field})
	}

	if len(byPath) > 0 && backend == nil {
		return nil, types.NewError(types.KindSecretMissing, "KV secrets referenced but no KV backend configured", nil)
	}

	for path, wants := range byPath {
		data, err := backend.Get(path)
		if err != nil {
			return nil, types.NewError(types.KindSecretMissing, fmt.Sprintf("KV read failed for %q", path), err)
		}
		for _, w := range wants {
			raw, ok := data[w.field]
			if !ok {
				return nil, types.SecretMissing(w.name)
			}
			r.values[w.name] = fmt.Sprintf("%v", raw)
		}
	}

	return r, nil
}

// Get returns a resolved secret value by name.
func (r *Resolver) Get(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[name]
	return v, ok
}

// BindingsFor returns {param: value} for module, resolved via the
// {module_fqcn: {param: secret_name}} bindings map.
func (r *Resolver) BindingsFor(moduleFQCN string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[string]string{}
	for param, secretName := range r.bindings[moduleFQCN] {
		if v, ok := r.values[secretName]; ok {
			out[param] = v
		}
	}
	return out
}

// Redact removes bound secret params and masks well-known credential
// parameter names from params before they are ever written to the audit
// log.
func (r *Resolver) Redact(params map[string]any, moduleFQCN string) map[string]any {
	r.mu.RLock()
	bound := r.bindings[moduleFQCN]
	r.mu.RUnlock()

	out := make(map[string]any, len(params))
	for k, v := range params {
		if _, isBound := bound[k]; isBound {
			continue
		}
		if maskedParamNames[strings.ToLower(k)] || authHeaderPattern.MatchString(k) {
			continue
		}
		out[k] = v
	}
	return out
}
