package types

// ParamSpec documents one parameter of a module, used by the registry's
// describe() operation.
type ParamSpec struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
	Type     string `json:"type"`
}

// ModuleDescriptor resolves a module FQCN to either a native implementation
// or a bundled-module reference.
type ModuleDescriptor struct {
	FQCN         string      `json:"fqcn"`
	Params       []ParamSpec `json:"params"`
	Dependencies []string    `json:"dependencies"`
	Docs         string      `json:"docs"`
	Native       bool        `json:"native"`
	// SourcePath is set for bundled modules: the file resolved by the
	// registry's search-path precedence.
	SourcePath string `json:"source_path,omitempty"`
}

// Call is a single module invocation as the executor sees it: an FQCN with
// its parameters, prior to secret injection or redaction.
type Call struct {
	Module    string
	Params    map[string]any
	CheckMode bool
}

// ModuleOutput is what a module (native or bundled) returns.
type ModuleOutput struct {
	Success bool           `json:"success"`
	Changed bool           `json:"changed"`
	Output  map[string]any `json:"output"`
	Error   string         `json:"error,omitempty"`
}
