// Package modules holds the handful of native fast-path modules FTL2 runs
// in-process on the controller: file, shell, copy, ping, and setup. Every
// other module is resolved through the bundle builder and runs inside a
// gate.
package modules

import "github.com/eniac111/ftl2/internal/types"

// Module is the native fast-path contract: run in-process, return a
// ModuleOutput, never panic across the boundary (guarded by
// internal/executor's supervised call wrapper, runNativeSupervised).
type Module interface {
	Run(params map[string]any) types.ModuleOutput
}

func ok(changed bool, output map[string]any) types.ModuleOutput {
	if output == nil {
		output = map[string]any{}
	}
	return types.ModuleOutput{Success: true, Changed: changed, Output: output}
}

func fail(msg string) types.ModuleOutput {
	return types.ModuleOutput{Success: false, Output: map[string]any{}, Error: msg}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func boolParam(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}
