package modules

import (
	"os"
	"runtime"

	"github.com/eniac111/ftl2/internal/types"
)

// SetupModule gathers local host facts: hostname, OS, and architecture.
// Deliberately built on the standard library rather than a
// facts-gathering library such as gopsutil: the native fast path is
// meant to stay dependency-light, and runtime/os already expose
// everything this module needs (see DESIGN.md).
type SetupModule struct{}

var _ Module = SetupModule{}

func (SetupModule) Run(params map[string]any) types.ModuleOutput {
	hostname, _ := os.Hostname()
	facts := map[string]any{
		"ansible_hostname":        hostname,
		"ansible_system":          runtime.GOOS,
		"ansible_architecture":    runtime.GOARCH,
		"ansible_processor_vcpus": runtime.NumCPU(),
	}
	return ok(false, map[string]any{"ansible_facts": facts})
}
