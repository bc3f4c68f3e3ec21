package modules

import "github.com/eniac111/ftl2/internal/types"

// PingModule is a trivial liveness/echo module: it never changes state
// and echoes back an optional "data" parameter. As a native module it runs
// in-process on the controller for every targeted host; it does not make a
// gate round-trip to a remote host.
type PingModule struct{}

var _ Module = PingModule{}

func (PingModule) Run(params map[string]any) types.ModuleOutput {
	data := stringParam(params, "data")
	if data == "" {
		data = "pong"
	}
	return ok(false, map[string]any{"ping": data})
}
