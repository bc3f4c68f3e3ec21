package automation

import (
	"context"

	"github.com/eniac111/ftl2/internal/types"
)

// GroupHandle is a selector bound to a Context, giving callers
// `ctx.Group("web").Module("shell", params)` ergonomics over the explicit
// call() primitive (namespacing-wrapper design note — sugar
// over Call, never a substitute for it).
type GroupHandle struct {
	ctx      *Context
	selector string
}

// Module runs module against this handle's selector with default call
// options. Use Context.Call directly for fail_fast or other CallOptions.
func (g GroupHandle) Module(module string, params map[string]any) ([]types.HostResult, error) {
	return g.ctx.Call(context.Background(), g.selector, module, params, CallOptions{})
}

// WithOptions returns a call function bound to this handle's selector and
// opts, for scripts that need fail_fast or a custom request id without
// spelling out Context.Call at every call site.
func (g GroupHandle) WithOptions(opts CallOptions) func(module string, params map[string]any) ([]types.HostResult, error) {
	return func(module string, params map[string]any) ([]types.HostResult, error) {
		return g.ctx.Call(context.Background(), g.selector, module, params, opts)
	}
}
