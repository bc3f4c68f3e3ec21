package modules

import (
	"bytes"
	"os/exec"

	"github.com/eniac111/ftl2/internal/types"
)

// ShellModule runs a shell command locally. As a native module it runs
// in-process on the controller for every targeted host, remote ones
// included; it is never dispatched through a gate.
type ShellModule struct{}

var _ Module = ShellModule{}

func (sm ShellModule) Run(params map[string]any) types.ModuleOutput {
	cmdString := stringParam(params, "cmd")
	if cmdString == "" {
		return fail("missing 'cmd' parameter for shell module")
	}
	if boolParam(params, "_ftl2_check_mode") {
		return ok(false, map[string]any{"msg": "check mode: command not run", "cmd": cmdString})
	}

	cmd := exec.Command("sh", "-c", cmdString)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fail("command failed: " + stderr.String())
	}

	return ok(true, map[string]any{"stdout": stdout.String(), "stderr": stderr.String()})
}
