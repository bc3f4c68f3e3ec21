package modules

import (
	"io"
	"os"
	"path/filepath"

	"github.com/eniac111/ftl2/internal/types"
)

// CopyModule copies a local file to a local destination path. As a native
// module it runs in-process on the controller for every targeted host; it
// does not copy anything to a remote host.
type CopyModule struct{}

var _ Module = CopyModule{}

func (cm CopyModule) Run(params map[string]any) types.ModuleOutput {
	src := stringParam(params, "src")
	dest := stringParam(params, "dest")
	if src == "" || dest == "" {
		return fail("'src' and 'dest' are required")
	}

	if same, err := sameContent(src, dest); err == nil && same {
		return ok(false, map[string]any{"msg": "already up to date", "dest": dest})
	}

	if boolParam(params, "_ftl2_check_mode") {
		return ok(true, map[string]any{"msg": "check mode: would copy", "dest": dest})
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fail(err.Error())
	}

	in, err := os.Open(src)
	if err != nil {
		return fail(err.Error())
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fail(err.Error())
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fail(err.Error())
	}

	return ok(true, map[string]any{"msg": "copied", "dest": dest})
}

func sameContent(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, err
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false, err
	}
	return ai.Size() == bi.Size() && ai.ModTime().Equal(bi.ModTime()), nil
}
