package modules

import (
	"fmt"
	"os"
	"time"

	"github.com/eniac111/ftl2/internal/types"
)

// FileModule manages file/directory/link state: file, touch, directory,
// absent, link, and hard link targets.
type FileModule struct{}

var _ Module = FileModule{}

func (fm FileModule) Run(params map[string]any) types.ModuleOutput {
	path := stringParam(params, "path")
	state := stringParam(params, "state")
	src := stringParam(params, "src")
	dest := stringParam(params, "dest")

	if state == "" {
		state = "file"
	}

	if path == "" && (state == "file" || state == "touch" || state == "directory" || state == "absent") {
		return fail("missing 'path' parameter")
	}
	if (state == "link" || state == "hard") && (dest == "" || src == "") {
		return fail("for link/hard state, both 'src' and 'dest' are required")
	}
	if (state == "link" || state == "hard") && path != "" && dest == "" {
		dest = path
	}

	var (
		changed bool
		err     error
		msg     string
	)

	switch state {
	case "file":
		changed, err = ensureFile(path, false)
		msg = fmt.Sprintf("file %q created", path)
	case "touch":
		changed, err = ensureFile(path, true)
		msg = fmt.Sprintf("file %q touched", path)
	case "directory":
		changed, err = ensureDirectory(path)
		msg = fmt.Sprintf("directory %q created", path)
	case "absent":
		changed, err = removePath(path)
		msg = fmt.Sprintf("removed %q", path)
	case "link":
		changed, err = ensureSymlink(src, dest)
		msg = fmt.Sprintf("symlink created: %s -> %s", dest, src)
	case "hard":
		changed, err = ensureHardLink(src, dest)
		msg = fmt.Sprintf("hard link created: %s -> %s", dest, src)
	default:
		return fail(fmt.Sprintf("unknown state %q", state))
	}

	if err != nil {
		return fail(err.Error())
	}
	return ok(changed, map[string]any{"msg": msg, "path": path})
}

func ensureFile(path string, forceTouch bool) (bool, error) {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		f, createErr := os.Create(path)
		if createErr != nil {
			return false, createErr
		}
		_ = f.Close()
		return true, nil
	} else if err != nil {
		return false, err
	}
	if info.IsDir() {
		return false, fmt.Errorf("%q exists but is a directory", path)
	}
	if forceTouch {
		now := time.Now()
		_ = os.Chtimes(path, now, now)
	}
	return false, nil
}

func ensureDirectory(path string) (bool, error) {
	_, err := os.Lstat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return false, err
		}
		return true, nil
	} else if err != nil {
		return false, err
	}
	return false, nil
}

func removePath(path string) (bool, error) {
	_, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if err := os.RemoveAll(path); err != nil {
		return true, err
	}
	return true, nil
}

func ensureSymlink(src, dest string) (bool, error) {
	_, err := os.Lstat(dest)
	if os.IsNotExist(err) {
		return os.Symlink(src, dest) == nil, nil
	}
	return false, err
}

func ensureHardLink(src, dest string) (bool, error) {
	_, err := os.Lstat(dest)
	if os.IsNotExist(err) {
		return os.Link(src, dest) == nil, nil
	}
	return false, err
}
