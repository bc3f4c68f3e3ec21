// Command ftl2gate is the bundle archive's entry stub: it runs on
// the target host, either as a long-lived framed RPC server (--rpc) or as
// a one-shot diagnostic runner (--run).
//
// Bundled modules are opaque scripts, specified only by their I/O
// contract: this stub invokes each by interpreter (python3 for .py, sh
// for .sh) with the call's params as a JSON object on stdin, and expects
// a ModuleOutput JSON object on stdout.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/eniac111/ftl2/internal/gate"
	"github.com/eniac111/ftl2/internal/types"
	"github.com/spf13/pflag"
)

type manifest struct {
	Fingerprint      string   `json:"fingerprint"`
	Modules          []string `json:"modules"`
	Dependencies     []string `json:"dependencies"`
	EntryStubVersion string   `json:"entry_stub_version"`
}

func main() {
	rpcMode := pflag.Bool("rpc", false, "run as a framed RPC stream server")
	runMode := pflag.Bool("run", false, "one-shot diagnostic: --run <module> <params-json>")
	pflag.Parse()

	dir, err := stubDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ftl2gate:", err)
		os.Exit(1)
	}
	man, err := loadManifest(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "ftl2gate:", err)
		os.Exit(1)
	}

	switch {
	case *rpcMode:
		runRPC(dir, man)
	case *runMode:
		args := pflag.Args()
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: ftl2gate --run <module> <params-json>")
			os.Exit(2)
		}
		runDiagnostic(dir, man, args[0], args[1])
	default:
		fmt.Fprintln(os.Stderr, "usage: ftl2gate --rpc | --run <module> <params-json>")
		os.Exit(2)
	}
}

func stubDir() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(exe)
	if err != nil {
		resolved = exe
	}
	return filepath.Dir(resolved), nil
}

func loadManifest(dir string) (manifest, error) {
	var m manifest
	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

func runDiagnostic(dir string, man manifest, module, paramsJSON string) {
	var params map[string]any
	if err := json.Unmarshal([]byte(paramsJSON), &params); err != nil {
		fmt.Fprintln(os.Stderr, "ftl2gate: invalid params JSON:", err)
		os.Exit(2)
	}
	out := runModule(dir, man, module, params)
	enc, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(enc))
	if !out.Success {
		os.Exit(1)
	}
}

// runRPC implements the gate's RPC server side: send ready, then serve
// execute/info/list_modules/shutdown frames from stdin until stdin closes
// or shutdown is received. Each execute runs on its own goroutine so a
// slow module never blocks unrelated in-flight calls to other ids; writes
// to stdout are serialized.
func runRPC(dir string, man manifest) {
	var writeMu sync.Mutex
	write := func(f gate.Frame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = gate.WriteFrame(os.Stdout, f)
	}

	write(gate.Frame{Type: "ready"})

	var wg sync.WaitGroup
	for {
		frame, err := gate.ReadFrame(os.Stdin)
		if err != nil {
			break // clean EOF or a broken pipe both mean "controller is gone"
		}
		switch frame.Type {
		case "execute":
			wg.Add(1)
			go func(f gate.Frame) {
				defer wg.Done()
				params := f.Params
				if f.CheckMode {
					merged := make(map[string]any, len(params)+1)
					for k, v := range params {
						merged[k] = v
					}
					merged["_ftl2_check_mode"] = true
					params = merged
				}
				out := runModule(dir, man, f.Module, params)
				write(gate.Frame{Type: "result", ID: f.ID, Success: out.Success, Changed: out.Changed, Output: out.Output, Error: out.Error})
			}(frame)
		case "info":
			write(gate.Frame{Type: "info_result", ID: frame.ID, Payload: map[string]any{
				"fingerprint":        man.Fingerprint,
				"entry_stub_version": man.EntryStubVersion,
			}})
		case "list_modules":
			write(gate.Frame{Type: "list_modules_result", ID: frame.ID, Modules: man.Modules})
		case "shutdown":
			wg.Wait()
			return
		}
	}
	wg.Wait()
}

// runModule dispatches one call to a bundled module script by interpreter,
// per this file's doc comment. Any failure to launch or a malformed
// response becomes a normal failed ModuleOutput rather than a crash.
func runModule(dir string, man manifest, module string, params map[string]any) types.ModuleOutput {
	path, interpreter, err := resolveModule(dir, man, module)
	if err != nil {
		return types.ModuleOutput{Success: false, Output: map[string]any{}, Error: err.Error()}
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return types.ModuleOutput{Success: false, Output: map[string]any{}, Error: "marshal params: " + err.Error()}
	}

	cmd := exec.Command(interpreter, path)
	cmd.Stdin = bytes.NewReader(paramsJSON)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return types.ModuleOutput{Success: false, Output: map[string]any{}, Error: fmt.Sprintf("module %s failed: %v: %s", module, err, stderr.String())}
	}

	var out types.ModuleOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return types.ModuleOutput{Success: false, Output: map[string]any{}, Error: fmt.Sprintf("module %s produced invalid output: %v", module, err)}
	}
	return out
}

// bareName returns the last dot-separated segment of a module FQCN, the
// same convention internal/registry.bareName uses to map a dotted name
// onto a single module file.
func bareName(fqcn string) string {
	parts := strings.Split(fqcn, ".")
	return parts[len(parts)-1]
}

func resolveModule(dir string, man manifest, module string) (path, interpreter string, err error) {
	name := bareName(module)
	for _, listed := range man.Modules {
		if bareName(listed) != name {
			continue
		}
		modDir := filepath.Join(dir, "modules")
		entries, readErr := os.ReadDir(modDir)
		if readErr != nil {
			return "", "", fmt.Errorf("read modules dir: %w", readErr)
		}
		for _, e := range entries {
			base := e.Name()
			ext := filepath.Ext(base)
			trimmed := base[:len(base)-len(ext)]
			if trimmed != name {
				continue
			}
			switch ext {
			case ".py":
				return filepath.Join(modDir, base), "python3", nil
			case ".sh":
				return filepath.Join(modDir, base), "sh", nil
			}
		}
		return "", "", fmt.Errorf("module %q listed in manifest but no runnable file found", module)
	}
	return "", "", fmt.Errorf("module %q not present in this bundle", module)
}
