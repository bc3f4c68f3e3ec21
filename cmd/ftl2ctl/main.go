// Command ftl2ctl is FTL2's diagnostic CLI ("CLI front-end" is a
// deliberate collaborator, not part of the specified core): list and
// describe modules through the registry, validate inventory and policy
// files, and inspect an audit log.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/eniac111/ftl2/internal/audit"
	"github.com/eniac111/ftl2/internal/inventory"
	"github.com/eniac111/ftl2/internal/policy"
	"github.com/eniac111/ftl2/internal/registry"
	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "modules":
		err = modulesCmd(os.Args[2:])
	case "validate-inventory":
		err = validateInventoryCmd(os.Args[2:])
	case "validate-policy":
		err = validatePolicyCmd(os.Args[2:])
	case "audit":
		err = auditCmd(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "ftl2ctl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: ftl2ctl <command> [options]

commands:
  modules              list or describe registered modules
  validate-inventory    parse and summarize an inventory file
  validate-policy       parse and summarize a policy file
  audit                 summarize an audit log`)
}

func modulesCmd(args []string) error {
	fs := pflag.NewFlagSet("modules", pflag.ExitOnError)
	searchPath := fs.String("path", "", "module search directory")
	describe := fs.String("describe", "", "print the descriptor for one module")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var searchPaths []string
	if *searchPath != "" {
		searchPaths = []string{*searchPath}
	}
	reg := registry.New(searchPaths, "")

	if *describe != "" {
		desc, err := reg.Describe(*describe)
		if err != nil {
			return err
		}
		return printJSON(desc)
	}

	for _, name := range reg.List() {
		fmt.Println(name)
	}
	return nil
}

func validateInventoryCmd(args []string) error {
	fs := pflag.NewFlagSet("validate-inventory", pflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: ftl2ctl validate-inventory <path>")
	}

	inv, err := inventory.Load(fs.Arg(0), nil)
	if err != nil {
		return err
	}
	groups := inv.Groups()
	fmt.Printf("groups: %d\n", len(groups))
	for _, g := range groups {
		hosts, err := inv.Hosts(g)
		if err != nil {
			return err
		}
		fmt.Printf("  %s: %d hosts\n", g, len(hosts))
	}
	return nil
}

func validatePolicyCmd(args []string) error {
	fs := pflag.NewFlagSet("validate-policy", pflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: ftl2ctl validate-policy <path>")
	}

	pol, err := policy.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("rules: %d\n", len(pol.Rules))
	for i, r := range pol.Rules {
		fmt.Printf("  [%d] %s match=%v reason=%q\n", i, r.Decision, r.Match, r.Reason)
	}
	return nil
}

func auditCmd(args []string) error {
	fs := pflag.NewFlagSet("audit", pflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: ftl2ctl audit <path>")
	}

	log := audit.New("")
	if err := log.LoadPrior(fs.Arg(0)); err != nil {
		return err
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var records []struct {
		Host    string `json:"host"`
		Module  string `json:"module"`
		Success bool   `json:"success"`
	}
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}
	total, ok, failed := len(records), 0, 0
	for _, r := range records {
		if r.Success {
			ok++
		} else {
			failed++
		}
	}
	fmt.Printf("records: %d ok: %d failed: %d\n", total, ok, failed)
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
