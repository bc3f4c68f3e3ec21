// Package policy implements FTL2's deny-rule evaluation:
// ordered match rules against (module, host, environment, params),
// first matching deny wins, empty policy always allows.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eniac111/ftl2/internal/types"
	"gopkg.in/yaml.v3"
)

// Rule is one deny rule. Match clause keys are "module",
// "host", "environment", or "param.<name>"; values support glob wildcards.
type Rule struct {
	Decision string            `yaml:"decision"`
	Match    map[string]string `yaml:"match"`
	Reason   string            `yaml:"reason"`
}

// Policy is an ordered list of deny rules.
type Policy struct {
	Rules []Rule
}

// Empty returns a policy that permits everything.
func Empty() *Policy { return &Policy{} }

// Load reads a YAML policy file:
//
//	rules:
//	  - decision: deny
//	    match: {module: shell, environment: prod}
//	    reason: "use proper modules in production"
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.KindInventoryInvalid, "cannot read policy file", err)
	}
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, types.NewError(types.KindInventoryInvalid, fmt.Sprintf("malformed policy file %s", filepath.Base(path)), err)
	}
	return &Policy{Rules: doc.Rules}, nil
}

// Evaluate walks rules in declaration order; the first matching deny rule
// wins. Params are the pre-injection params — the policy runs before
// secret injection so decisions never see secret values, enforced by call
// ordering in internal/executor, not by this function.
func (p *Policy) Evaluate(module, host, environment string, params map[string]any) error {
	if p == nil {
		return nil
	}
	for _, rule := range p.Rules {
		if rule.Decision != "deny" {
			continue
		}
		if matches(rule, module, host, environment, params) {
			return types.PolicyDenied(rule.Reason)
		}
	}
	return nil
}

func matches(rule Rule, module, host, environment string, params map[string]any) bool {
	for key, pattern := range rule.Match {
		switch {
		case key == "module":
			if !globMatch(pattern, module) {
				return false
			}
		case key == "host":
			if !globMatch(pattern, host) {
				return false
			}
		case key == "environment":
			if !globMatch(pattern, environment) {
				return false
			}
		case strings.HasPrefix(key, "param."):
			name := strings.TrimPrefix(key, "param.")
			value := fmt.Sprintf("%v", params[name])
			if !globMatch(pattern, value) {
				return false
			}
		default:
			// Unknown condition key never matches: fail-safe default.
			return false
		}
	}
	return true
}

func globMatch(pattern, value string) bool {
	ok, err := filepath.Match(pattern, value)
	if err != nil {
		return pattern == value
	}
	return ok
}
