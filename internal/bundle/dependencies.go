package bundle

import (
	"bufio"
	"bytes"
	"strings"
)

// dependencyMarker is the documented metadata block modules declare their
// auxiliary library and interpreter requirements with. This is a small
// parser over a fixed line format, not source-language introspection:
//
//	# ftl2-requires: requests>=2.0
//	# ftl2-requires: boto3
const dependencyMarker = "ftl2-requires:"

// scanDependencies extracts declared dependency names from a module's
// source bytes by scanning comment lines for the dependencyMarker.
func scanDependencies(src []byte) []string {
	var deps []string
	scanner := bufio.NewScanner(bytes.NewReader(src))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimLeft(line, "#/ \t")
		if idx := strings.Index(line, dependencyMarker); idx == 0 {
			dep := strings.TrimSpace(line[len(dependencyMarker):])
			if dep != "" {
				deps = append(deps, dep)
			}
		}
	}
	return deps
}

// collectTransitive resolves auxiliary libraries transitively: in this
// implementation dependencies name flat packages (no nested module
// requirements), so "transitive" collection is de-duplication across all
// requested modules' declared dependency lists.
func collectTransitive(perModule [][]string) []string {
	seen := map[string]bool{}
	var all []string
	for _, deps := range perModule {
		for _, d := range deps {
			if !seen[d] {
				seen[d] = true
				all = append(all, d)
			}
		}
	}
	return all
}
