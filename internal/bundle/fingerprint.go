package bundle

import (
	"encoding/hex"
	"sort"

	"github.com/eniac111/ftl2/internal/types"
	"github.com/zeebo/blake3"
)

// entry is one (module, content, dependency-set) tuple contributing to a
// bundle's fingerprint.
type entry struct {
	fqcn         string
	contentHash  string
	dependencies []string
}

// fingerprint hashes the *sorted* set of entries plus the target profile
// and entry-stub version, so the result is independent of the order
// modules were requested in.
func fingerprint(entries []entry, profile types.TargetProfile, entryStubVersion string) string {
	sorted := append([]entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].fqcn < sorted[j].fqcn })

	h := blake3.New()
	writeString(h, entryStubVersion)
	writeString(h, profile.OS)
	writeString(h, profile.Arch)
	writeString(h, profile.InterpreterVer)

	for _, e := range sorted {
		writeString(h, e.fqcn)
		writeString(h, e.contentHash)
		deps := append([]string(nil), e.dependencies...)
		sort.Strings(deps)
		for _, d := range deps {
			writeString(h, d)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

func writeString(h *blake3.Hasher, s string) {
	_, _ = h.Write([]byte(s))
	_, _ = h.Write([]byte{0}) // separator so "ab","c" != "a","bc"
}

func contentHash(data []byte) string {
	h := blake3.New()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
