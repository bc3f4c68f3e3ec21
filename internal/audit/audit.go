// Package audit implements the append-only execution log and positional
// replay: synchronous in-memory append with periodic/on-exit
// flush, and try_replay's cursor-based positional matching.
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/eniac111/ftl2/internal/types"
)

// Log is an ordered, append-only sequence of execution records.
// Record order equals fan-out emission order, not completion order —
// callers (internal/fanout) are responsible for calling Append in that
// order via reservation slots.
type Log struct {
	mu      sync.Mutex
	path    string
	records []types.ExecutionRecord

	replay       []types.ExecutionRecord
	replayCursor int
	replayLive   bool
}

// New creates an empty log that flushes to path (empty path disables
// persistence, useful for tests).
func New(path string) *Log {
	return &Log{path: path}
}

// LoadPrior reads an existing audit file into an ordered replay list and
// arms the cursor at index 0. A malformed file is fatal: this
// implementation refuses to start rather than disengaging replay and
// continuing silently.
func (l *Log) LoadPrior(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot read replay audit file", err)
	}
	var records []types.ExecutionRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return types.NewError(types.KindInventoryInvalid, "malformed replay audit file, refusing to start", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.replay = records
	l.replayCursor = 0
	l.replayLive = true
	return nil
}

// TryReplay implements positional matching: if replay is
// disengaged, or the cursor is past the end, or the record at the cursor
// doesn't match (module, host) with outcome ok, replay disengages
// permanently and this call (and all subsequent ones) execute normally.
func (l *Log) TryReplay(module, host string) (types.ExecutionRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.replayLive {
		return types.ExecutionRecord{}, false
	}
	if l.replayCursor >= len(l.replay) {
		l.replayLive = false
		return types.ExecutionRecord{}, false
	}

	rec := l.replay[l.replayCursor]
	if rec.Module == module && rec.Host == host && rec.Outcome() == types.OutcomeOK {
		l.replayCursor++
		return rec, true
	}

	l.replayLive = false
	return types.ExecutionRecord{}, false
}

// Reserve appends a placeholder for a call about to start, returning a
// stable index used by Finalize. This is how record emission order is
// kept equal to fan-out start order even though the underlying call may
// complete out of order.
func (l *Log) Reserve() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, types.ExecutionRecord{})
	return len(l.records) - 1
}

// Finalize fills in a reserved slot once the call completes.
func (l *Log) Finalize(index int, rec types.ExecutionRecord) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[index] = rec
}

// Records returns a copy of every slot so far, in emission order. A slot
// reserved but not yet finalized appears as a zero-valued record.
func (l *Log) Records() []types.ExecutionRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.ExecutionRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Flush serializes the log to disk as a single JSON array.
func (l *Log) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot marshal audit log", err)
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot create audit directory", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return types.NewError(types.KindInventoryInvalid, "cannot write audit log", err)
	}
	return nil
}
