// Package gate implements the remote gate transport and protocol: a
// framed bidirectional JSON stream over SSH stdin/stdout to a
// long-lived interpreter process per (host, bundle-fingerprint), with
// request/response correlation and an interleaved event stream.
package gate

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// FrameType enumerates the gate protocol's message kinds.
type FrameType string

const (
	FrameExecute      FrameType = "execute"
	FrameInfo         FrameType = "info"
	FrameListModules  FrameType = "list_modules"
	FrameShutdown     FrameType = "shutdown"
	FrameResult       FrameType = "result"
	FrameEvent        FrameType = "event"
	FrameReady        FrameType = "ready"
	FrameError        FrameType = "error"
	FrameInfoResult   FrameType = "info_result"
	FrameModulesReply FrameType = "list_modules_result"
)

// Frame is the wire envelope: all frames are JSON objects with a type and,
// when correlated, a monotonic per-gate integer id. A single
// struct carries every frame shape since the set of fields in play is
// small and the alternative (per-type structs plus a discriminated union)
// buys nothing a fleet tool needs.
type Frame struct {
	Type      string         `json:"type"`
	ID        int64          `json:"id,omitempty"`
	Module    string         `json:"module,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
	CheckMode bool           `json:"check_mode,omitempty"`
	Success   bool           `json:"success,omitempty"`
	Changed   bool           `json:"changed,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Error     string         `json:"error,omitempty"`
	Kind      string         `json:"kind,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Modules   []string       `json:"modules,omitempty"`
	Message   string         `json:"message,omitempty"`
}

const maxFrameSize = 64 << 20 // 64 MiB, generous headroom over any module output

// WriteFrame writes v as length-prefixed JSON: a 4-byte big-endian unsigned
// length, then that many UTF-8 bytes of JSON. Callers must serialize their
// own writes to a given stream; WriteFrame does no locking itself.
func WriteFrame(w io.Writer, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON frame. io.EOF signals a clean
// shutdown of the stream.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err // propagate io.EOF as-is
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > maxFrameSize {
		return Frame{}, fmt.Errorf("frame length %d exceeds maximum %d", length, maxFrameSize)
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("read frame body: %w", err)
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, fmt.Errorf("unmarshal frame: %w", err)
	}
	return f, nil
}
