package gate

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Frame{Type: "execute", ID: 7, Module: "shell", Params: map[string]any{"cmd": "echo hi"}}
	require.NoError(t, WriteFrame(&buf, in))

	out, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, in.Type, out.Type)
	require.Equal(t, in.ID, out.ID)
	require.Equal(t, in.Module, out.Module)
	require.Equal(t, "echo hi", out.Params["cmd"])
}

func TestReadFrameEOFOnEmptyStream(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	require.ErrorIs(t, err, io.EOF)
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	var lenBuf [4]byte
	lenBuf[0] = 0xFF // absurdly large length prefix
	lenBuf[1] = 0xFF
	lenBuf[2] = 0xFF
	lenBuf[3] = 0xFF
	_, err := ReadFrame(bytes.NewReader(lenBuf[:]))
	require.Error(t, err)
}

// TestMultipleFramesOnOneStream exercises the same length-prefix framing
// the gate's read loop relies on to demultiplex a live stream: several
// frames written back to back must be read out in order.
func TestMultipleFramesOnOneStream(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		_ = WriteFrame(clientConn, Frame{Type: "ready"})
		_ = WriteFrame(clientConn, Frame{Type: "event", ID: 1, Kind: "progress"})
		_ = WriteFrame(clientConn, Frame{Type: "result", ID: 1, Success: true, Changed: true})
	}()

	deadline := time.Now().Add(2 * time.Second)
	serverConn.SetReadDeadline(deadline)

	f1, err := ReadFrame(serverConn)
	require.NoError(t, err)
	require.Equal(t, "ready", f1.Type)

	f2, err := ReadFrame(serverConn)
	require.NoError(t, err)
	require.Equal(t, "event", f2.Type)
	require.Equal(t, int64(1), f2.ID)

	f3, err := ReadFrame(serverConn)
	require.NoError(t, err)
	require.Equal(t, "result", f3.Type)
	require.True(t, f3.Success)
	require.True(t, f3.Changed)
}
