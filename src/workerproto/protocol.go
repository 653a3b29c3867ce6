// Package workerproto implements the framed MessagePack wire protocol spoken
// between the host and each worker child process over stdio: a 4-byte
// little-endian length prefix followed by a self-describing MessagePack payload,
// chosen over newline-delimited JSON because stdout/stderr may contain arbitrary
// bytes including embedded newlines.
package workerproto

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

// Request asks a worker to run exactly one test.
type Request struct {
	ID              uint64  `msgpack:"id"`
	File            string  `msgpack:"file"`
	Function        string  `msgpack:"function"`
	Class           *string `msgpack:"class,omitempty"`
	CollectCoverage bool    `msgpack:"collect_coverage"`
}

// ResponseError carries the failure details when a test did not pass.
type ResponseError struct {
	Message   string `msgpack:"message"`
	Traceback string `msgpack:"traceback,omitempty"`
}

// Response is a worker's outcome for the Request with the same ID.
type Response struct {
	ID          uint64              `msgpack:"id"`
	Passed      bool                `msgpack:"passed"`
	Error       *ResponseError      `msgpack:"error,omitempty"`
	Stdout      string              `msgpack:"stdout"`
	Stderr      string              `msgpack:"stderr"`
	DurationSec float64             `msgpack:"duration_sec"`
	Coverage    map[string][]int    `msgpack:"coverage,omitempty"`
}

// shutdownFrame is the control frame that tells a worker to exit cleanly; it has
// no response.
type shutdownFrame struct {
	Cmd string `msgpack:"cmd"`
}

// pingFrame elicits a pongFrame, used for liveness checks.
type pingFrame struct {
	Cmd string `msgpack:"cmd"`
}

type pongFrame struct {
	ID   uint64 `msgpack:"id"`
	Pong bool   `msgpack:"pong"`
}

// requestID is the process-wide monotonically increasing id generator. This is
// legitimate global state: its lifecycle is the process lifetime, and every
// request across every worker shares one counter.
var requestID uint64

// NextRequestID returns the next value from the process-wide request-id counter.
func NextRequestID() uint64 {
	return atomic.AddUint64(&requestID, 1)
}

// WriteFrame encodes v as MessagePack and writes it to w behind a 4-byte
// little-endian length prefix.
func WriteFrame(w io.Writer, v interface{}) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed MessagePack frame from r and decodes it
// into v. Returns io.EOF (wrapped, if the length prefix itself couldn't be read)
// when the peer has closed the stream, which callers treat as a dead worker.
func ReadFrame(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return fmt.Errorf("worker closed: %w", io.EOF)
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("reading frame payload: %w", err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return nil
}

// WriteShutdown sends the control frame that asks a worker to exit cleanly.
func WriteShutdown(w io.Writer) error {
	return WriteFrame(w, shutdownFrame{Cmd: "shutdown"})
}

// WritePing sends an optional liveness-check frame.
func WritePing(w io.Writer) error {
	return WriteFrame(w, pingFrame{Cmd: "ping"})
}
