// Package ipc carries stop/cancel/status commands from short-lived askvoice
// invocations to the process that owns the recording.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Commands understood by the session owner.
const (
	CommandStatus = "status"
	CommandStop   = "stop"
	CommandCancel = "cancel"
)

// maxLineBytes bounds one request or response line.
const maxLineBytes = 4 << 10

// Request is one newline-delimited JSON command sent to the running ask.
type Request struct {
	Command string `json:"command"`
}

type Response struct {
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Elapsed int    `json:"elapsed,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

func failed(format string, args ...any) Response {
	return Response{OK: false, Error: fmt.Sprintf(format, args...)}
}

func writeLine(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

func readLine(r io.Reader, v any) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 512), maxLineBytes)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal(scanner.Bytes(), v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
