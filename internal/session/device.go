package session

import (
	"bytes"
	"context"
	"time"

	"github.com/rbright/askvoice/internal/codec"
)

// Device grants access to a capture stream. Acquire is the permission and
// device-open step; errors should be tagged failure values.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// Stream is one acquired capture stream.
//
// Record begins encoding with choice and emits one chunk per interval on the
// returned channel. Stop requests the terminal flush; the channel is closed
// once the final chunk has been delivered (the terminal stop event), even when
// Stop fails. Release closes the underlying tracks, closes the chunk channel
// if it is still open, and must be idempotent.
type Stream interface {
	Record(choice codec.Choice, interval time.Duration) (<-chan []byte, error)
	Stop() error
	Release()
}

// Assembler joins ordered chunks into one encoded artifact body.
type Assembler interface {
	Assemble(choice codec.Choice, chunks [][]byte) ([]byte, error)
}

// AssemblerFunc adapts a function to the Assembler interface.
type AssemblerFunc func(codec.Choice, [][]byte) ([]byte, error)

func (f AssemblerFunc) Assemble(choice codec.Choice, chunks [][]byte) ([]byte, error) {
	return f(choice, chunks)
}

// ConcatAssembler concatenates chunks in order, which is correct for streams
// whose chunks are fragments of one container.
var ConcatAssembler = AssemblerFunc(func(_ codec.Choice, chunks [][]byte) ([]byte, error) {
	return bytes.Join(chunks, nil), nil
})

// Artifact is the single audio object assembled after capture stops.
type Artifact struct {
	SessionID string
	MIMEType  string
	Filename  string
	Data      []byte
	Chunks    int
	Elapsed   int
}

// Size returns the artifact body length in bytes.
func (a Artifact) Size() int {
	return len(a.Data)
}
