// Package transcribe turns an assembled audio artifact into text and merges
// the result into the user's question draft.
package transcribe

import (
	"context"

	"github.com/rbright/askvoice/internal/session"
)

// Dispatcher sends one artifact for transcription. Every error it returns is
// a tagged failure value.
type Dispatcher interface {
	Dispatch(ctx context.Context, artifact session.Artifact, credential string) (string, error)
}

// Merge appends transcript to draft with one separating space. An empty
// draft becomes the transcript; an empty transcript leaves draft unchanged.
func Merge(draft string, transcript string) string {
	switch {
	case transcript == "":
		return draft
	case draft == "":
		return transcript
	default:
		return draft + " " + transcript
	}
}

// Apply dispatches artifact and merges the transcript into draft. On failure
// the returned draft is the input draft, byte for byte.
func Apply(ctx context.Context, d Dispatcher, draft string, artifact session.Artifact, credential string) (string, string, error) {
	transcript, err := d.Dispatch(ctx, artifact, credential)
	if err != nil {
		return draft, "", err
	}
	return Merge(draft, transcript), transcript, nil
}
