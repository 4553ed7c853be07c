package transcribe

import (
	"context"
	"time"

	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/session"
)

const (
	DefaultSimulatedDelay = 2 * time.Second
	DefaultPlaceholder    = "This is a mock transcription of your voice input. In a real implementation, this would be the actual transcribed text from your audio."
)

// Simulated returns a fixed placeholder after an artificial delay and never
// touches the network.
type Simulated struct {
	Delay       time.Duration
	Placeholder string
}

func (s Simulated) Dispatch(ctx context.Context, _ session.Artifact, _ string) (string, error) {
	placeholder := s.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	if s.Delay <= 0 {
		return placeholder, nil
	}

	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", failure.New(failure.NetworkFailure, ctx.Err())
	case <-timer.C:
		return placeholder, nil
	}
}
