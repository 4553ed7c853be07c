// Package indicator renders session state for the terminal user.
package indicator

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rbright/askvoice/internal/failure"
)

// Controller is the pipeline-facing indicator contract.
type Controller interface {
	ShowRequesting()
	ShowRecording(elapsed int)
	ShowTranscribing()
	ShowError(err error)
	Hide()
}

// Terminal writes indicator lines to a terminal. On a TTY the recording line
// is repainted in place; otherwise each state change is one line.
type Terminal struct {
	out      io.Writer
	live     bool
	messages messages

	mu          sync.Mutex
	lastElapsed int
	painted     bool
}

// NewTerminal creates a terminal indicator writing to out.
func NewTerminal(out io.Writer) *Terminal {
	live := false
	if f, ok := out.(*os.File); ok {
		live = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Terminal{out: out, live: live, messages: messagesFromEnv(), lastElapsed: -1}
}

func (t *Terminal) ShowRequesting() {
	t.line(t.messages.requesting)
}

// ShowRecording renders the elapsed counter. Non-TTY output only prints the
// first recording line.
func (t *Terminal) ShowRecording(elapsed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if elapsed == t.lastElapsed {
		return
	}
	first := t.lastElapsed < 0
	t.lastElapsed = elapsed

	text := fmt.Sprintf("%s %s  %s", t.messages.recording, FormatElapsed(elapsed), t.messages.stopHint)
	if t.live {
		fmt.Fprintf(t.out, "\r\033[K%s", text)
		t.painted = true
		return
	}
	if first {
		fmt.Fprintln(t.out, text)
	}
}

func (t *Terminal) ShowTranscribing() {
	t.line(t.messages.processing)
}

// ShowError renders the tailored, retryable message for err.
func (t *Terminal) ShowError(err error) {
	t.line(ErrorText(err, t.messages.errorText))
}

// Hide terminates any repainted line.
func (t *Terminal) Hide() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLiveLocked()
	t.lastElapsed = -1
}

func (t *Terminal) line(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.endLiveLocked()
	fmt.Fprintln(t.out, text)
}

func (t *Terminal) endLiveLocked() {
	if t.painted {
		fmt.Fprintln(t.out)
		t.painted = false
	}
}

// FormatElapsed renders whole seconds as mm:ss.
func FormatElapsed(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// ErrorText returns the user-facing message for a retryable failure, or
// fallback for anything else.
func ErrorText(err error, fallback string) string {
	var tagged *failure.Error
	if errors.As(err, &tagged) && failure.Retryable(err) {
		return tagged.Message()
	}
	if fallback == "" {
		return failure.Message("")
	}
	return fallback
}
