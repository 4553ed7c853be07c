// Package output applies draft side effects: the draft file and the clipboard.
package output

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rbright/askvoice/internal/config"
)

const clipboardTimeout = 2 * time.Second

// Committer writes the merged draft to its configured sinks.
type Committer struct {
	config config.OutputConfig
	logger *slog.Logger
}

// NewCommitter constructs a draft committer from output config.
func NewCommitter(cfg config.OutputConfig, logger *slog.Logger) *Committer {
	return &Committer{config: cfg, logger: logger}
}

// ReadDraft returns the current draft at path. A missing file is an empty draft.
func ReadDraft(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read draft %q: %w", path, err)
	}
	return string(data), nil
}

// Commit writes draft to draftPath (when set) and the clipboard command (when
// configured). A clipboard failure is logged and does not fail the commit
// once the draft file is written.
func (c *Committer) Commit(ctx context.Context, draftPath string, draft string) error {
	if draftPath != "" {
		if err := writeFileAtomic(draftPath, []byte(draft)); err != nil {
			return fmt.Errorf("write draft: %w", err)
		}
	}

	if len(c.config.Clipboard.Argv) == 0 || draft == "" {
		return nil
	}

	clipboardCtx, cancel := context.WithTimeout(ctx, clipboardTimeout)
	defer cancel()
	if err := runCommandWithInput(clipboardCtx, c.config.Clipboard.Argv, draft); err != nil {
		if draftPath == "" {
			return fmt.Errorf("set clipboard: %w", err)
		}
		c.logClipboardFailure(err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".draft-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

func (c *Committer) logClipboardFailure(err error) {
	if c.logger == nil || err == nil {
		return
	}
	c.logger.Error("clipboard copy failed; draft file remains written", "error", err.Error())
}
