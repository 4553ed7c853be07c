package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rbright/askvoice/internal/fsm"
	"github.com/rbright/askvoice/internal/indicator"
	"github.com/rbright/askvoice/internal/ipc"
	"github.com/rbright/askvoice/internal/logging"
	"github.com/rbright/askvoice/internal/session"
)

// StateTranscribing is reported over IPC while a stopped session's artifact
// is being dispatched.
const StateTranscribing = "transcribing"

const indicatorRefresh = 250 * time.Millisecond

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// Committer persists the merged draft after a successful transcription.
type Committer interface {
	Commit(context.Context, string) error
}

// CommitFunc adapts a function to the Committer interface.
type CommitFunc func(context.Context, string) error

func (f CommitFunc) Commit(ctx context.Context, draft string) error {
	return f(ctx, draft)
}

// Result is the complete lifecycle output of one Controller.Run.
type Result struct {
	SessionID  string
	State      fsm.State
	Draft      string
	Transcript string
	Cancelled  bool
	Err        error
	Elapsed    int
	Bytes      int
	MIMEType   string
	Dispatch   time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
}

type noopIndicator struct{}

func (noopIndicator) ShowRequesting()   {}
func (noopIndicator) ShowRecording(int) {}
func (noopIndicator) ShowTranscribing() {}
func (noopIndicator) ShowError(error)   {}
func (noopIndicator) Hide()             {}

// Controller runs one ask lifecycle and serves IPC commands against it.
type Controller struct {
	logger    *slog.Logger
	pipeline  *Pipeline
	commit    Committer
	indicator indicator.Controller

	mu          sync.RWMutex
	sess        *session.Session
	dispatching atomic.Bool

	actions chan action
}

// NewController constructs a controller with safe default fallbacks.
func NewController(
	logger *slog.Logger,
	p *Pipeline,
	committer Committer,
	ind indicator.Controller,
) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	if committer == nil {
		committer = CommitFunc(func(context.Context, string) error { return nil })
	}
	if ind == nil {
		ind = noopIndicator{}
	}
	return &Controller{
		logger:    logger,
		pipeline:  p,
		commit:    committer,
		indicator: ind,
		actions:   make(chan action, 1),
	}
}

// State returns the lifecycle state reported to IPC clients.
func (c *Controller) State() string {
	if c.dispatching.Load() {
		return StateTranscribing
	}
	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess == nil {
		return string(fsm.StateIdle)
	}
	return string(sess.State())
}

// Run executes one start, stop, dispatch, and merge cycle on draft.
// Cancellation of ctx and the cancel command discard the recording; the
// stop command and a stream ending on its own dispatch it.
func (c *Controller) Run(ctx context.Context, draft string) Result {
	result := Result{Draft: draft, StartedAt: time.Now()}
	finish := func(state fsm.State, err error) Result {
		result.State = state
		result.Err = err
		result.FinishedAt = time.Now()
		if err != nil {
			c.indicator.ShowError(err)
		}
		c.indicator.Hide()
		return result
	}

	if err := c.pipeline.Descriptor().Err(); err != nil {
		return finish(fsm.StateIdle, err)
	}

	c.indicator.ShowRequesting()
	sess, err := c.pipeline.Start(ctx)
	if sess != nil {
		result.SessionID = sess.ID()
	}
	if err != nil {
		sess.Dispose()
		return finish(sess.State(), err)
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.sess = nil
		c.mu.Unlock()
	}()

	refresh := time.NewTicker(indicatorRefresh)
	defer refresh.Stop()
	c.indicator.ShowRecording(sess.Elapsed())

wait:
	for {
		select {
		case <-ctx.Done():
			result.Elapsed = sess.Elapsed()
			c.pipeline.Cancel(sess)
			return finish(sess.State(), ctx.Err())
		case a := <-c.actions:
			switch a {
			case actionCancel:
				result.Elapsed = sess.Elapsed()
				c.pipeline.Cancel(sess)
				result.Cancelled = true
				return finish(sess.State(), nil)
			case actionStop:
				break wait
			default:
				c.pipeline.Cancel(sess)
				return finish(sess.State(), fmt.Errorf("unknown action %d", a))
			}
		case <-sess.Done():
			if err := ctx.Err(); err != nil {
				result.Elapsed = sess.Elapsed()
				c.pipeline.Cancel(sess)
				return finish(sess.State(), err)
			}
			break wait
		case <-refresh.C:
			c.indicator.ShowRecording(sess.Elapsed())
		}
	}

	c.dispatching.Store(true)
	defer c.dispatching.Store(false)
	c.indicator.ShowTranscribing()

	outcome, err := c.pipeline.Finish(ctx, sess, draft)
	result.Elapsed = outcome.Artifact.Elapsed
	result.Bytes = outcome.Artifact.Size()
	result.MIMEType = outcome.Artifact.MIMEType
	result.Dispatch = outcome.Dispatch
	if err != nil {
		return finish(sess.State(), err)
	}

	result.Draft = outcome.Draft
	result.Transcript = outcome.Transcript
	if err := c.commit.Commit(ctx, outcome.Draft); err != nil {
		return finish(sess.State(), fmt.Errorf("commit draft: %w", err))
	}
	return finish(sess.State(), nil)
}

// Handle serves IPC commands for the active ask.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: c.State(), Elapsed: c.pipeline.Elapsed()}
	case ipc.CommandStop:
		return c.request(actionStop, "stop")
	case ipc.CommandCancel:
		return c.request(actionCancel, "cancel")
	default:
		return ipc.Response{OK: false, State: c.State(), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

// RequestStop enqueues a stop as if it arrived over IPC.
func (c *Controller) RequestStop() error {
	resp := c.request(actionStop, "stop")
	if !resp.OK {
		return errors.New(resp.Error)
	}
	return nil
}

func (c *Controller) request(a action, verb string) ipc.Response {
	state := c.State()
	if state == StateTranscribing {
		return ipc.Response{OK: false, State: state, Error: "already transcribing"}
	}
	if state != string(fsm.StateRecording) {
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("cannot %s from state %s", verb, state)}
	}

	select {
	case c.actions <- a:
		c.logger.Debug("action queued", "action", verb)
		return ipc.Response{OK: true, State: state, Message: verb + " requested"}
	default:
		return ipc.Response{OK: false, State: state, Error: "action already pending"}
	}
}
