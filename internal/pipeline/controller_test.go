package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rbright/askvoice/internal/capability"
	"github.com/rbright/askvoice/internal/config"
	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/fsm"
	"github.com/rbright/askvoice/internal/ipc"
	"github.com/stretchr/testify/require"
)

type recordingIndicator struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (r *recordingIndicator) add(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingIndicator) ShowRequesting()   { r.add("requesting") }
func (r *recordingIndicator) ShowRecording(int) { r.add("recording") }
func (r *recordingIndicator) ShowTranscribing() { r.add("transcribing") }
func (r *recordingIndicator) Hide()             { r.add("hide") }

func (r *recordingIndicator) ShowError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "error")
	r.errs = append(r.errs, err)
}

func (r *recordingIndicator) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func runAsync(c *Controller, ctx context.Context, draft string) <-chan Result {
	done := make(chan Result, 1)
	go func() { done <- c.Run(ctx, draft) }()
	return done
}

func awaitRecording(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == string(fsm.StateRecording)
	}, time.Second, 5*time.Millisecond)
}

func awaitResult(t *testing.T, done <-chan Result) Result {
	t.Helper()
	select {
	case result := <-done:
		return result
	case <-time.After(2 * time.Second):
		t.Fatal("controller run did not finish")
		return Result{}
	}
}

func TestControllerStopDispatchesAndCommits(t *testing.T) {
	dispatcher := &fakeDispatcher{transcript: "Hello world"}
	p, device := newTestPipeline(t, dispatcher, nil)
	ind := &recordingIndicator{}

	var committed string
	c := NewController(nil, p, CommitFunc(func(_ context.Context, draft string) error {
		committed = draft
		return nil
	}), ind)

	done := runAsync(c, context.Background(), "Why is the sky blue?")
	awaitRecording(t, c)
	device.last().push([]byte("pcm"))

	status := c.Handle(context.Background(), ipc.Request{Command: "status"})
	require.True(t, status.OK)
	require.Equal(t, "recording", status.State)

	resp := c.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.True(t, resp.OK, resp.Error)

	result := awaitResult(t, done)
	require.NoError(t, result.Err)
	require.False(t, result.Cancelled)
	require.Equal(t, fsm.StateStopped, result.State)
	require.Equal(t, "Why is the sky blue? Hello world", result.Draft)
	require.Equal(t, "Why is the sky blue? Hello world", committed)
	require.Equal(t, "audio/wav", result.MIMEType)
	require.Equal(t, 1, dispatcher.callCount())

	events := ind.snapshot()
	require.Equal(t, "requesting", events[0])
	require.Contains(t, events, "transcribing")
	require.Equal(t, "hide", events[len(events)-1])
	require.Equal(t, "idle", c.State())
}

func TestControllerCancelSkipsDispatch(t *testing.T) {
	dispatcher := &fakeDispatcher{transcript: "unused"}
	p, _ := newTestPipeline(t, dispatcher, nil)
	c := NewController(nil, p, nil, nil)

	done := runAsync(c, context.Background(), "Draft")
	awaitRecording(t, c)

	resp := c.Handle(context.Background(), ipc.Request{Command: "cancel"})
	require.True(t, resp.OK, resp.Error)

	result := awaitResult(t, done)
	require.True(t, result.Cancelled)
	require.NoError(t, result.Err)
	require.Equal(t, "Draft", result.Draft)
	require.Zero(t, dispatcher.callCount())
}

func TestControllerContextCancelTearsDown(t *testing.T) {
	dispatcher := &fakeDispatcher{transcript: "unused"}
	p, _ := newTestPipeline(t, dispatcher, nil)
	c := NewController(nil, p, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(c, ctx, "Draft")
	awaitRecording(t, c)
	cancel()

	result := awaitResult(t, done)
	require.ErrorIs(t, result.Err, context.Canceled)
	require.Equal(t, "Draft", result.Draft)
	require.Zero(t, dispatcher.callCount())

	next, err := p.Start(context.Background())
	require.NoError(t, err)
	p.Cancel(next)
}

func TestControllerDispatchFailureKeepsDraft(t *testing.T) {
	dispatcher := &fakeDispatcher{err: &failure.Error{Kind: failure.ServerError, Detail: "Audio too long"}}
	p, _ := newTestPipeline(t, dispatcher, nil)
	ind := &recordingIndicator{}
	commits := 0
	c := NewController(nil, p, CommitFunc(func(context.Context, string) error {
		commits++
		return nil
	}), ind)

	done := runAsync(c, context.Background(), "Draft")
	awaitRecording(t, c)
	require.NoError(t, c.RequestStop())

	result := awaitResult(t, done)
	require.Equal(t, failure.ServerError, failure.KindOf(result.Err))
	require.Equal(t, "Draft", result.Draft)
	require.Zero(t, commits)
	require.Len(t, ind.errs, 1)
}

func TestControllerCommitFailure(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeDispatcher{transcript: "text"}, nil)
	c := NewController(nil, p, CommitFunc(func(context.Context, string) error {
		return errors.New("disk full")
	}), nil)

	done := runAsync(c, context.Background(), "")
	awaitRecording(t, c)
	require.NoError(t, c.RequestStop())

	result := awaitResult(t, done)
	require.ErrorContains(t, result.Err, "commit draft")
	require.Equal(t, "text", result.Draft)
}

func TestControllerBlockedCapabilityNeverStarts(t *testing.T) {
	p, device := newTestPipeline(t, &fakeDispatcher{}, func(_ *config.Config, deps *Dependencies) {
		deps.Environment = capability.Static{LegacyAPI: true}
	})
	c := NewController(nil, p, nil, nil)

	result := c.Run(context.Background(), "Draft")
	require.Equal(t, failure.LegacyAPIOnly, failure.KindOf(result.Err))
	require.Equal(t, fsm.StateIdle, result.State)
	require.Empty(t, device.streams)
}

func TestControllerRejectsCommandsOutsideRecording(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeDispatcher{}, nil)
	c := NewController(nil, p, nil, nil)

	resp := c.Handle(context.Background(), ipc.Request{Command: "stop"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "cannot stop from state idle")

	resp = c.Handle(context.Background(), ipc.Request{Command: "toggle"})
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "unknown command")
	require.Error(t, c.RequestStop())
}
