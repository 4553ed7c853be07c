package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/fsm"
	"github.com/rbright/askvoice/internal/session"
	"github.com/stretchr/testify/require"
)

func TestRecorderCountsTransitionsAndFailures(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Shutdown(context.Background()) })

	r.Observe(session.Transition{To: fsm.StateRequestingAccess})
	r.Observe(session.Transition{To: fsm.StateRecording})
	r.Observe(session.Transition{To: fsm.StateFailed, Err: failure.New(failure.DeviceBusy, errors.New("busy"))})
	r.RecordArtifact(session.Artifact{Elapsed: 4})
	r.RecordDispatch(150*time.Millisecond, nil)
	r.RecordDispatch(2*time.Second, failure.New(failure.ServerError, nil))

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), snap["askvoice.session.transitions{to=requesting_access}"])
	require.Equal(t, int64(1), snap["askvoice.session.transitions{to=recording}"])
	require.Equal(t, int64(1), snap["askvoice.session.transitions{to=failed}"])
	require.Equal(t, int64(1), snap["askvoice.session.failures{kind=device_busy}"])
	require.Equal(t, int64(1), snap["askvoice.session.failures{kind=server_error}"])
	require.Equal(t, int64(1), snap["askvoice.transcription.requests{outcome=ok}"])
	require.Equal(t, int64(1), snap["askvoice.transcription.requests{outcome=error}"])
	require.Equal(t, int64(1), snap["askvoice.transcription.duration{outcome=ok}"])
	require.Equal(t, int64(1), snap["askvoice.recording.elapsed"])
}

func TestNoopRecorderDiscards(t *testing.T) {
	r := Noop()
	r.Observe(session.Transition{To: fsm.StateFailed})
	r.RecordDispatch(time.Second, nil)

	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	require.Nil(t, snap)
	require.NoError(t, r.Shutdown(context.Background()))
}
