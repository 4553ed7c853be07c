package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/session"
	"github.com/stretchr/testify/require"
)

var testArtifact = session.Artifact{
	SessionID: "s-1",
	MIMEType:  "audio/wav",
	Filename:  "recording.wav",
	Data:      []byte("RIFF....WAVE"),
	Chunks:    1,
}

func TestMerge(t *testing.T) {
	require.Equal(t, "Why is the sky blue? Hello world", Merge("Why is the sky blue?", "Hello world"))
	require.Equal(t, "Hello world", Merge("", "Hello world"))
	require.Equal(t, "draft", Merge("draft", ""))
	require.Equal(t, "", Merge("", ""))
}

func TestApplyAppendsOnSuccess(t *testing.T) {
	d := Simulated{Placeholder: "Hello world"}

	draft, transcript, err := Apply(context.Background(), d, "Why is the sky blue?", testArtifact, "")
	require.NoError(t, err)
	require.Equal(t, "Hello world", transcript)
	require.Equal(t, "Why is the sky blue? Hello world", draft)
}

type failingDispatcher struct{ err error }

func (f failingDispatcher) Dispatch(context.Context, session.Artifact, string) (string, error) {
	return "", f.err
}

func TestApplyLeavesDraftUnchangedOnFailure(t *testing.T) {
	original := "  keep me exactly  "
	draft, transcript, err := Apply(context.Background(), failingDispatcher{err: failure.New(failure.NetworkFailure, errors.New("offline"))}, original, testArtifact, "tok")
	require.Error(t, err)
	require.Empty(t, transcript)
	require.Equal(t, original, draft)
}

func TestSimulatedReturnsPlaceholderAfterDelay(t *testing.T) {
	started := time.Now()
	text, err := Simulated{Delay: 20 * time.Millisecond}.Dispatch(context.Background(), testArtifact, "")
	require.NoError(t, err)
	require.Equal(t, DefaultPlaceholder, text)
	require.GreaterOrEqual(t, time.Since(started), 20*time.Millisecond)
}

func TestSimulatedHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Simulated{Delay: time.Hour}.Dispatch(ctx, testArtifact, "")
	require.Equal(t, failure.NetworkFailure, failure.KindOf(err))
}

func TestHTTPDispatchSendsMultipartWithBearer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))

		file, header, err := r.FormFile("audio")
		require.NoError(t, err)
		defer file.Close()
		require.Equal(t, "recording.wav", header.Filename)
		require.Equal(t, "audio/wav", header.Header.Get("Content-Type"))
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		require.Equal(t, testArtifact.Data, data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transcription":" Hello world "}`))
	}))
	defer server.Close()

	text, err := HTTP{Endpoint: server.URL}.Dispatch(context.Background(), testArtifact, "secret-token")
	require.NoError(t, err)
	require.Equal(t, "Hello world", text)
}

func TestHTTPDispatchFailureKinds(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   failure.Kind
		wantDetail string
	}{
		{name: "server message", status: http.StatusInternalServerError, body: `{"message":"quota exceeded"}`, wantKind: failure.ServerError, wantDetail: "quota exceeded"},
		{name: "server error field", status: http.StatusBadRequest, body: `{"error":"bad audio"}`, wantKind: failure.ServerError, wantDetail: "bad audio"},
		{name: "status fallback", status: http.StatusBadGateway, body: `<html>oops</html>`, wantKind: failure.ServerError, wantDetail: "Failed to transcribe audio (Status: 502)"},
		{name: "not json", status: http.StatusOK, body: `<html>ok</html>`, wantKind: failure.MalformedResponse},
		{name: "missing field", status: http.StatusOK, body: `{"text":"hi"}`, wantKind: failure.MalformedResponse},
		{name: "wrong type", status: http.StatusOK, body: `{"transcription":42}`, wantKind: failure.MalformedResponse},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer server.Close()

			_, err := HTTP{Endpoint: server.URL}.Dispatch(context.Background(), testArtifact, "tok")
			require.Error(t, err)
			require.Equal(t, tc.wantKind, failure.KindOf(err))

			if tc.wantDetail != "" {
				var tagged *failure.Error
				require.ErrorAs(t, err, &tagged)
				require.Equal(t, tc.wantDetail, tagged.Message())
			}
		})
	}
}

func TestHTTPDispatchNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	_, err := HTTP{Endpoint: endpoint}.Dispatch(context.Background(), testArtifact, "tok")
	require.Equal(t, failure.NetworkFailure, failure.KindOf(err))
}

func TestHTTPDispatchTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	_, err := HTTP{Endpoint: server.URL, Timeout: 20 * time.Millisecond}.Dispatch(context.Background(), testArtifact, "tok")
	require.Equal(t, failure.NetworkFailure, failure.KindOf(err))
}
