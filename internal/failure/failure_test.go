package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedError(t *testing.T) {
	cause := errors.New("access denied")
	err := fmt.Errorf("start session: %w", New(PermissionDenied, cause))

	require.Equal(t, PermissionDenied, KindOf(err))
	require.ErrorIs(t, err, cause)
	require.ErrorIs(t, err, &Error{Kind: PermissionDenied})
	require.NotErrorIs(t, err, &Error{Kind: DeviceBusy})
	require.True(t, Retryable(err))
}

func TestKindOfUntagged(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
	require.Equal(t, Kind(""), KindOf(nil))
	require.False(t, Retryable(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	require.Equal(t, "codec_unsupported", (&Error{Kind: CodecUnsupported}).Error())
	require.Equal(t, "server_error: quota exceeded", (&Error{Kind: ServerError, Detail: "quota exceeded"}).Error())
	require.Equal(t, "network_failure: dial tcp: refused", Newf(NetworkFailure, "dial tcp: %s", "refused").Error())
}

func TestMessageEveryKindHasTailoredText(t *testing.T) {
	kinds := []Kind{
		DeviceUnsupported, LegacyAPIOnly, InsecureContext,
		PermissionDenied, DeviceNotFound, DeviceBusy, DeviceError,
		SessionActive, CodecUnsupported, AssemblyFailed,
		NetworkFailure, ServerError, MalformedResponse,
	}
	seen := map[string]Kind{}
	for _, kind := range kinds {
		msg := Message(kind)
		require.NotEmpty(t, msg, kind)
		prev, dup := seen[msg]
		require.False(t, dup, "%s shares a message with %s", kind, prev)
		seen[msg] = kind
	}
}

func TestServerErrorMessagePrefersDetail(t *testing.T) {
	err := &Error{Kind: ServerError, Detail: "Audio too long"}
	require.Equal(t, "Audio too long", err.Message())
	require.Equal(t, Message(ServerError), (&Error{Kind: ServerError}).Message())
}
