package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rbright/askvoice/internal/capability"
	"github.com/rbright/askvoice/internal/codec"
	"github.com/rbright/askvoice/internal/failure"
	"github.com/stretchr/testify/require"
)

func writeCards(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cards")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestEnvironmentLegacyOnlyWhenNoSoundServer(t *testing.T) {
	env := Environment{
		Endpoint:  "https://api.example.com/transcribe",
		CardsPath: writeCards(t, " 0 [PCH            ]: HDA-Intel - HDA Intel PCH\n"),
		Dial:      func() error { return errors.New("no server") },
	}

	d := capability.Probe(env)
	require.False(t, d.HasCaptureAPI)
	require.True(t, d.HasLegacyAPIOnly)
	kind, blocked := d.Failure()
	require.True(t, blocked)
	require.Equal(t, failure.LegacyAPIOnly, kind)
}

func TestEnvironmentUnsupportedWithoutCards(t *testing.T) {
	env := Environment{
		CardsPath: writeCards(t, "--- no soundcards ---\n"),
		Dial:      func() error { return errors.New("no server") },
	}

	kind, blocked := capability.Probe(env).Failure()
	require.True(t, blocked)
	require.Equal(t, failure.DeviceUnsupported, kind)
}

func TestEnvironmentMissingCardsFile(t *testing.T) {
	env := Environment{CardsPath: filepath.Join(t.TempDir(), "missing")}
	require.False(t, env.HasLegacyAPI())
}

func TestEnvironmentSecureContext(t *testing.T) {
	up := func() error { return nil }

	require.True(t, capability.Probe(Environment{Dial: up, Endpoint: "https://api.example.com"}).CanCapture())
	require.True(t, capability.Probe(Environment{Dial: up, Endpoint: "http://localhost:8080"}).CanCapture())
	require.True(t, capability.Probe(Environment{Dial: up, Simulated: true}).CanCapture())

	d := capability.Probe(Environment{Dial: up, Endpoint: "http://api.example.com"})
	kind, blocked := d.Failure()
	require.True(t, blocked)
	require.Equal(t, failure.InsecureContext, kind)
}

func TestSupportNegotiatesWAVForEveryAgent(t *testing.T) {
	for _, agent := range []codec.AgentClass{codec.AgentDefault, codec.AgentNarrowVendor} {
		choice, err := codec.Negotiate(agent, Support)
		require.NoError(t, err)
		require.Equal(t, "audio/wav", choice.MIMEType)
		require.Equal(t, agent, choice.Agent)
	}
	require.False(t, Support.Supports("audio/webm"))
}
