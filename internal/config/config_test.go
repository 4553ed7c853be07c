package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.True(t, Default().Transcription.Simulated())
	require.Equal(t, time.Second, Default().Capture.Interval())
	require.Equal(t, 2*time.Second, Default().Transcription.SimulatedDelay())
}

func TestParseYAMLOverridesDefaults(t *testing.T) {
	input := `
transcription:
  mode: production
  endpoint: https://api.example.com/api/transcribe
  credential_env: MY_TOKEN
  timeout_ms: 5000
capture:
  agent_class: narrow-vendor
  input: Elgato
  interval_ms: 500
output:
  draft_path: /tmp/draft.txt
  clipboard_cmd: wl-copy --type "text/plain"
events:
  nats_url: nats://127.0.0.1:4222
log:
  level: debug
`

	cfg, warnings, err := Parse(input, Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, ModeProduction, cfg.Transcription.Mode)
	require.Equal(t, "https://api.example.com/api/transcribe", cfg.Transcription.Endpoint)
	require.Equal(t, 5*time.Second, cfg.Transcription.Timeout())
	require.Equal(t, "narrow-vendor", cfg.Capture.AgentClass)
	require.Equal(t, "Elgato", cfg.Capture.Input)
	require.Equal(t, "default", cfg.Capture.Fallback)
	require.Equal(t, 16000, cfg.Capture.SampleRate)
	require.Equal(t, []string{"wl-copy", "--type", "text/plain"}, cfg.Output.Clipboard.Argv)
	require.Equal(t, "askvoice.session", cfg.Events.Subject)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestParseUnknownKeyFails(t *testing.T) {
	_, _, err := Parse("capture:\n  microphone: x\n", Default())
	require.Error(t, err)
	require.Contains(t, err.Error(), "microphone")
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("ASKVOICE_TRANSCRIPTION_MODE", "production")
	t.Setenv("ASKVOICE_TRANSCRIPTION_ENDPOINT", "http://localhost:8080/transcribe")
	t.Setenv("ASKVOICE_LOG_LEVEL", "warn")
	t.Setenv("ASKVOICE_DEBUG_METRICS", "true")

	cfg, _, err := Parse("", Default())
	require.NoError(t, err)
	require.Equal(t, ModeProduction, cfg.Transcription.Mode)
	require.Equal(t, "http://localhost:8080/transcribe", cfg.Transcription.Endpoint)
	require.Equal(t, "warn", cfg.Log.Level)
	require.True(t, cfg.Debug.Metrics)
}

func TestCredentialReadsConfiguredEnv(t *testing.T) {
	t.Setenv("MY_TOKEN", " secret ")
	require.Equal(t, "secret", TranscriptionConfig{CredentialEnv: "MY_TOKEN"}.Credential())
	require.Empty(t, TranscriptionConfig{}.Credential())
}

func TestParseArgv(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{name: "simple", input: "wl-copy --trim-newline", want: []string{"wl-copy", "--trim-newline"}},
		{name: "quoted spaces", input: `mycmd --name "hello world"`, want: []string{"mycmd", "--name", "hello world"}},
		{name: "single quote", input: `mycmd --name 'hello world'`, want: []string{"mycmd", "--name", "hello world"}},
		{name: "escaped space", input: `mycmd hello\ world`, want: []string{"mycmd", "hello world"}},
		{name: "leading comment", input: `# wl-copy --trim-newline`, want: nil},
		{name: "unterminated quote", input: `mycmd "oops`, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseArgv(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "unknown mode", mutate: func(c *Config) { c.Transcription.Mode = "live" }, wantErr: "transcription.mode"},
		{name: "production without endpoint", mutate: func(c *Config) { c.Transcription.Mode = ModeProduction }, wantErr: "transcription.endpoint"},
		{name: "production bad endpoint", mutate: func(c *Config) {
			c.Transcription.Mode = ModeProduction
			c.Transcription.Endpoint = "ftp://example.com"
		}, wantErr: "http(s) URL"},
		{name: "zero timeout", mutate: func(c *Config) { c.Transcription.TimeoutMS = 0 }, wantErr: "timeout_ms"},
		{name: "negative delay", mutate: func(c *Config) { c.Transcription.SimulatedDelayMS = -1 }, wantErr: "simulated_delay_ms"},
		{name: "unknown agent", mutate: func(c *Config) { c.Capture.AgentClass = "safari" }, wantErr: "capture.agent_class"},
		{name: "zero interval", mutate: func(c *Config) { c.Capture.IntervalMS = 0 }, wantErr: "interval_ms"},
		{name: "zero sample rate", mutate: func(c *Config) { c.Capture.SampleRate = 0 }, wantErr: "sample_rate"},
		{name: "clipboard raw without argv", mutate: func(c *Config) { c.Output.Clipboard = CommandConfig{Raw: "# nothing"} }, wantErr: "clipboard_cmd"},
		{name: "events without subject", mutate: func(c *Config) {
			c.Events.NATSURL = "nats://127.0.0.1:4222"
			c.Events.Subject = ""
		}, wantErr: "events.subject"},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: "log.level"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnsOnInsecureEndpoint(t *testing.T) {
	cfg := Default()
	cfg.Transcription.Mode = ModeProduction
	cfg.Transcription.Endpoint = "http://api.example.com/transcribe"

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0].Message, "capture will be blocked")
}

func TestResolvePathPrecedence(t *testing.T) {
	explicit := "/tmp/custom.yaml"
	resolved, err := ResolvePath(explicit)
	require.NoError(t, err)
	require.Equal(t, explicit, resolved)

	t.Setenv("ASKVOICE_CONFIG", "/etc/askvoice.yaml")
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, "/etc/askvoice.yaml", resolved)

	t.Setenv("ASKVOICE_CONFIG", "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(xdg, "askvoice", "config.yaml"), resolved)

	t.Setenv("XDG_CONFIG_HOME", "")
	home := t.TempDir()
	t.Setenv("HOME", home)
	resolved, err = ResolvePath("")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".config", "askvoice", "config.yaml"), resolved)
}

func TestLoadMissingConfigUsesDefaultsWithWarning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, path, loaded.Path)
	require.False(t, loaded.Exists)
	require.Equal(t, Default(), loaded.Config)
	require.NotEmpty(t, loaded.Warnings)
	require.Contains(t, loaded.Warnings[0].Message, "not found")
}

func TestLoadExistingYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture:\n  input: sony\n"), 0o600))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.True(t, loaded.Exists)
	require.Equal(t, "sony", loaded.Config.Capture.Input)
	require.Empty(t, loaded.Warnings)
}

func TestLoadParseErrorIncludesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("capture: [unclosed\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "parse config")
	require.Contains(t, err.Error(), path)
}

func TestMarshalRoundTripsClipboardCommand(t *testing.T) {
	cfg := Default()
	cfg.Output.Clipboard = CommandConfig{Raw: "wl-copy --trim-newline", Argv: []string{"wl-copy", "--trim-newline"}}

	out, err := Marshal(cfg)
	require.NoError(t, err)

	parsed, _, err := Parse(string(out), Default())
	require.NoError(t, err)
	require.Equal(t, cfg.Output.Clipboard, parsed.Output.Clipboard)
}
