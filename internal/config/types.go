// Package config resolves, parses, validates, and defaults askvoice configuration.
package config

import (
	"os"
	"strings"
	"time"
)

const (
	ModeSimulated  = "simulated"
	ModeProduction = "production"
)

// Config is the fully materialized runtime configuration used by askvoice.
type Config struct {
	Transcription TranscriptionConfig `yaml:"transcription"`
	Capture       CaptureConfig       `yaml:"capture"`
	Output        OutputConfig        `yaml:"output"`
	Events        EventsConfig        `yaml:"events"`
	Log           LogConfig           `yaml:"log"`
	Debug         DebugConfig         `yaml:"debug"`
}

// TranscriptionConfig selects the dispatcher and its endpoint.
type TranscriptionConfig struct {
	Mode          string `yaml:"mode"`
	Endpoint      string `yaml:"endpoint"`
	CredentialEnv string `yaml:"credential_env"`
	TimeoutMS     int    `yaml:"timeout_ms"`
	// SimulatedDelayMS is the artificial latency of simulated mode.
	SimulatedDelayMS int    `yaml:"simulated_delay_ms"`
	Placeholder      string `yaml:"placeholder"`
}

// CaptureConfig controls codec negotiation and input-source selection.
type CaptureConfig struct {
	AgentClass string `yaml:"agent_class"`
	Input      string `yaml:"input"`
	Fallback   string `yaml:"fallback"`
	IntervalMS int    `yaml:"interval_ms"`
	SampleRate int    `yaml:"sample_rate"`
}

// OutputConfig controls where the merged draft goes.
type OutputConfig struct {
	DraftPath string        `yaml:"draft_path"`
	Clipboard CommandConfig `yaml:"clipboard_cmd"`
}

// EventsConfig controls session lifecycle publishing. An empty URL disables it.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// DebugConfig controls optional diagnostics output.
type DebugConfig struct {
	Metrics   bool `yaml:"metrics"`
	AudioDump bool `yaml:"audio_dump"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Message string
}

// Simulated reports whether transcription stays on the host.
func (t TranscriptionConfig) Simulated() bool {
	return strings.EqualFold(strings.TrimSpace(t.Mode), ModeSimulated)
}

// Credential reads the bearer token from the configured environment variable.
func (t TranscriptionConfig) Credential() string {
	if strings.TrimSpace(t.CredentialEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(t.CredentialEnv))
}

func (t TranscriptionConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMS) * time.Millisecond
}

func (t TranscriptionConfig) SimulatedDelay() time.Duration {
	return time.Duration(t.SimulatedDelayMS) * time.Millisecond
}

func (c CaptureConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}
