package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parse decodes YAML content over base, applies ASKVOICE_* environment
// overrides, and validates the result. Unknown keys are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg := base
	if strings.TrimSpace(content) != "" {
		dec := yaml.NewDecoder(bytes.NewReader([]byte(content)))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, nil, err
		}
	}

	applyEnvOverrides(&cfg)

	warnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, warnings, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Transcription.Mode, "ASKVOICE_TRANSCRIPTION_MODE")
	overrideString(&cfg.Transcription.Endpoint, "ASKVOICE_TRANSCRIPTION_ENDPOINT")
	overrideInt(&cfg.Transcription.TimeoutMS, "ASKVOICE_TRANSCRIPTION_TIMEOUT_MS")
	overrideString(&cfg.Capture.AgentClass, "ASKVOICE_CAPTURE_AGENT_CLASS")
	overrideString(&cfg.Capture.Input, "ASKVOICE_CAPTURE_INPUT")
	overrideString(&cfg.Events.NATSURL, "ASKVOICE_EVENTS_NATS_URL")
	overrideString(&cfg.Log.Level, "ASKVOICE_LOG_LEVEL")
	overrideBool(&cfg.Debug.Metrics, "ASKVOICE_DEBUG_METRICS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			*target = parsed
		}
	}
}

// Marshal renders cfg as YAML.
func Marshal(cfg Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
