package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rbright/askvoice/internal/capability"
	"github.com/rbright/askvoice/internal/codec"
)

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)
	t := cfg.Transcription

	mode := strings.ToLower(strings.TrimSpace(t.Mode))
	if mode != ModeSimulated && mode != ModeProduction {
		return nil, fmt.Errorf("transcription.mode must be one of: simulated, production")
	}
	if mode == ModeProduction {
		endpoint := strings.TrimSpace(t.Endpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("transcription.endpoint must not be empty when transcription.mode=production")
		}
		u, err := url.Parse(endpoint)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("transcription.endpoint %q must be an http(s) URL", endpoint)
		}
		if !capability.IsSecureOrigin(endpoint) {
			warnings = append(warnings, Warning{Message: fmt.Sprintf("transcription.endpoint %q is not https or loopback; capture will be blocked", endpoint)})
		}
		if strings.TrimSpace(t.CredentialEnv) == "" {
			warnings = append(warnings, Warning{Message: "transcription.credential_env is empty; requests will be sent without a bearer token"})
		}
	}
	if t.TimeoutMS <= 0 {
		return nil, fmt.Errorf("transcription.timeout_ms must be > 0")
	}
	if t.SimulatedDelayMS < 0 {
		return nil, fmt.Errorf("transcription.simulated_delay_ms must be >= 0")
	}

	if _, err := codec.ParseAgentClass(cfg.Capture.AgentClass); err != nil {
		return nil, fmt.Errorf("capture.agent_class: %w", err)
	}
	if cfg.Capture.IntervalMS <= 0 {
		return nil, fmt.Errorf("capture.interval_ms must be > 0")
	}
	if cfg.Capture.SampleRate <= 0 {
		return nil, fmt.Errorf("capture.sample_rate must be > 0")
	}

	if cfg.Output.Clipboard.Raw != "" && len(cfg.Output.Clipboard.Argv) == 0 {
		return nil, fmt.Errorf("output.clipboard_cmd is configured but empty")
	}

	if strings.TrimSpace(cfg.Events.NATSURL) != "" && strings.TrimSpace(cfg.Events.Subject) == "" {
		return nil, fmt.Errorf("events.subject must not be empty when events.nats_url is set")
	}

	if !logLevels[strings.ToLower(strings.TrimSpace(cfg.Log.Level))] {
		return nil, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}

	return warnings, nil
}
