// Package doctor runs readiness diagnostics for config, capture capability,
// codec negotiation, device selection, and the transcription backend.
package doctor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/askvoice/internal/audio"
	"github.com/rbright/askvoice/internal/capability"
	"github.com/rbright/askvoice/internal/codec"
	"github.com/rbright/askvoice/internal/config"
	"github.com/rbright/askvoice/internal/events"
	"github.com/rbright/askvoice/internal/failure"
)

const endpointTimeout = 2 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// Probes are the live collaborators consulted by Run. Zero fields use the
// PulseAudio host and a default HTTP client.
type Probes struct {
	Environment capability.Environment
	Support     codec.SupportTable
	Select      func(ctx context.Context, input string, fallback string) (audio.Selection, error)
	HTTPClient  *http.Client
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		b.WriteString(fmt.Sprintf("[%s] %s: %s\n", status, check.Name, check.Message))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, probes Probes) Report {
	cfg := loaded.Config
	if probes.Environment == nil {
		probes.Environment = audio.Environment{Endpoint: cfg.Transcription.Endpoint, Simulated: cfg.Transcription.Simulated()}
	}
	if probes.Support == nil {
		probes.Support = audio.Support
	}
	if probes.Select == nil {
		probes.Select = audio.SelectSource
	}
	if probes.HTTPClient == nil {
		probes.HTTPClient = &http.Client{Timeout: endpointTimeout}
	}

	checks := []Check{checkConfig(loaded)}

	descriptor := capability.Probe(probes.Environment)
	checks = append(checks, checkCapability(descriptor))
	checks = append(checks, checkCodec(cfg.Capture.AgentClass, probes.Support))
	if descriptor.HasCaptureAPI {
		checks = append(checks, checkSourceSelection(ctx, cfg.Capture, probes.Select))
	}

	checks = append(checks, checkEndpoint(ctx, cfg.Transcription, probes.HTTPClient))
	if !cfg.Transcription.Simulated() {
		checks = append(checks, checkCredential(cfg.Transcription))
	}
	if len(cfg.Output.Clipboard.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Output.Clipboard.Argv, "clipboard_cmd"))
	}
	if strings.TrimSpace(cfg.Events.NATSURL) != "" {
		checks = append(checks, checkEvents(ctx, cfg.Events))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	if !loaded.Exists {
		return Check{Name: "config", Pass: true, Message: fmt.Sprintf("%q not found; using defaults", loaded.Path)}
	}
	return Check{Name: "config", Pass: true, Message: fmt.Sprintf("loaded %q", loaded.Path)}
}

// checkCapability reports the probed descriptor and, when blocked, the
// user-facing reason.
func checkCapability(d capability.Descriptor) Check {
	if kind, blocked := d.Failure(); blocked {
		return Check{Name: "capability", Pass: false, Message: fmt.Sprintf("%s: %s", kind, failure.Message(kind))}
	}
	return Check{Name: "capability", Pass: true, Message: "capture API present in a secure context"}
}

func checkCodec(agentClass string, support codec.SupportTable) Check {
	agent, err := codec.ParseAgentClass(agentClass)
	if err != nil {
		return Check{Name: "codec", Pass: false, Message: err.Error()}
	}
	choice, err := codec.Negotiate(agent, support)
	if err != nil {
		return Check{Name: "codec", Pass: false, Message: fmt.Sprintf("no supported encoding for agent class %q", agent)}
	}
	return Check{Name: "codec", Pass: true, Message: fmt.Sprintf("%s (upload as %s)", choice.MIMEType, choice.Filename())}
}

// checkSourceSelection runs live source selection to surface fallback issues.
func checkSourceSelection(
	ctx context.Context,
	cfg config.CaptureConfig,
	selectFn func(context.Context, string, string) (audio.Selection, error),
) Check {
	selection, err := selectFn(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "capture.source", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Source.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "capture.source", Pass: true, Message: message}
}

// checkEndpoint confirms the transcription origin answers. Any non-5xx
// response counts: the upload route usually rejects a bare GET.
func checkEndpoint(ctx context.Context, cfg config.TranscriptionConfig, client *http.Client) Check {
	if cfg.Simulated() {
		return Check{Name: "transcription", Pass: true, Message: "simulated mode; no network requests"}
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return Check{Name: "transcription", Pass: false, Message: "transcription.endpoint is empty"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Check{Name: "transcription", Pass: false, Message: fmt.Sprintf("invalid endpoint: %v", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Check{Name: "transcription", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 256))

	if resp.StatusCode >= http.StatusInternalServerError {
		return Check{Name: "transcription", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", resp.StatusCode, endpoint)}
	}
	return Check{Name: "transcription", Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", endpoint, resp.StatusCode)}
}

func checkCredential(cfg config.TranscriptionConfig) Check {
	name := strings.TrimSpace(cfg.CredentialEnv)
	if name == "" {
		return Check{Name: "credential", Pass: false, Message: "transcription.credential_env is empty"}
	}
	if cfg.Credential() == "" {
		return Check{Name: "credential", Pass: false, Message: fmt.Sprintf("%s is not set", name)}
	}
	return Check{Name: "credential", Pass: true, Message: fmt.Sprintf("%s is set", name)}
}

func checkEvents(ctx context.Context, cfg config.EventsConfig) Check {
	publisher, err := events.Connect(ctx, cfg, nil)
	if err != nil {
		return Check{Name: "events", Pass: false, Message: err.Error()}
	}
	publisher.Close()
	return Check{Name: "events", Pass: true, Message: fmt.Sprintf("connected to %s", cfg.NATSURL)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
