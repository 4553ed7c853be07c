// Package pipeline wires capability probing, recording sessions, and
// transcription dispatch into one voice-input flow for a calling view.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rbright/askvoice/internal/audio"
	"github.com/rbright/askvoice/internal/capability"
	"github.com/rbright/askvoice/internal/codec"
	"github.com/rbright/askvoice/internal/config"
	"github.com/rbright/askvoice/internal/events"
	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/fsm"
	"github.com/rbright/askvoice/internal/logging"
	"github.com/rbright/askvoice/internal/session"
	"github.com/rbright/askvoice/internal/telemetry"
	"github.com/rbright/askvoice/internal/timer"
	"github.com/rbright/askvoice/internal/transcribe"
)

// Dependencies are the platform and backend collaborators of a Pipeline.
// Zero fields are filled from config by New.
type Dependencies struct {
	Environment capability.Environment
	Device      session.Device
	Support     codec.SupportTable
	Assembler   session.Assembler
	Dispatcher  transcribe.Dispatcher
	Ticks       timer.TickSource
	Events      *events.Publisher
	Telemetry   *telemetry.Recorder
	// Credential overrides the configured credential lookup.
	Credential func() string
	// DumpDir receives debug audio artifacts; empty uses the state dir.
	DumpDir string
}

// Outcome is the result of finishing one session.
type Outcome struct {
	Draft      string
	Transcript string
	Artifact   session.Artifact
	Dispatch   time.Duration
}

// Pipeline is the surface the calling view talks to. The capability
// descriptor is probed once; every Start creates a fresh session.
type Pipeline struct {
	cfg        config.Config
	logger     *slog.Logger
	deps       Dependencies
	agent      codec.AgentClass
	gate       *session.Gate
	descriptor capability.Descriptor

	mu      sync.Mutex
	current *session.Session
}

// New probes the environment and constructs a pipeline.
func New(cfg config.Config, logger *slog.Logger, deps Dependencies) (*Pipeline, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	agent, err := codec.ParseAgentClass(cfg.Capture.AgentClass)
	if err != nil {
		return nil, err
	}

	rate := cfg.Capture.SampleRate
	if deps.Environment == nil {
		deps.Environment = audio.Environment{
			Endpoint:  cfg.Transcription.Endpoint,
			Simulated: cfg.Transcription.Simulated(),
		}
	}
	if deps.Device == nil {
		deps.Device = audio.PulseDevice{
			Input:      cfg.Capture.Input,
			Fallback:   cfg.Capture.Fallback,
			SampleRate: rate,
			Logger:     logger,
		}
	}
	if deps.Support == nil {
		deps.Support = audio.Support
	}
	if deps.Assembler == nil {
		deps.Assembler = audio.WAVAssembler{SampleRate: rate}
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewDispatcher(cfg.Transcription, logger)
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Noop()
	}
	if deps.Credential == nil {
		deps.Credential = cfg.Transcription.Credential
	}

	return &Pipeline{
		cfg:        cfg,
		logger:     logger,
		deps:       deps,
		agent:      agent,
		gate:       session.NewGate(),
		descriptor: capability.Probe(deps.Environment),
	}, nil
}

// NewDispatcher selects the simulated or HTTP dispatcher for cfg.
func NewDispatcher(cfg config.TranscriptionConfig, logger *slog.Logger) transcribe.Dispatcher {
	if cfg.Simulated() {
		return transcribe.Simulated{Delay: cfg.SimulatedDelay(), Placeholder: cfg.Placeholder}
	}
	return transcribe.HTTP{
		Endpoint: cfg.Endpoint,
		Client:   &http.Client{},
		Timeout:  cfg.Timeout(),
		Logger:   logger,
	}
}

// Descriptor returns the capability snapshot taken at construction.
func (p *Pipeline) Descriptor() capability.Descriptor {
	return p.descriptor
}

// Negotiate reports the codec a session on this pipeline would record with.
func (p *Pipeline) Negotiate() (codec.Choice, error) {
	return codec.Negotiate(p.agent, p.deps.Support)
}

// Start creates and starts a fresh session. A failed session is returned
// alongside its tagged error so callers can inspect it.
func (p *Pipeline) Start(ctx context.Context) (*session.Session, error) {
	sess := session.New(session.Options{
		Descriptor:    p.descriptor,
		Agent:         p.agent,
		Support:       p.deps.Support,
		Device:        p.deps.Device,
		Gate:          p.gate,
		Assembler:     p.deps.Assembler,
		ChunkInterval: p.cfg.Capture.Interval(),
		Ticks:         p.deps.Ticks,
		Observer:      p.observer(),
		Logger:        p.logger,
	})

	p.mu.Lock()
	prev := p.current
	if prev == nil || fsm.Terminal(prev.State()) {
		p.current = sess
	}
	p.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		return sess, err
	}
	return sess, nil
}

// Current returns the most recent session, or nil before the first Start.
func (p *Pipeline) Current() *session.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// State reports the current session state; idle when there is none.
func (p *Pipeline) State() fsm.State {
	if sess := p.Current(); sess != nil {
		return sess.State()
	}
	return fsm.StateIdle
}

// Elapsed reports the current session's elapsed recording seconds.
func (p *Pipeline) Elapsed() int {
	if sess := p.Current(); sess != nil {
		return sess.Elapsed()
	}
	return 0
}

// Finish stops sess, dispatches its artifact, and merges the transcript into
// draft. The session is disposed whatever the outcome. On failure the
// returned draft equals the input draft.
func (p *Pipeline) Finish(ctx context.Context, sess *session.Session, draft string) (Outcome, error) {
	defer sess.Dispose()

	artifact, err := p.stop(ctx, sess)
	if err != nil {
		return Outcome{Draft: draft}, err
	}
	p.deps.Telemetry.RecordArtifact(artifact)
	p.dumpArtifact(artifact)

	started := time.Now()
	merged, transcript, err := transcribe.Apply(ctx, p.deps.Dispatcher, draft, artifact, p.deps.Credential())
	took := time.Since(started)
	p.deps.Telemetry.RecordDispatch(took, err)
	p.deps.Events.Transcribed(sess.ID(), transcript, err)

	outcome := Outcome{Draft: merged, Transcript: transcript, Artifact: artifact, Dispatch: took}
	if err != nil {
		p.logger.Warn("transcription failed",
			"session_id", sess.ID(),
			"failure", failure.KindOf(err),
			"error", err.Error(),
			"duration_ms", took.Milliseconds(),
		)
		return outcome, err
	}
	p.logger.Info("transcription complete",
		"session_id", sess.ID(),
		"transcript_length", len(transcript),
		"artifact_bytes", artifact.Size(),
		"duration_ms", took.Milliseconds(),
	)
	return outcome, nil
}

// Cancel tears sess down without dispatching.
func (p *Pipeline) Cancel(sess *session.Session) {
	if sess != nil {
		sess.Dispose()
	}
}

// stop returns the session artifact. A session that already left Recording
// on its own (stream end, teardown) is waited on instead.
func (p *Pipeline) stop(ctx context.Context, sess *session.Session) (session.Artifact, error) {
	artifact, err := sess.Stop(ctx)
	if err == nil {
		return artifact, nil
	}
	if !errors.Is(err, session.ErrNotRecording) {
		return session.Artifact{}, err
	}

	select {
	case <-sess.Done():
	case <-ctx.Done():
		return session.Artifact{}, failure.New(failure.DeviceError, ctx.Err())
	}
	if artifact, ok := sess.Artifact(); ok {
		return artifact, nil
	}
	if sessErr := sess.Err(); sessErr != nil {
		return session.Artifact{}, sessErr
	}
	return session.Artifact{}, fmt.Errorf("session %s ended in state %s: %w", sess.ID(), sess.State(), session.ErrNotRecording)
}

func (p *Pipeline) observer() session.Observer {
	return session.ObserverFunc(func(tr session.Transition) {
		p.deps.Telemetry.Observe(tr)
		p.deps.Events.Observe(tr)
	})
}

// dumpArtifact writes the artifact to the debug directory when
// debug.audio_dump is enabled.
func (p *Pipeline) dumpArtifact(artifact session.Artifact) {
	if !p.cfg.Debug.AudioDump || artifact.Size() == 0 {
		return
	}
	dir := p.deps.DumpDir
	if dir == "" {
		stateDir, err := logging.StateDir()
		if err != nil {
			p.logger.Warn("unable to resolve debug dir", "error", err.Error())
			return
		}
		dir = filepath.Join(stateDir, "debug")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		p.logger.Warn("unable to create debug dir", "error", err.Error())
		return
	}

	ext := filepath.Ext(artifact.Filename)
	name := fmt.Sprintf("audio-%s-%s%s", time.Now().Format("20060102-150405.000"), artifact.SessionID, ext)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, artifact.Data, 0o600); err != nil {
		p.logger.Warn("unable to write debug audio dump", "error", err.Error())
		return
	}
	p.logger.Debug("debug audio dump written", "path", path, "bytes", artifact.Size())
}
