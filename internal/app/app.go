// Package app maps CLI commands onto the voice-input pipeline and maps
// outcomes onto exit codes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/rbright/askvoice/internal/audio"
	"github.com/rbright/askvoice/internal/cli"
	"github.com/rbright/askvoice/internal/config"
	"github.com/rbright/askvoice/internal/doctor"
	"github.com/rbright/askvoice/internal/events"
	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/indicator"
	"github.com/rbright/askvoice/internal/ipc"
	"github.com/rbright/askvoice/internal/logging"
	"github.com/rbright/askvoice/internal/output"
	"github.com/rbright/askvoice/internal/pipeline"
	"github.com/rbright/askvoice/internal/telemetry"
)

const (
	forwardTimeout = 220 * time.Millisecond
	probeTimeout   = 180 * time.Millisecond
)

var errNoActiveSession = errors.New("no active askvoice session")

// reportedError has already been shown to the user; only the exit code is
// left to emit.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// Runner executes askvoice commands. The collaborator fields are optional
// overrides of the PulseAudio host.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger

	Pipeline     pipeline.Dependencies
	DoctorProbes doctor.Probes
	ListSources  func(context.Context) ([]audio.Source, error)
}

var _ cli.Handlers = (*Runner)(nil)

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := &Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

// Execute runs args and returns the process exit code: 0 ok, 1 runtime
// failure, 2 usage error.
func (r *Runner) Execute(ctx context.Context, args []string) int {
	root := cli.NewRootCmd(&cli.Dependencies{Handlers: r})
	root.SetArgs(args)
	root.SetOut(r.Stdout)
	root.SetErr(r.Stderr)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case cli.IsUsage(err):
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, root.UsageString())
		return 2
	default:
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
		}
		return 1
	}
}

// env is the per-command runtime: loaded config plus logger.
type env struct {
	loaded config.Loaded
	logger *slog.Logger
	close  func()
}

func (r *Runner) bootstrap(configPath string, command string) (env, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return env{}, err
	}

	logger := r.Logger
	closeFn := func() {}
	if logger == nil {
		logRuntime, err := logging.New(loaded.Config.Log.Level)
		if err != nil {
			return env{}, fmt.Errorf("setup logging: %w", err)
		}
		logger = logRuntime.Logger
		closeFn = func() { _ = logRuntime.Close() }
	}

	for _, w := range loaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}
	logger.Info("command start", "command", command, "config", loaded.Path)
	if effective, err := config.Marshal(loaded.Config); err == nil {
		logger.Debug("effective config", "yaml", string(effective))
	}

	return env{loaded: loaded, logger: logger, close: closeFn}, nil
}

func (r *Runner) Ask(ctx context.Context, configPath string, opts cli.AskOptions) error {
	e, err := r.bootstrap(configPath, "ask")
	if err != nil {
		return err
	}
	defer e.close()
	cfg := e.loaded.Config
	logger := e.logger

	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}
	listener, err := ipc.Acquire(ctx, socketPath, probeTimeout, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return failure.New(failure.SessionActive, err)
		}
		return err
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	recorder := telemetry.Noop()
	if cfg.Debug.Metrics {
		if recorder, err = telemetry.New(); err != nil {
			return fmt.Errorf("setup metrics: %w", err)
		}
		defer func() { _ = recorder.Shutdown(context.Background()) }()
	}

	publisher, err := events.Connect(ctx, cfg.Events, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: lifecycle events disabled: %v\n", err)
		logger.Warn("events disabled", "error", err.Error())
	}
	defer publisher.Close()

	deps := r.Pipeline
	deps.Events = publisher
	deps.Telemetry = recorder
	p, err := pipeline.New(cfg, logger, deps)
	if err != nil {
		return err
	}

	draftPath := opts.DraftPath
	if draftPath == "" {
		draftPath = cfg.Output.DraftPath
	}
	draft, err := output.ReadDraft(draftPath)
	if err != nil {
		return err
	}

	committer := output.NewCommitter(cfg.Output, logger)
	controller := pipeline.NewController(
		logger,
		p,
		pipeline.CommitFunc(func(ctx context.Context, merged string) error {
			return committer.Commit(ctx, draftPath, merged)
		}),
		indicator.NewTerminal(r.Stderr),
	)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	stopSignals := interruptToStop(controller, cancelRun, logger)
	defer stopSignals()

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller, logger)
	}()

	result := controller.Run(runCtx, draft)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		return fmt.Errorf("ipc server failed: %w", serverErr)
	}

	logSessionResult(logger, result)
	if cfg.Debug.Metrics {
		r.printMetrics(ctx, recorder)
	}

	switch {
	case result.Cancelled:
		fmt.Fprintln(r.Stdout, "cancelled")
		return nil
	case result.Err != nil:
		return reportedError{err: result.Err}
	}
	fmt.Fprintln(r.Stdout, result.Draft)
	return nil
}

// interruptToStop turns the first Ctrl+C into a stop request; a second one,
// or one outside recording, cancels the run.
func interruptToStop(controller *pipeline.Controller, cancel context.CancelFunc, logger *slog.Logger) func() {
	signals := make(chan os.Signal, 2)
	signal.Notify(signals, os.Interrupt)
	done := make(chan struct{})

	go func() {
		stopped := false
		for {
			select {
			case <-done:
				return
			case <-signals:
				if !stopped {
					stopped = true
					err := controller.RequestStop()
					if err == nil {
						continue
					}
					logger.Debug("interrupt outside recording", "error", err.Error())
				}
				cancel()
			}
		}
	}()

	return func() {
		signal.Stop(signals)
		close(done)
	}
}

func (r *Runner) Stop(ctx context.Context, _ string) error {
	return r.forwardOrFail(ctx, ipc.CommandStop)
}

func (r *Runner) Cancel(ctx context.Context, _ string) error {
	return r.forwardOrFail(ctx, ipc.CommandCancel)
}

func (r *Runner) Status(ctx context.Context, _ string) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, ipc.CommandStatus, forwardTimeout)
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return nil
	}
	if err != nil {
		return err
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	if resp.State == "recording" {
		fmt.Fprintf(r.Stdout, "%s %s\n", resp.State, indicator.FormatElapsed(resp.Elapsed))
		return nil
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return nil
}

func (r *Runner) Probe(_ context.Context, configPath string) error {
	e, err := r.bootstrap(configPath, "probe")
	if err != nil {
		return err
	}
	defer e.close()

	p, err := pipeline.New(e.loaded.Config, e.logger, r.Pipeline)
	if err != nil {
		return err
	}
	d := p.Descriptor()
	fmt.Fprintf(r.Stdout, "capture_api=%s secure_context=%s legacy_only=%s\n",
		yesNo(d.HasCaptureAPI), yesNo(d.IsSecureContext), yesNo(d.HasLegacyAPIOnly))

	if err := d.Err(); err != nil {
		fmt.Fprintf(r.Stdout, "blocked: %s\n", indicator.ErrorText(err, ""))
		return reportedError{err: err}
	}
	choice, err := p.Negotiate()
	if err != nil {
		fmt.Fprintf(r.Stdout, "codec: %s\n", indicator.ErrorText(err, ""))
		return reportedError{err: err}
	}
	fmt.Fprintf(r.Stdout, "codec=%s filename=%s\n", choice.MIMEType, choice.Filename())
	return nil
}

func (r *Runner) Devices(ctx context.Context, configPath string) error {
	e, err := r.bootstrap(configPath, "devices")
	if err != nil {
		return err
	}
	defer e.close()

	list := r.ListSources
	if list == nil {
		list = audio.ListSources
	}
	sources, err := list(ctx)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		fmt.Fprintln(r.Stdout, "no audio input sources found")
		return reportedError{err: errors.New("no audio input sources")}
	}

	for _, src := range sources {
		defaultMark := " "
		if src.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			src.ID,
			src.Description,
			src.State,
			yesNo(src.Available),
			yesNo(src.Muted),
		)
	}
	return nil
}

func (r *Runner) Doctor(ctx context.Context, configPath string) error {
	e, err := r.bootstrap(configPath, "doctor")
	if err != nil {
		return err
	}
	defer e.close()

	report := doctor.Run(ctx, e.loaded, r.DoctorProbes)
	fmt.Fprintln(r.Stdout, report.String())
	if !report.OK() {
		return reportedError{err: errors.New("doctor checks failed")}
	}
	return nil
}

func (r *Runner) forwardOrFail(ctx context.Context, command string) error {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return err
	}

	resp, handled, err := ipc.Forward(ctx, socketPath, command, forwardTimeout)
	if !handled {
		return errNoActiveSession
	}
	if err != nil {
		return err
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return nil
}

func (r *Runner) printMetrics(ctx context.Context, recorder *telemetry.Recorder) {
	snap, err := recorder.Snapshot(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "warning: read metrics: %v\n", err)
		return
	}
	keys := make([]string, 0, len(snap))
	for key := range snap {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(r.Stderr, "metric %s %d\n", key, snap[key])
	}
}

func logSessionResult(logger *slog.Logger, result pipeline.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"session_id", result.SessionID,
		"state", result.State,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"elapsed_s", result.Elapsed,
		"mime_type", result.MIMEType,
		"artifact_bytes", result.Bytes,
		"transcript_length", len(strings.TrimSpace(result.Transcript)),
		"dispatch_ms", result.Dispatch.Milliseconds(),
	}

	if result.Err != nil {
		fields = append(fields, "failure", failure.KindOf(result.Err), "error", result.Err.Error())
		logger.Error("session failed", fields...)
		return
	}
	logger.Info("session complete", fields...)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
