// Package session owns one voice capture attempt: access request, capture,
// chunk accumulation, stop, and artifact assembly.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/askvoice/internal/capability"
	"github.com/rbright/askvoice/internal/codec"
	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/fsm"
	"github.com/rbright/askvoice/internal/timer"
)

var (
	// ErrNotRecording is returned by Stop outside the recording state; the
	// session is left unchanged.
	ErrNotRecording = errors.New("session is not recording")
	// ErrAlreadyStarted indicates Start was called on a used session.
	ErrAlreadyStarted = errors.New("session already started; create a new session")
	// ErrDisposed indicates the session was torn down while acquiring access.
	ErrDisposed = errors.New("session disposed")
)

const defaultChunkInterval = time.Second

// Transition is one observed state change.
type Transition struct {
	SessionID string
	From      fsm.State
	To        fsm.State
	Err       error
	At        time.Time
}

// Observer receives every session transition, outside the session lock.
type Observer interface {
	Observe(Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Transition)

func (f ObserverFunc) Observe(t Transition) {
	f(t)
}

// Options wires one session to its collaborators.
type Options struct {
	Descriptor capability.Descriptor
	Agent      codec.AgentClass
	Support    codec.SupportTable
	Device     Device
	Gate       *Gate
	Assembler  Assembler
	// ChunkInterval is the data-available period requested from the stream.
	ChunkInterval time.Duration
	Ticks         timer.TickSource
	Observer      Observer
	Logger        *slog.Logger
}

// Session is the state machine for one capture attempt. A Session is never
// reused: every start creates a fresh one.
type Session struct {
	id        string
	opts      Options
	gate      *Gate
	assembler Assembler
	timer     *timer.Service
	elapsed   atomic.Int64

	mu          sync.Mutex
	state       fsm.State
	codec       codec.Choice
	chunks      [][]byte
	artifact    *Artifact
	err         error
	stream      Stream
	releaseOnce *sync.Once
	releaseGate func()
	pumpDone    chan struct{}
	stopping    chan struct{}
	disposed    bool

	done     chan struct{}
	doneOnce sync.Once
}

// New constructs an idle session.
func New(opts Options) *Session {
	if opts.ChunkInterval <= 0 {
		opts.ChunkInterval = defaultChunkInterval
	}
	gate := opts.Gate
	if gate == nil {
		gate = NewGate()
	}
	assembler := opts.Assembler
	if assembler == nil {
		assembler = ConcatAssembler
	}

	return &Session{
		id:          uuid.NewString(),
		opts:        opts,
		gate:        gate,
		assembler:   assembler,
		timer:       timer.New(opts.Ticks),
		state:       fsm.StateIdle,
		releaseOnce: &sync.Once{},
		done:        make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state snapshot.
func (s *Session) State() fsm.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Elapsed returns whole seconds spent recording.
func (s *Session) Elapsed() int {
	return int(s.elapsed.Load())
}

// Codec returns the negotiated codec; zero before Recording.
func (s *Session) Codec() codec.Choice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codec
}

// ChunkCount returns the number of accumulated chunks.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

// Chunks returns a copy of the accumulated chunks in emission order.
func (s *Session) Chunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// Artifact returns the assembled artifact once the session is Stopped.
func (s *Session) Artifact() (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.artifact == nil {
		return Artifact{}, false
	}
	return *s.artifact, true
}

// Err returns the failure that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session reaches a terminal state or is disposed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// TimerRunning reports whether the elapsed ticker is active.
func (s *Session) TimerRunning() bool {
	return s.timer.Running()
}

// Start requests device access, negotiates the codec, and begins recording.
// Cancelling ctx after Start returns tears the session down through the stop
// path so the capture stream is always released.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != fsm.StateIdle || s.disposed {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if err := s.opts.Descriptor.Err(); err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	release, ok := s.gate.Acquire(s.id)
	if !ok {
		holder := s.gate.Holder()
		s.mu.Unlock()
		return s.fail(failure.Newf(failure.SessionActive, "session %s holds the capture device", holder))
	}
	s.releaseGate = release
	tr, err := s.transitionLocked(fsm.EventStart, nil)
	s.mu.Unlock()
	if err != nil {
		release()
		return err
	}
	s.emit(tr)

	if s.opts.Device == nil {
		return s.fail(failure.Newf(failure.DeviceUnsupported, "no capture device configured"))
	}
	stream, err := s.opts.Device.Acquire(ctx)
	if err != nil {
		return s.fail(deviceFailure(err))
	}

	s.mu.Lock()
	disposed := s.disposed
	s.stream = stream
	s.mu.Unlock()
	if disposed {
		return s.fail(failure.New(failure.DeviceError, ErrDisposed))
	}

	choice, err := codec.Negotiate(s.opts.Agent, s.opts.Support)
	if err != nil {
		return s.fail(err)
	}

	data, err := stream.Record(choice, s.opts.ChunkInterval)
	if err != nil {
		return s.fail(deviceFailure(err))
	}

	s.mu.Lock()
	if s.disposed || s.state != fsm.StateRequestingAccess {
		s.mu.Unlock()
		return s.fail(failure.New(failure.DeviceError, ErrDisposed))
	}
	s.codec = choice
	s.chunks = nil
	s.elapsed.Store(0)
	tr, err = s.transitionLocked(fsm.EventGranted, nil)
	if err != nil {
		s.mu.Unlock()
		return s.fail(err)
	}
	s.timer.Start(s.tick)
	pumpDone := make(chan struct{})
	s.pumpDone = pumpDone
	s.mu.Unlock()
	s.emit(tr)

	go s.pump(data, pumpDone)
	go s.watch(ctx)
	return nil
}

// Stop ends recording, waits for the terminal stop event, and assembles the
// artifact. Outside Recording it is a no-op returning ErrNotRecording.
func (s *Session) Stop(ctx context.Context) (Artifact, error) {
	s.mu.Lock()
	if s.state != fsm.StateRecording {
		s.mu.Unlock()
		return Artifact{}, ErrNotRecording
	}
	tr, err := s.transitionLocked(fsm.EventStop, nil)
	if err != nil {
		s.mu.Unlock()
		return Artifact{}, err
	}
	// onTick never takes s.mu, so stopping the timer under the lock is safe.
	s.timer.Stop()
	stream := s.stream
	pumpDone := s.pumpDone
	stopping := make(chan struct{})
	s.stopping = stopping
	s.mu.Unlock()
	defer close(stopping)
	s.emit(tr)

	if stopErr := stream.Stop(); stopErr != nil {
		s.logWarn("stream stop reported an error", "error", stopErr.Error())
	}

	select {
	case <-pumpDone:
	case <-ctx.Done():
		s.releaseStream()
		<-pumpDone
		return Artifact{}, s.fail(failure.New(failure.DeviceError, fmt.Errorf("wait for terminal stop event: %w", ctx.Err())))
	}

	s.mu.Lock()
	chunks := make([][]byte, len(s.chunks))
	copy(chunks, s.chunks)
	choice := s.codec
	s.mu.Unlock()

	data, err := s.assemble(choice, chunks)
	if err != nil {
		return Artifact{}, s.fail(failure.New(failure.AssemblyFailed, err))
	}

	artifact := Artifact{
		SessionID: s.id,
		MIMEType:  choice.MIMEType,
		Filename:  choice.Filename(),
		Data:      data,
		Chunks:    len(chunks),
		Elapsed:   s.Elapsed(),
	}

	s.mu.Lock()
	tr, err = s.transitionLocked(fsm.EventFinalize, nil)
	if err != nil {
		s.mu.Unlock()
		return Artifact{}, err
	}
	s.artifact = &artifact
	s.mu.Unlock()
	s.emit(tr)
	s.markDone()

	return artifact, nil
}

// Dispose releases every resource the session holds and clears its chunk
// buffer. A recording session is stopped first, and a stop already in
// flight (teardown, stream end) is waited for. Dispose is idempotent.
func (s *Session) Dispose() {
	if s.State() == fsm.StateRecording {
		if _, err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrNotRecording) {
			s.logWarn("stop during dispose failed", "error", err.Error())
		}
	}

	s.mu.Lock()
	s.disposed = true
	stopping := s.stopping
	s.mu.Unlock()
	if stopping != nil {
		<-stopping
	}

	s.mu.Lock()
	s.chunks = nil
	release := s.releaseGate
	s.mu.Unlock()

	s.timer.Stop()
	s.releaseStream()
	if release != nil {
		release()
	}
	s.markDone()
}

// assemble runs the assembler and releases the stream unconditionally, even
// when assembly fails or panics.
func (s *Session) assemble(choice codec.Choice, chunks [][]byte) (data []byte, err error) {
	defer s.releaseStream()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("assembler panic: %v", r)
		}
	}()
	return s.assembler.Assemble(choice, chunks)
}

// pump appends data-available chunks in emission order until the stream's
// terminal event closes data.
func (s *Session) pump(data <-chan []byte, done chan<- struct{}) {
	for chunk := range data {
		if len(chunk) == 0 {
			continue
		}
		s.mu.Lock()
		if s.state == fsm.StateRecording || s.state == fsm.StateStopping {
			s.chunks = append(s.chunks, append([]byte(nil), chunk...))
		}
		s.mu.Unlock()
	}
	close(done)

	// A stream that ends on its own (device unplugged, server gone) is
	// finalized like a user stop.
	if s.State() == fsm.StateRecording {
		if _, err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrNotRecording) {
			s.logWarn("finalize after stream end failed", "error", err.Error())
		}
	}
}

// watch maps caller teardown (ctx cancellation) onto the stop path.
func (s *Session) watch(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
		if _, err := s.Stop(context.Background()); err != nil && !errors.Is(err, ErrNotRecording) {
			s.logWarn("stop on teardown failed", "error", err.Error())
		}
	}
}

func (s *Session) tick() {
	s.elapsed.Add(1)
}

// fail moves the session to Failed and releases everything it holds.
func (s *Session) fail(cause error) error {
	s.mu.Lock()
	if fsm.Terminal(s.state) {
		s.mu.Unlock()
		return cause
	}
	tr, err := s.transitionLocked(fsm.EventFail, cause)
	if err != nil {
		s.mu.Unlock()
		return errors.Join(cause, err)
	}
	s.err = cause
	release := s.releaseGate
	s.mu.Unlock()

	s.timer.Stop()
	s.releaseStream()
	if release != nil {
		release()
	}
	s.emit(tr)
	s.markDone()
	return cause
}

func (s *Session) releaseStream() {
	s.mu.Lock()
	stream := s.stream
	once := s.releaseOnce
	s.mu.Unlock()
	if stream == nil {
		return
	}
	once.Do(stream.Release)
}

func (s *Session) transitionLocked(event fsm.Event, cause error) (Transition, error) {
	next, err := fsm.Transition(s.state, event)
	if err != nil {
		return Transition{}, err
	}
	tr := Transition{SessionID: s.id, From: s.state, To: next, Err: cause, At: time.Now()}
	s.state = next
	return tr, nil
}

func (s *Session) emit(tr Transition) {
	if s.opts.Logger != nil {
		fields := []any{"session_id", tr.SessionID, "from", tr.From, "to", tr.To}
		if tr.Err != nil {
			fields = append(fields, "failure", failure.KindOf(tr.Err), "error", tr.Err.Error())
			s.opts.Logger.Warn("session transition", fields...)
		} else {
			s.opts.Logger.Debug("session transition", fields...)
		}
	}
	if s.opts.Observer != nil {
		s.opts.Observer.Observe(tr)
	}
}

func (s *Session) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) logWarn(msg string, args ...any) {
	if s.opts.Logger == nil {
		return
	}
	s.opts.Logger.Warn(msg, append([]any{"session_id", s.id}, args...)...)
}

// deviceFailure tags an untagged device-layer error as a generic device failure.
func deviceFailure(err error) error {
	if failure.KindOf(err) != "" {
		return err
	}
	return failure.New(failure.DeviceError, err)
}
