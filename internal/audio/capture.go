package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/rbright/askvoice/internal/codec"
	"github.com/rbright/askvoice/internal/failure"
	"github.com/rbright/askvoice/internal/session"
)

const (
	DefaultSampleRate = 16000
	bytesPerSample    = 2
	fragmentBytes     = 640 // 20ms @ 16kHz mono s16
)

// PulseDevice opens record streams on the selected Pulse source. It
// implements session.Device.
type PulseDevice struct {
	Input      string
	Fallback   string
	SampleRate int
	Logger     *slog.Logger
}

// Acquire connects to the sound server and resolves the capture source. It is
// the permission step of a session: errors are tagged failure values.
func (d PulseDevice) Acquire(ctx context.Context) (session.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure.New(failure.DeviceError, err)
	}

	client, err := newClient()
	if err != nil {
		return nil, classifyPulseError(err)
	}

	sources, err := listSources(client)
	if err != nil {
		client.Close()
		return nil, classifyPulseError(err)
	}
	selection, err := selectSource(sources, d.Input, d.Fallback)
	if err != nil {
		client.Close()
		return nil, err
	}
	if selection.Warning != "" && d.Logger != nil {
		d.Logger.Warn("capture source fallback", "warning", selection.Warning, "source", selection.Source.ID)
	}

	source, err := client.SourceByID(selection.Source.ID)
	if err != nil {
		client.Close()
		return nil, classifyPulseError(fmt.Errorf("resolve source %q: %w", selection.Source.ID, err))
	}

	rate := d.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	return &pulseStream{
		client:     client,
		source:     source,
		info:       selection.Source,
		sampleRate: rate,
		releaseCh:  make(chan struct{}),
	}, nil
}

// pulseStream delivers interval-sized PCM chunks from one record stream.
type pulseStream struct {
	client     *pulse.Client
	source     *pulse.Source
	info       Source
	sampleRate int

	record *pulse.RecordStream
	chunks chan []byte
	// releaseCh closes when Release starts; blocked sends give up then.
	releaseCh chan struct{}

	mu        sync.Mutex
	chunkSize int
	pending   []byte
	stopped   bool
	released  bool
	closed    bool
	inflight  sync.WaitGroup

	releaseOnce sync.Once
}

// Record starts a mono s16 stream. Only raw PCM in a WAV container is
// encodable on Pulse.
func (p *pulseStream) Record(choice codec.Choice, interval time.Duration) (<-chan []byte, error) {
	if !strings.EqualFold(choice.BaseType(), wavMIMEType) {
		return nil, failure.Newf(failure.CodecUnsupported, "pulse capture cannot encode %q", choice.MIMEType)
	}
	if interval <= 0 {
		interval = time.Second
	}

	p.mu.Lock()
	p.chunkSize = chunkBytes(p.sampleRate, interval)
	p.chunks = make(chan []byte, 16)
	p.mu.Unlock()

	if p.client == nil {
		return p.chunks, nil
	}

	writer := pulse.NewWriter(writerFunc(p.onPCM), pulseproto.FormatInt16LE)
	stream, err := p.client.NewRecord(
		writer,
		pulse.RecordSource(p.source),
		pulse.RecordMono,
		pulse.RecordSampleRate(p.sampleRate),
		pulse.RecordBufferFragmentSize(fragmentBytes),
		pulse.RecordMediaName("askvoice question"),
	)
	if err != nil {
		return nil, classifyPulseError(fmt.Errorf("create pulse record stream: %w", err))
	}
	p.record = stream
	stream.Start()
	return p.chunks, nil
}

// Stop halts the record stream, delivers residual PCM as the final chunk, and
// closes the chunk channel. The consumer must keep draining until close.
func (p *pulseStream) Stop() error {
	if !p.markStopped() {
		return nil
	}
	if p.record != nil {
		p.record.Stop()
	}
	p.inflight.Wait()

	p.mu.Lock()
	if p.released || p.closed {
		p.mu.Unlock()
		return nil
	}
	p.inflight.Add(1)
	tail := p.pending
	p.pending = nil
	chunks := p.chunks
	p.mu.Unlock()

	if len(tail) > 0 {
		p.send(chunks, tail)
	}

	p.mu.Lock()
	p.closeChunksLocked()
	p.mu.Unlock()
	p.inflight.Done()
	return nil
}

// Release closes the record stream and the server connection.
func (p *pulseStream) Release() {
	p.releaseOnce.Do(func() {
		p.mu.Lock()
		p.released = true
		close(p.releaseCh)
		p.mu.Unlock()

		stopping := p.markStopped()
		if p.record != nil {
			if stopping {
				p.record.Stop()
			}
			p.record.Close()
		}
		if p.client != nil {
			p.client.Close()
		}
		p.inflight.Wait()

		p.mu.Lock()
		p.closeChunksLocked()
		p.mu.Unlock()
	})
}

func (p *pulseStream) markStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.stopped = true
	return true
}

func (p *pulseStream) closeChunksLocked() {
	if p.closed || p.chunks == nil {
		return
	}
	p.closed = true
	close(p.chunks)
}

// onPCM receives raw Pulse frames and emits chunkSize slices.
func (p *pulseStream) onPCM(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return 0, io.EOF
	}
	// Add under the same mutex as p.stopped to avoid Add/Wait races.
	p.inflight.Add(1)
	defer p.inflight.Done()

	p.pending = append(p.pending, buffer...)
	var ready [][]byte
	for len(p.pending) >= p.chunkSize {
		chunk := make([]byte, p.chunkSize)
		copy(chunk, p.pending[:p.chunkSize])
		p.pending = p.pending[p.chunkSize:]
		ready = append(ready, chunk)
	}
	chunks := p.chunks
	p.mu.Unlock()

	for _, chunk := range ready {
		if !p.send(chunks, chunk) {
			return 0, io.EOF
		}
	}
	return len(buffer), nil
}

// send blocks until chunk is delivered or the stream is released.
func (p *pulseStream) send(chunks chan<- []byte, chunk []byte) bool {
	select {
	case chunks <- chunk:
		return true
	case <-p.releaseCh:
		return false
	}
}

func chunkBytes(sampleRate int, interval time.Duration) int {
	n := int(int64(sampleRate) * bytesPerSample * int64(interval) / int64(time.Second))
	if n < bytesPerSample {
		n = bytesPerSample
	}
	// Keep chunks sample-aligned.
	return n - n%bytesPerSample
}

// classifyPulseError maps sound-server errors to access failure kinds.
func classifyPulseError(err error) error {
	if err == nil || failure.KindOf(err) != "" {
		return err
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return failure.New(failure.PermissionDenied, err)
	case strings.Contains(msg, "no such entity"), strings.Contains(msg, "not found"):
		return failure.New(failure.DeviceNotFound, err)
	case strings.Contains(msg, "busy"), strings.Contains(msg, "in use"):
		return failure.New(failure.DeviceBusy, err)
	default:
		return failure.New(failure.DeviceError, err)
	}
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
