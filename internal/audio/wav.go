package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/rbright/askvoice/internal/codec"
)

// WAVAssembler joins s16le mono PCM chunks into one WAV artifact. It
// implements session.Assembler.
type WAVAssembler struct {
	SampleRate int
	// TempDir holds the intermediate file; empty uses os.TempDir.
	TempDir string
}

func (a WAVAssembler) Assemble(choice codec.Choice, chunks [][]byte) ([]byte, error) {
	if choice.BaseType() != wavMIMEType {
		return nil, fmt.Errorf("wav assembler cannot produce %q", choice.MIMEType)
	}
	rate := a.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	file, err := os.CreateTemp(a.TempDir, "askvoice_*.wav")
	if err != nil {
		return nil, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := encodeWAV(file, joinPCM(chunks), rate); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file.Name())
	if err != nil {
		return nil, fmt.Errorf("read wav artifact: %w", err)
	}
	return data, nil
}

// encodeWAV writes 16-bit mono pcm to file as a WAV container.
func encodeWAV(file *os.File, pcm []byte, sampleRate int) error {
	if len(pcm)%bytesPerSample != 0 {
		return fmt.Errorf("pcm payload not aligned: %d bytes", len(pcm))
	}

	samples := make([]int, len(pcm)/bytesPerSample)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:])))
	}
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}

	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

func joinPCM(chunks [][]byte) []byte {
	total := 0
	for _, chunk := range chunks {
		total += len(chunk)
	}
	out := make([]byte, 0, total)
	for _, chunk := range chunks {
		out = append(out, chunk...)
	}
	return out
}
