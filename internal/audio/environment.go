package audio

import (
	"bufio"
	"os"
	"strings"

	"github.com/rbright/askvoice/internal/capability"
	"github.com/rbright/askvoice/internal/codec"
)

const (
	wavMIMEType   = "audio/wav"
	alsaCardsPath = "/proc/asound/cards"
	noCardsMarker = "--- no soundcards ---"
)

// Environment answers capability queries for a Pulse host.
type Environment struct {
	// Endpoint is the transcription origin checked for a secure context.
	Endpoint string
	// Simulated transcription never leaves the host and is always secure.
	Simulated bool
	// CardsPath overrides the ALSA card list location.
	CardsPath string
	// Dial overrides the sound-server reachability check.
	Dial func() error
}

var _ capability.Environment = Environment{}

// HasCaptureAPI reports whether a Pulse-compatible server answers.
func (e Environment) HasCaptureAPI() bool {
	dial := e.Dial
	if dial == nil {
		dial = dialPulse
	}
	return dial() == nil
}

// HasLegacyAPI reports whether raw ALSA cards exist without a sound server.
func (e Environment) HasLegacyAPI() bool {
	path := e.CardsPath
	if path == "" {
		path = alsaCardsPath
	}
	return hasALSACards(path)
}

// IsSecureContext reports whether captured audio only travels to a secure
// origin.
func (e Environment) IsSecureContext() bool {
	if e.Simulated {
		return true
	}
	return capability.IsSecureOrigin(e.Endpoint)
}

func dialPulse() error {
	client, err := newClient()
	if err != nil {
		return err
	}
	client.Close()
	return nil
}

func hasALSACards(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == noCardsMarker {
			continue
		}
		return true
	}
	return false
}

// Support is the Pulse codec support table: record streams deliver raw PCM,
// which is only encodable as WAV.
var Support = codec.SupportFunc(func(mimeType string) bool {
	return strings.EqualFold(mimeType, wavMIMEType)
})
