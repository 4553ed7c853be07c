// Package codec negotiates the capture encoding from ordered preference lists.
package codec

import (
	"fmt"
	"strings"

	"github.com/rbright/askvoice/internal/failure"
)

// AgentClass is a coarse runtime classification selecting a preference list.
type AgentClass string

const (
	AgentDefault AgentClass = "default"
	// AgentNarrowVendor covers runtimes known to encode a narrower set of types.
	AgentNarrowVendor AgentClass = "narrow-vendor"
)

// Choice is one negotiated (mime type, agent class) pair.
type Choice struct {
	MIMEType string
	Agent    AgentClass
}

// SupportTable answers "is this MIME type encodable" for the platform.
type SupportTable interface {
	Supports(mimeType string) bool
}

// SupportFunc adapts a function to SupportTable.
type SupportFunc func(string) bool

func (f SupportFunc) Supports(mimeType string) bool {
	return f(mimeType)
}

// StaticSupport is a fixed set of encodable MIME types.
type StaticSupport map[string]bool

func (s StaticSupport) Supports(mimeType string) bool {
	return s[mimeType]
}

var (
	defaultPreferences = []string{
		"audio/webm;codecs=opus",
		"audio/webm",
		"audio/mp4",
		"audio/ogg;codecs=opus",
		"audio/wav",
	}
	narrowVendorPreferences = []string{
		"audio/mp4",
		"audio/aac",
		"audio/wav",
	}
)

// Preferences returns a copy of the ordered preference list for agent.
func Preferences(agent AgentClass) []string {
	var list []string
	switch agent {
	case AgentNarrowVendor:
		list = narrowVendorPreferences
	default:
		list = defaultPreferences
	}
	return append([]string(nil), list...)
}

// Negotiate returns the first entry of agent's list that support reports as
// encodable. Exhausting the list is a CodecUnsupported failure; there is no
// fallback codec.
func Negotiate(agent AgentClass, support SupportTable) (Choice, error) {
	if agent == "" {
		agent = AgentDefault
	}
	prefs := Preferences(agent)
	if support != nil {
		for _, mimeType := range prefs {
			if support.Supports(mimeType) {
				return Choice{MIMEType: mimeType, Agent: agent}, nil
			}
		}
	}
	return Choice{}, failure.Newf(failure.CodecUnsupported, "none of %d %s preferences are encodable", len(prefs), agent)
}

// ParseAgentClass validates a configured agent class.
func ParseAgentClass(raw string) (AgentClass, error) {
	switch AgentClass(strings.ToLower(strings.TrimSpace(raw))) {
	case "", AgentDefault:
		return AgentDefault, nil
	case AgentNarrowVendor, "narrow":
		return AgentNarrowVendor, nil
	default:
		return "", fmt.Errorf("unknown agent class %q (want default or narrow-vendor)", raw)
	}
}

// BaseType strips parameters: "audio/webm;codecs=opus" -> "audio/webm".
func (c Choice) BaseType() string {
	base, _, _ := strings.Cut(c.MIMEType, ";")
	return strings.TrimSpace(base)
}

// Extension is the file extension for the encoded container, without a dot.
func (c Choice) Extension() string {
	switch c.BaseType() {
	case "audio/webm":
		return "webm"
	case "audio/mp4":
		return "m4a"
	case "audio/ogg":
		return "ogg"
	case "audio/aac":
		return "aac"
	case "audio/wav":
		return "wav"
	default:
		return "bin"
	}
}

// Filename is the upload filename hint derived from the codec.
func (c Choice) Filename() string {
	return "recording." + c.Extension()
}
