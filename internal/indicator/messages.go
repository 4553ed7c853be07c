package indicator

import (
	"os"
	"strings"
)

type messages struct {
	requesting string
	recording  string
	stopHint   string
	processing string
	errorText  string
}

var unicodeMessages = messages{
	requesting: "Requesting microphone access…",
	recording:  "● Recording",
	stopHint:   "(askvoice stop or Ctrl+C to finish)",
	processing: "Transcribing…",
	errorText:  "Something went wrong. Please try again.",
}

var asciiMessages = messages{
	requesting: "Requesting microphone access...",
	recording:  "* Recording",
	stopHint:   unicodeMessages.stopHint,
	processing: "Transcribing...",
	errorText:  unicodeMessages.errorText,
}

func messagesFromEnv() messages {
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		if value := os.Getenv(key); value != "" {
			return messagesFor(value)
		}
	}
	return messagesFor("")
}

// messagesFor drops the ellipsis and bullet glyphs for locales that are
// explicitly not UTF-8 (C, POSIX, *.ISO-8859-1).
func messagesFor(locale string) messages {
	locale = strings.ToLower(strings.TrimSpace(locale))
	switch {
	case locale == "":
		return unicodeMessages
	case strings.Contains(locale, "utf-8"), strings.Contains(locale, "utf8"):
		return unicodeMessages
	default:
		return asciiMessages
	}
}
