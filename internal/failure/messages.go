package failure

var messages = map[Kind]string{
	DeviceUnsupported: "Audio recording is not supported in this environment. Please try typing your question.",
	LegacyAPIOnly:     "Only a legacy audio capture interface was detected, which is not supported. Please try typing your question.",
	InsecureContext:   "Audio recording requires HTTPS or localhost. Please use a secure connection.",
	PermissionDenied:  "Microphone access denied. Please allow microphone permissions and try again.",
	DeviceNotFound:    "No microphone found. Please connect a microphone and try again.",
	DeviceBusy:        "Microphone is already in use by another application. Please close other apps using the microphone.",
	DeviceError:       "Could not access microphone. Please check permissions and try again.",
	SessionActive:     "A recording is already in progress. Stop it before starting a new one.",
	CodecUnsupported:  "No supported audio format is available for recording. Please try typing your question.",
	AssemblyFailed:    "The recording could not be prepared. Please try recording again.",
	NetworkFailure:    "Network error while transcribing. Please check your connection and try again.",
	ServerError:       "Failed to transcribe audio. Please try again.",
	MalformedResponse: "The transcription service returned an unexpected response. Please try again.",
}

// Message returns the tailored user message for kind.
func Message(kind Kind) string {
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}
