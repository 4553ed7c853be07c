package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Transcription: TranscriptionConfig{
			Mode:             ModeSimulated,
			CredentialEnv:    "ASKVOICE_TOKEN",
			TimeoutMS:        30000,
			SimulatedDelayMS: 2000,
		},
		Capture: CaptureConfig{
			AgentClass: "default",
			Input:      "default",
			Fallback:   "default",
			IntervalMS: 1000,
			SampleRate: 16000,
		},
		Events: EventsConfig{
			Subject: "askvoice.session",
		},
		Log: LogConfig{Level: "info"},
	}
}
