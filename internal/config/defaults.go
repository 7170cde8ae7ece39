package config

const (
	defaultStateDir   = "~/.local/share/reel"
	defaultStorageDir = "~/.local/share/reel/storage"
	defaultScratchDir = "~/.local/share/reel/scratch"
	defaultLogDir     = "~/.local/share/reel/logs"
	defaultAPIBind    = "127.0.0.1:7319"

	defaultTranscriberBaseURL        = "https://api.openai.com/v1/audio/transcriptions"
	defaultTranscriberModel          = "whisper-1"
	defaultTranscriberTimeoutSeconds = 300

	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMTitle          = "Reel Journal Tagger"
	defaultLLMTimeoutSeconds = 60

	defaultSubscriberBuffer       = 10
	defaultKeepaliveSeconds       = 30
	defaultCompletionGraceSeconds = 2
	defaultShutdownGraceSeconds   = 10

	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			StorageDir: defaultStorageDir,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Transcriber: Transcriber{
			BaseURL:        defaultTranscriberBaseURL,
			Model:          defaultTranscriberModel,
			TimeoutSeconds: defaultTranscriberTimeoutSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Workflow: Workflow{
			SubscriberBuffer:       defaultSubscriberBuffer,
			KeepaliveSeconds:       defaultKeepaliveSeconds,
			CompletionGraceSeconds: defaultCompletionGraceSeconds,
			ShutdownGraceSeconds:   defaultShutdownGraceSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
