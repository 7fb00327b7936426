package config

// Config holds rollscan configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Extraction   ExtractionCfg   `mapstructure:"extraction" yaml:"extraction"`
	Orchestrator OrchestratorCfg `mapstructure:"orchestrator" yaml:"orchestrator"`
	Server       ServerCfg       `mapstructure:"server" yaml:"server"`
}

// ExtractionCfg configures the AI extraction provider.
type ExtractionCfg struct {
	Provider string `mapstructure:"provider" yaml:"provider"` // "gemini", "mock"
	Model    string `mapstructure:"model" yaml:"model"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)

	// RateLimit is the provider quota in requests per minute.
	RateLimit int `mapstructure:"rate_limit" yaml:"rate_limit"`

	// MaxPagesPerCall bounds the page range of one extraction call.
	MaxPagesPerCall int `mapstructure:"max_pages_per_call" yaml:"max_pages_per_call"`

	// MaxRetries is the per-segment retry budget after the first attempt.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries"`

	// CallTimeoutSeconds is the per-call deadline.
	CallTimeoutSeconds int `mapstructure:"call_timeout_seconds" yaml:"call_timeout_seconds"`

	// UploadTimeoutSeconds bounds the one-time document upload.
	UploadTimeoutSeconds int `mapstructure:"upload_timeout_seconds" yaml:"upload_timeout_seconds"`

	PromptVersion string `mapstructure:"prompt_version" yaml:"prompt_version"`
}

// OrchestratorCfg tunes the extraction worker pool.
type OrchestratorCfg struct {
	// Workers bounds concurrent extraction calls.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// HeartbeatSeconds is the in-flight attempt heartbeat interval.
	HeartbeatSeconds int `mapstructure:"heartbeat_seconds" yaml:"heartbeat_seconds"`

	// StaleAfterSeconds is the heartbeat age past which an attempt is
	// considered abandoned on resume.
	StaleAfterSeconds int `mapstructure:"stale_after_seconds" yaml:"stale_after_seconds"`
}

// ServerCfg configures the HTTP API.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Extraction: ExtractionCfg{
			Provider:             "gemini",
			Model:                "gemini-2.5-pro",
			APIKey:               "${GEMINI_API_KEY}",
			RateLimit:            60,
			MaxPagesPerCall:      8,
			MaxRetries:           3,
			CallTimeoutSeconds:   300,
			UploadTimeoutSeconds: 120,
			PromptVersion:        "v1",
		},
		Orchestrator: OrchestratorCfg{
			Workers:           4,
			HeartbeatSeconds:  15,
			StaleAfterSeconds: 90,
		},
		Server: ServerCfg{
			Host: "127.0.0.1",
			Port: 8090,
		},
	}
}
