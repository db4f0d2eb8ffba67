package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type TTSProvider string

const (
	TTSGoogle TTSProvider = "google"
	TTSOpenAI TTSProvider = "openai"
	TTSNone   TTSProvider = "none"
)

// MinSweepAge is the smallest AUDIO_SWEEP_MIN_AGE accepted. Younger artifacts
// may belong to an exchange that has not been logged yet.
const MinSweepAge = 5 * time.Minute

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// NLU backend (Rasa REST channel)
	NLUURL string `env:"NLU_URL" envDefault:"http://localhost:5005/webhooks/rest/webhook"`

	// Storage
	AudioDir       string `env:"AUDIO_DIR" envDefault:"static/audio"`
	AudioURLPrefix string `env:"AUDIO_URL_PREFIX" envDefault:"/static/audio"`
	DatabasePath   string `env:"DATABASE_PATH" envDefault:"data/chatbot_logs.db"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"26214400"`

	TTS TTS

	// Optional integrations
	RedisURL      string        `env:"REDIS_URL"`
	EventsChannel string        `env:"EXCHANGE_EVENTS_CHANNEL" envDefault:"exchange:events"`
	SweepSchedule string        `env:"AUDIO_SWEEP_SCHEDULE"`
	SweepMinAge   time.Duration `env:"AUDIO_SWEEP_MIN_AGE" envDefault:"24h"`
	AdminToken    string        `env:"ADMIN_TOKEN"`
}

// TTS selects and configures the speech synthesis backend.
type TTS struct {
	Provider TTSProvider `env:"TTS_PROVIDER" envDefault:"google"`
	Language string      `env:"TTS_LANGUAGE" envDefault:"en-US"`

	GoogleProjectID string `env:"GOOGLE_TTS_PROJECT_ID"`
	GoogleKeyFile   string `env:"GOOGLE_TTS_KEY_FILE"`
	GoogleEndpoint  string `env:"GOOGLE_TTS_ENDPOINT" envDefault:"https://texttospeech.googleapis.com"`

	OpenAIKey     string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIModel   string `env:"OPENAI_TTS_MODEL" envDefault:"tts-1"`
	OpenAIVoice   string `env:"OPENAI_TTS_VOICE" envDefault:"alloy"`
}

// Load parses configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.NLUURL) == "" {
		return fmt.Errorf("NLU_URL is required")
	}
	if strings.TrimSpace(c.AudioDir) == "" {
		return fmt.Errorf("AUDIO_DIR is required")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}

	if c.SweepSchedule != "" && c.SweepMinAge < MinSweepAge {
		return fmt.Errorf("AUDIO_SWEEP_MIN_AGE must be at least %s, got %s", MinSweepAge, c.SweepMinAge)
	}

	c.TTS.Provider = TTSProvider(strings.ToLower(string(c.TTS.Provider)))
	switch c.TTS.Provider {
	case TTSGoogle:
		// API key, key file, JSON string or default credentials are all accepted;
		// the provider resolves them at construction time.
	case TTSOpenAI:
		if c.TTS.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when TTS_PROVIDER=openai")
		}
	case TTSNone:
	default:
		return fmt.Errorf("unsupported TTS provider: %s. Supported: google, openai, none", c.TTS.Provider)
	}
	return nil
}
