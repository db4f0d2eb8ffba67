package tts

import (
	"context"
	"fmt"
	"log/slog"

	"stubot/internal/config"
)

// NewProvider creates the TTS provider selected by cfg. It returns a nil
// Provider when synthesis is disabled.
func NewProvider(ctx context.Context, cfg config.TTS, logger *slog.Logger) (Provider, error) {
	switch cfg.Provider {
	case config.TTSGoogle:
		if IsGoogleAPIKey(cfg.GoogleKeyFile) {
			logger.Info("creating Google TTS provider with API key")
		} else {
			logger.Info("creating Google TTS provider", "project", cfg.GoogleProjectID)
		}
		p, err := NewGoogleProvider(ctx, cfg.GoogleProjectID, cfg.GoogleKeyFile, cfg.GoogleEndpoint, logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	case config.TTSOpenAI:
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		logger.Info("creating OpenAI TTS provider", "model", cfg.OpenAIModel, "voice", cfg.OpenAIVoice)
		return NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAIVoice), nil
	case config.TTSNone:
		logger.Info("speech synthesis disabled")
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported TTS provider: %s. Supported: google, openai, none", cfg.Provider)
	}
}
