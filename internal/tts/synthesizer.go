package tts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"stubot/internal/model"
)

// ArtifactSaver persists audio under a freshly generated artifact name.
type ArtifactSaver interface {
	Save(kind model.ArtifactKind, data []byte) (string, error)
}

// Synthesizer renders text with a Provider and stores the audio as an artifact.
type Synthesizer struct {
	provider Provider
	store    ArtifactSaver
	language string
	logger   *slog.Logger
}

func NewSynthesizer(provider Provider, store ArtifactSaver, language string, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{
		provider: provider,
		store:    store,
		language: language,
		logger:   logger.With("component", "tts", "provider", provider.Name()),
	}
}

// Synthesize returns the filename of the stored artifact. Provider failures are
// reported as *SynthesisError, storage failures as *storage.StorageError.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, kind model.ArtifactKind) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &SynthesisError{Provider: s.provider.Name(), Err: errors.New("empty text")}
	}

	start := time.Now()
	audio, err := s.provider.Synthesize(ctx, text, s.language)
	if err != nil {
		var serr *SynthesisError
		if errors.As(err, &serr) {
			return "", err
		}
		return "", &SynthesisError{Provider: s.provider.Name(), Err: err}
	}
	if len(audio) == 0 {
		return "", &SynthesisError{Provider: s.provider.Name(), Err: errors.New("provider returned no audio")}
	}

	filename, err := s.store.Save(kind, audio)
	if err != nil {
		return "", err
	}

	s.logger.Debug("speech synthesized",
		"kind", kind, "filename", filename, "bytes", len(audio), "duration", time.Since(start))
	return filename, nil
}
