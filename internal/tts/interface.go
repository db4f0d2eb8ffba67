// Package tts turns reply text into stored audio artifacts.
package tts

import (
	"context"
	"fmt"
)

// Provider defines the interface for text-to-speech backends
type Provider interface {
	// Synthesize converts text spoken in language (a BCP-47 tag) into encoded audio
	Synthesize(ctx context.Context, text, language string) ([]byte, error)

	// Name returns the name of the provider (e.g., "google", "openai")
	Name() string
}

// SynthesisError reports a failed call to a speech synthesis backend.
type SynthesisError struct {
	Provider string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("%s speech synthesis failed: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
