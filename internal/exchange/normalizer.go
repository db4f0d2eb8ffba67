// Package exchange runs one user utterance through the NLU backend and speech
// synthesis, and records the result in the conversation log.
package exchange

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"stubot/internal/metrics"
	"stubot/internal/model"
)

// ErrInvalidInput rejects a request that carries neither text nor audio.
var ErrInvalidInput = errors.New("no message provided")

// Request is a raw exchange submission.
type Request struct {
	UserID     string
	Message    string
	VoiceAudio []byte
}

// NormalizedInput is a Request reconciled into one canonical shape.
type NormalizedInput struct {
	UserID    string
	Text      string
	UserAudio *string
}

// ArtifactStore stores and removes audio artifacts.
type ArtifactStore interface {
	Save(kind model.ArtifactKind, data []byte) (string, error)
	Delete(filename string) (bool, error)
}

// SpeechSynthesizer renders text into a stored audio artifact and returns its
// filename.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, kind model.ArtifactKind) (string, error)
}

// Normalizer turns a Request into a NormalizedInput. The synthesizer may be nil,
// in which case typed messages get no user-side audio.
type Normalizer struct {
	artifacts ArtifactStore
	synth     SpeechSynthesizer
	logger    *slog.Logger
}

func NewNormalizer(artifacts ArtifactStore, synth SpeechSynthesizer, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		artifacts: artifacts,
		synth:     synth,
		logger:    logger.With("component", "normalizer"),
	}
}

// Normalize stores uploaded audio as-is, or else voices typed text on a
// best-effort basis. Failing to produce the user-side artifact never fails the
// request.
func (n *Normalizer) Normalize(ctx context.Context, req Request) (*NormalizedInput, error) {
	in := &NormalizedInput{
		UserID: strings.TrimSpace(req.UserID),
		Text:   strings.TrimSpace(req.Message),
	}
	if in.UserID == "" {
		in.UserID = model.AnonymousUser
	}

	switch {
	case len(req.VoiceAudio) > 0:
		filename, err := n.artifacts.Save(model.KindUserUpload, req.VoiceAudio)
		if err != nil {
			n.logger.Error("failed to store uploaded voice audio", "user_id", in.UserID, "err", err)
			break
		}
		in.UserAudio = &filename
	case in.Text != "":
		if n.synth == nil {
			break
		}
		filename, err := n.synth.Synthesize(ctx, in.Text, model.KindUserSynth)
		if err != nil {
			metrics.SynthesisFailures.WithLabelValues(string(model.KindUserSynth)).Inc()
			n.logger.Warn("failed to synthesize user audio", "user_id", in.UserID, "err", err)
			break
		}
		in.UserAudio = &filename
	default:
		return nil, ErrInvalidInput
	}

	return in, nil
}
