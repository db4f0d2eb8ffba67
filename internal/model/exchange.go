package model

import (
	"time"

	"github.com/google/uuid"
)

// AnonymousUser is recorded when the caller does not identify itself.
const AnonymousUser = "anonymous"

// Canned replies used when the NLU backend cannot answer.
const (
	ReplyUnavailable = "Sorry, the chatbot service is currently unavailable. Please try again later."
	ReplyNoResponse  = "Sorry, I couldn't get a response from the bot."
)

// FallbackReplies lists every reply text that counts as unanswered.
var FallbackReplies = []string{ReplyUnavailable, ReplyNoResponse}

// Outcome records how the bot reply of an exchange was obtained.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeNoBackend  Outcome = "fallback_no_backend"
	OutcomeEmptyReply Outcome = "fallback_empty_reply"
)

// FallbackOutcomes lists the outcomes that count as unanswered.
var FallbackOutcomes = []Outcome{OutcomeNoBackend, OutcomeEmptyReply}

// ArtifactKind tags an audio artifact with its origin. The tag is also the
// filename prefix.
type ArtifactKind string

const (
	KindUserUpload ArtifactKind = "user_voice"
	KindUserSynth  ArtifactKind = "user_tts"
	KindBotSynth   ArtifactKind = "bot"
)

// Ext returns the file extension used for artifacts of this kind.
func (k ArtifactKind) Ext() string {
	if k == KindUserUpload {
		return "wav"
	}
	return "mp3"
}

// Exchange is one user message and the bot reply to it.
type Exchange struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	UserMessage string    `json:"user_message"`
	BotReply    string    `json:"bot_response"`
	UserAudio   *string   `json:"user_audio_filename,omitempty"`
	BotAudio    *string   `json:"bot_audio_filename,omitempty"`
	Outcome     Outcome   `json:"outcome"`
	CreatedAt   time.Time `json:"created_at"`
}

// AudioFilenames returns the artifacts referenced by the exchange.
func (e *Exchange) AudioFilenames() []string {
	var out []string
	if e.UserAudio != nil && *e.UserAudio != "" {
		out = append(out, *e.UserAudio)
	}
	if e.BotAudio != nil && *e.BotAudio != "" {
		out = append(out, *e.BotAudio)
	}
	return out
}
