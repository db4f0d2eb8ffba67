package exchange

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stubot/internal/metrics"
	"stubot/internal/model"
	"stubot/internal/nlu"
)

// NLUClient obtains a reply for a user message. It never fails: backend
// problems come back as fallback replies.
type NLUClient interface {
	Send(ctx context.Context, userID, text string) nlu.Reply
}

// ExchangeLog persists finished exchanges.
type ExchangeLog interface {
	Append(ctx context.Context, ex *model.Exchange) (uuid.UUID, error)
}

// EventPublisher announces finished exchanges to interested listeners.
type EventPublisher interface {
	Publish(ctx context.Context, ex *model.Exchange) error
}

// Result is what the caller of Process gets back. ExchangeID is uuid.Nil when
// the exchange could not be persisted.
type Result struct {
	ExchangeID   uuid.UUID
	ReplyText    string
	Outcome      model.Outcome
	BotAudioURL  *string
	UserAudioURL *string
}

// Deps wires an Orchestrator. Synthesizer and Events are optional.
type Deps struct {
	Artifacts   ArtifactStore
	Synthesizer SpeechSynthesizer
	NLU         NLUClient
	Log         ExchangeLog
	Events      EventPublisher
	// AudioURL maps an artifact filename to the URL it is served under.
	AudioURL func(filename string) string
	Logger   *slog.Logger
}

// Orchestrator processes exchanges. It keeps no state between calls and is safe
// for concurrent use.
type Orchestrator struct {
	normalizer *Normalizer
	artifacts  ArtifactStore
	synth      SpeechSynthesizer
	nlu        NLUClient
	log        ExchangeLog
	events     EventPublisher
	audioURL   func(string) string
	logger     *slog.Logger
}

func NewOrchestrator(d Deps) *Orchestrator {
	logger := d.Logger.With("component", "orchestrator")
	audioURL := d.AudioURL
	if audioURL == nil {
		audioURL = func(filename string) string { return filename }
	}
	return &Orchestrator{
		normalizer: NewNormalizer(d.Artifacts, d.Synthesizer, d.Logger),
		artifacts:  d.Artifacts,
		synth:      d.Synthesizer,
		nlu:        d.NLU,
		log:        d.Log,
		events:     d.Events,
		audioURL:   audioURL,
		logger:     logger,
	}
}

// Process runs one exchange: normalize, ask the NLU backend, voice the reply,
// persist, publish. Only a request without a usable message fails; every later
// step degrades instead. Cancelling ctx does not abort an exchange in flight.
func (o *Orchestrator) Process(ctx context.Context, req Request) (*Result, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	in, err := o.normalizer.Normalize(ctx, req)
	if err != nil {
		metrics.RejectedExchanges.Inc()
		return nil, err
	}

	// Audio is never transcribed here, so an exchange needs typed text.
	if in.Text == "" {
		o.discardArtifact(in.UserAudio)
		metrics.RejectedExchanges.Inc()
		return nil, ErrInvalidInput
	}

	nluStart := time.Now()
	reply := o.nlu.Send(ctx, in.UserID, in.Text)
	metrics.NLULatency.Observe(time.Since(nluStart).Seconds())

	var botAudio *string
	if o.synth != nil {
		filename, err := o.synth.Synthesize(ctx, reply.Text, model.KindBotSynth)
		if err != nil {
			metrics.SynthesisFailures.WithLabelValues(string(model.KindBotSynth)).Inc()
			o.logger.Warn("failed to synthesize bot audio", "user_id", in.UserID, "err", err)
		} else {
			botAudio = &filename
		}
	}

	ex := &model.Exchange{
		UserID:      in.UserID,
		UserMessage: in.Text,
		BotReply:    reply.Text,
		UserAudio:   in.UserAudio,
		BotAudio:    botAudio,
		Outcome:     reply.Outcome,
	}
	if _, err := o.log.Append(ctx, ex); err != nil {
		metrics.PersistenceFailures.Inc()
		o.logger.Error("failed to log exchange", "user_id", in.UserID, "err", err)
	} else if o.events != nil {
		if err := o.events.Publish(ctx, ex); err != nil {
			o.logger.Warn("failed to publish exchange event", "exchange_id", ex.ID, "err", err)
		}
	}

	metrics.Exchanges.WithLabelValues(string(reply.Outcome)).Inc()
	o.logger.Info("exchange processed",
		"exchange_id", ex.ID,
		"user_id", in.UserID,
		"outcome", reply.Outcome,
		"bot_audio", botAudio != nil,
		"duration", time.Since(start))

	return &Result{
		ExchangeID:   ex.ID,
		ReplyText:    reply.Text,
		Outcome:      reply.Outcome,
		BotAudioURL:  o.urlFor(botAudio),
		UserAudioURL: o.urlFor(in.UserAudio),
	}, nil
}

func (o *Orchestrator) urlFor(filename *string) *string {
	if filename == nil {
		return nil
	}
	u := o.audioURL(*filename)
	return &u
}

func (o *Orchestrator) discardArtifact(filename *string) {
	if filename == nil {
		return
	}
	if _, err := o.artifacts.Delete(*filename); err != nil {
		o.logger.Warn("failed to discard audio of rejected exchange", "filename", *filename, "err", err)
	}
}
