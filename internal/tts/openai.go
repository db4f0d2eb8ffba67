package tts

import (
	"context"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements TTS using the OpenAI speech endpoint.
// The voice speaks whatever language the text is written in, so the language
// tag is ignored.
type OpenAIProvider struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
}

func NewOpenAIProvider(apiKey, baseURL, model, voice string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.TTSModel1)
	}
	if voice == "" {
		voice = string(openai.VoiceAlloy)
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
	}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Synthesize(ctx context.Context, text, _ string) ([]byte, error) {
	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          p.model,
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI speech error: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read speech audio: %w", err)
	}
	return audio, nil
}
