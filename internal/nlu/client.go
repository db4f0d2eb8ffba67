// Package nlu talks to the external natural-language-understanding backend
// (a Rasa REST channel or anything speaking the same contract).
package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"stubot/internal/model"
)

// Reply is the bot's answer to one message. Text is never empty.
type Reply struct {
	Text    string
	Outcome model.Outcome
}

type webhookRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type webhookMessage struct {
	RecipientID string `json:"recipient_id,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Client sends user messages to the NLU webhook. Each call is a single
// attempt with the transport's default timeouts.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a client for the webhook at url. A nil httpClient uses
// http.DefaultClient.
func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		url:        url,
		httpClient: httpClient,
		logger:     logger.With("component", "nlu"),
	}
}

// Send forwards text on behalf of userID and returns the first reply. Failures
// never surface as errors: an unreachable backend yields
// model.ReplyUnavailable, anything else unusable yields model.ReplyNoResponse.
func (c *Client) Send(ctx context.Context, userID, text string) Reply {
	body, err := json.Marshal(webhookRequest{Sender: userID, Message: text})
	if err != nil {
		c.logger.Error("failed to marshal request", "err", err)
		return Reply{Text: model.ReplyNoResponse, Outcome: model.OutcomeEmptyReply}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("failed to create request", "url", c.url, "err", err)
		return Reply{Text: model.ReplyUnavailable, Outcome: model.OutcomeNoBackend}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("NLU backend unreachable", "url", c.url, "err", err)
		return Reply{Text: model.ReplyUnavailable, Outcome: model.OutcomeNoBackend}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("failed to read NLU response", "err", err)
		return Reply{Text: model.ReplyNoResponse, Outcome: model.OutcomeEmptyReply}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("NLU backend returned error status", "status", resp.StatusCode, "body", preview(respBody))
		return Reply{Text: model.ReplyNoResponse, Outcome: model.OutcomeEmptyReply}
	}

	var messages []webhookMessage
	if err := json.Unmarshal(respBody, &messages); err != nil {
		c.logger.Warn("failed to parse NLU response", "err", err, "body", preview(respBody))
		return Reply{Text: model.ReplyNoResponse, Outcome: model.OutcomeEmptyReply}
	}

	if len(messages) == 0 || strings.TrimSpace(messages[0].Text) == "" {
		c.logger.Info("NLU backend returned no text reply", "messages", len(messages))
		return Reply{Text: model.ReplyNoResponse, Outcome: model.OutcomeEmptyReply}
	}

	return Reply{Text: messages[0].Text, Outcome: model.OutcomeAnswered}
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
