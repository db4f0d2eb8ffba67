package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	DefaultGoogleEndpoint = "https://texttospeech.googleapis.com"
	googleScope           = "https://www.googleapis.com/auth/cloud-platform"
)

// GoogleProvider implements TTS using the Google Cloud Text-to-Speech REST API
type GoogleProvider struct {
	projectID  string
	apiKey     string
	endpoint   string
	httpClient *http.Client
	useAPIKey  bool // true if using API key, false if using service account
	logger     *slog.Logger
}

// NewGoogleProvider creates a new Google TTS provider
// keyData can be either:
//   - An API key (39 characters, typically starts with "AIzaSy")
//   - A file path to a JSON key file (e.g., "./keys/google-service-account.json")
//   - A JSON string containing the service account credentials
//   - Empty, in which case application default credentials are used
func NewGoogleProvider(ctx context.Context, projectID, keyData, endpoint string, logger *slog.Logger) (*GoogleProvider, error) {
	if endpoint == "" {
		endpoint = DefaultGoogleEndpoint
	}
	logger = logger.With("component", "tts", "provider", "google")

	keyDataTrimmed := strings.TrimSpace(keyData)
	if IsGoogleAPIKey(keyDataTrimmed) {
		logger.Info("using API key authentication")
		return &GoogleProvider{
			projectID:  projectID,
			apiKey:     keyDataTrimmed,
			endpoint:   strings.TrimRight(endpoint, "/"),
			httpClient: &http.Client{},
			useAPIKey:  true,
			logger:     logger,
		}, nil
	}

	var creds *google.Credentials
	var err error
	switch {
	case keyDataTrimmed == "":
		creds, err = google.FindDefaultCredentials(ctx, googleScope)
		if err != nil {
			return nil, fmt.Errorf("failed to find default credentials: %w. Please set GOOGLE_TTS_KEY_FILE", err)
		}
	case strings.HasPrefix(keyDataTrimmed, "{"):
		logger.Info("using JSON credentials from environment variable")
		creds, err = google.CredentialsFromJSON(ctx, []byte(keyDataTrimmed), googleScope)
	default:
		logger.Info("reading key file", "path", keyDataTrimmed)
		var jsonData []byte
		jsonData, err = os.ReadFile(keyDataTrimmed)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file '%s': %w", keyDataTrimmed, err)
		}
		creds, err = google.CredentialsFromJSON(ctx, jsonData, googleScope)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create credentials from JSON: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}

	return &GoogleProvider{
		projectID:  projectID,
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: oauth2.NewClient(ctx, creds.TokenSource),
		logger:     logger,
	}, nil
}

// IsGoogleAPIKey reports whether keyData looks like a Google API key rather
// than service account credentials.
func IsGoogleAPIKey(keyData string) bool {
	return len(keyData) == 39 && strings.HasPrefix(keyData, "AIzaSy")
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

type googleSynthesizeRequest struct {
	Input       googleInput       `json:"input"`
	Voice       googleVoice       `json:"voice"`
	AudioConfig googleAudioConfig `json:"audioConfig"`
}

type googleInput struct {
	Text string `json:"text"`
}

type googleVoice struct {
	LanguageCode string `json:"languageCode"`
}

type googleAudioConfig struct {
	AudioEncoding string `json:"audioEncoding"`
}

type googleSynthesizeResponse struct {
	AudioContent string       `json:"audioContent"` // Base64 encoded
	Error        *googleError `json:"error,omitempty"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// Synthesize sends text to Google Text-to-Speech and returns MP3 audio
func (p *GoogleProvider) Synthesize(ctx context.Context, text, language string) ([]byte, error) {
	reqJSON, err := json.Marshal(googleSynthesizeRequest{
		Input:       googleInput{Text: text},
		Voice:       googleVoice{LanguageCode: language},
		AudioConfig: googleAudioConfig{AudioEncoding: "MP3"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := p.endpoint + "/v1/text:synthesize"
	if p.useAPIKey {
		apiURL += "?key=" + url.QueryEscape(p.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if !p.useAPIKey && p.projectID != "" {
		req.Header.Set("X-Goog-User-Project", p.projectID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Google Text-to-Speech: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var ttsResp googleSynthesizeResponse
	if resp.StatusCode != http.StatusOK {
		if err := json.Unmarshal(body, &ttsResp); err == nil && ttsResp.Error != nil {
			p.logger.Warn("API error", "code", ttsResp.Error.Code, "status", ttsResp.Error.Status, "message", ttsResp.Error.Message)
			return nil, fmt.Errorf("Google Text-to-Speech API error: %s", ttsResp.Error.Message)
		}
		p.logger.Warn("API error", "status", resp.StatusCode, "body", preview(body))
		return nil, fmt.Errorf("Google Text-to-Speech API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, &ttsResp); err != nil {
		return nil, fmt.Errorf("failed to parse Google Text-to-Speech response: %w", err)
	}
	if ttsResp.AudioContent == "" {
		return nil, fmt.Errorf("Google Text-to-Speech returned no audio")
	}

	audio, err := base64.StdEncoding.DecodeString(ttsResp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio content: %w", err)
	}
	return audio, nil
}

func preview(body []byte) string {
	s := string(body)
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
