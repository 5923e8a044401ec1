package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"
)

const elevenLabsSTTEndpoint = "https://api.elevenlabs.io/v1/speech-to-text"

// ElevenLabsClient calls the ElevenLabs Speech-to-Text API.
// Implements the Provider interface.
type ElevenLabsClient struct {
	apiKey   string
	model    string // "scribe_v1"
	endpoint string
	timeout  time.Duration
	client   *http.Client
}

// elevenlabsResponse is the JSON response from the ElevenLabs STT API.
type elevenlabsResponse struct {
	LanguageCode        string  `json:"language_code"`
	LanguageProbability float64 `json:"language_probability"`
	Text                string  `json:"text"`
}

// NewElevenLabsClient creates a new ElevenLabs STT client. The timeout is
// deliberately long relative to other API calls since it covers the upload
// of the full recording.
func NewElevenLabsClient(apiKey, model string, timeout time.Duration) *ElevenLabsClient {
	return &ElevenLabsClient{
		apiKey:   apiKey,
		model:    model,
		endpoint: elevenLabsSTTEndpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the provider name.
func (el *ElevenLabsClient) Name() string { return "elevenlabs" }

// Model returns the configured model identifier.
func (el *ElevenLabsClient) Model() string { return el.model }

// Transcribe sends the recording to the ElevenLabs STT API and returns the
// transcript. A non-success status, transport failure, or empty transcript
// all fail the call.
func (el *ElevenLabsClient) Transcribe(ctx context.Context, treq Request) (*Result, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", treq.Filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(treq.Audio); err != nil {
		return nil, fmt.Errorf("write audio data: %w", err)
	}

	w.WriteField("model_id", el.model)

	lang := treq.Language
	if lang == "" {
		lang = "eng"
	}
	w.WriteField("language_code", lang)
	w.WriteField("diarize", strconv.FormatBool(treq.Diarize))
	w.WriteField("tag_audio_events", strconv.FormatBool(treq.TagEvents))

	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, el.endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("xi-api-key", el.apiKey)

	resp, err := el.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs API error (status %d): %s", resp.StatusCode, truncate(string(body), 500))
	}

	var result elevenlabsResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if result.Text == "" {
		return nil, fmt.Errorf("elevenlabs returned empty transcription")
	}

	return &Result{
		Text:     result.Text,
		Language: result.LanguageCode,
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
