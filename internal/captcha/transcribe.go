package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Transcriber turns challenge audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TranscriberOption configures the HTTP transcriber.
type TranscriberOption func(*httpTranscriber)

// WithTranscriberHTTPClient sets a custom HTTP client (for testing).
func WithTranscriberHTTPClient(hc *http.Client) TranscriberOption {
	return func(t *httpTranscriber) {
		t.http = hc
	}
}

type httpTranscriber struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewTranscriber creates a speech-to-text client. The endpoint receives
// the raw MP3 body and answers {"text": "..."}.
func NewTranscriber(endpoint, apiKey string, opts ...TranscriberOption) Transcriber {
	t := &httpTranscriber{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *httpTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(audio))
	if err != nil {
		return "", eris.Wrap(err, "transcribe: create request")
	}
	req.Header.Set("Content-Type", "audio/mpeg")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "transcribe: request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", eris.Wrap(err, "transcribe: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("transcribe: status %d: %s", resp.StatusCode, string(body))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", eris.Wrap(err, "transcribe: decode response")
	}
	if parsed.Text == "" {
		return "", eris.New("transcribe: empty transcription")
	}

	return parsed.Text, nil
}
