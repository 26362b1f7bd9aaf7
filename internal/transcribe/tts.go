package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const deepgramSpeakURL = "https://api.deepgram.com/v1/speak"

// Speaker renders short verdict announcements to audio via Deepgram's
// text-to-speech REST API.
type Speaker struct {
	apiKey string
	model  string
	httpc  *http.Client
}

// NewSpeaker creates a Deepgram-backed TTS renderer.
func NewSpeaker(apiKey string) (*Speaker, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}
	return &Speaker{
		apiKey: apiKey,
		model:  "aura-asteria-en",
		httpc:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Speak renders text to encoded audio bytes.
func (s *Speaker) Speak(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("marshal speak request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		deepgramSpeakURL+"?model="+s.model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build speak request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+s.apiKey)

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render speech: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close speak response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("speak rejected: status %d: %s", resp.StatusCode, payload)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	return audio, nil
}
