package actuate

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

const defaultBaseURL = "https://api.pavlok.com"

// PavlokClient delivers stimuli through the Pavlok v5 REST API.
type PavlokClient struct {
	baseURL string
	token   string
	httpc   *http.Client
}

// NewPavlok creates a Pavlok-backed actuation port.
func NewPavlok(token string, timeout time.Duration) (*PavlokClient, error) {
	if token == "" {
		return nil, fmt.Errorf("pavlok API token is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PavlokClient{
		baseURL: defaultBaseURL,
		token:   token,
		httpc:   &http.Client{Timeout: timeout},
	}, nil
}

type stimulusRequest struct {
	Stimulus stimulus `json:"stimulus"`
}

type stimulus struct {
	StimulusType  string `json:"stimulusType"`
	StimulusValue int    `json:"stimulusValue"`
	Reason        string `json:"reason"`
}

// Deliver sends one stimulus and waits for the device API to confirm it.
func (c *PavlokClient) Deliver(ctx context.Context, kind Kind, intensity int, reason string) error {
	if err := validIntensity(intensity); err != nil {
		return err
	}

	body, err := json.Marshal(stimulusRequest{
		Stimulus: stimulus{
			StimulusType:  string(kind),
			StimulusValue: intensity,
			Reason:        reason,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal stimulus request: %w", err)
	}

	url := c.baseURL + "/api/v5/stimulus/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build stimulus request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("send stimulus: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close stimulus response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("stimulus rejected: status %d: %s", resp.StatusCode, payload)
	}

	slog.Info("stimulus delivered", "kind", kind, "intensity", intensity)
	return nil
}
