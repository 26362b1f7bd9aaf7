package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// DeepgramPort opens live transcription streams against Deepgram's
// streaming WebSocket API.
type DeepgramPort struct {
	apiKey string
	model  string
	// Endpointing is how long Deepgram waits through silence before
	// finalizing an utterance. Three seconds tolerates natural pauses.
	endpointing time.Duration
}

// NewDeepgram creates a Deepgram-backed transcription port.
func NewDeepgram(apiKey string) (*DeepgramPort, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram API key is required")
	}
	return &DeepgramPort{
		apiKey:      apiKey,
		model:       "nova-2",
		endpointing: 3 * time.Second,
	}, nil
}

// Open dials a live transcription stream and starts its read loop.
func (p *DeepgramPort) Open(ctx context.Context, format AudioFormat) (Stream, error) {
	q := url.Values{}
	q.Set("model", p.model)
	q.Set("language", "en")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", format.Encoding)
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	q.Set("channels", strconv.Itoa(format.Channels))
	q.Set("endpointing", strconv.FormatInt(p.endpointing.Milliseconds(), 10))

	header := http.Header{}
	header.Set("Authorization", "Token "+p.apiKey)

	//nolint:bodyclose // coder/websocket owns the hijacked connection.
	conn, _, err := websocket.Dial(ctx, deepgramListenURL+"?"+q.Encode(), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial deepgram: %w", err)
	}
	// Audio frames can be large relative to the default read limit.
	conn.SetReadLimit(1 << 20)

	readCtx, cancel := context.WithCancel(context.Background())
	s := &deepgramStream{
		conn:   conn,
		events: make(chan Event, 32),
		errs:   make(chan error, 4),
		cancel: cancel,
	}
	go s.readLoop(readCtx)

	slog.Info("deepgram stream opened", "model", p.model, "sample_rate", format.SampleRate)
	return s, nil
}

type deepgramStream struct {
	conn   *websocket.Conn
	events chan Event
	errs   chan error
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// deepgramResult is the subset of Deepgram's Results message we consume.
type deepgramResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (s *deepgramStream) readLoop(ctx context.Context) {
	defer close(s.events)
	for {
		_, data, err := s.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				select {
				case s.errs <- fmt.Errorf("read deepgram stream: %w", err):
				default:
				}
			}
			return
		}

		var result deepgramResult
		if err := json.Unmarshal(data, &result); err != nil {
			slog.Debug("skipping unparseable deepgram message", "error", err)
			continue
		}
		if result.Type != "Results" || len(result.Channel.Alternatives) == 0 {
			continue
		}
		transcript := result.Channel.Alternatives[0].Transcript
		if transcript == "" {
			continue
		}

		select {
		case s.events <- Event{Text: transcript, IsFinal: result.IsFinal, Timestamp: time.Now()}:
		case <-ctx.Done():
			return
		}
	}
}

// Send forwards a raw audio frame to the recognizer.
func (s *deepgramStream) Send(ctx context.Context, frame []byte) error {
	if err := s.conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
		return fmt.Errorf("send audio frame: %w", err)
	}
	return nil
}

// Events returns the utterance event channel.
func (s *deepgramStream) Events() <-chan Event { return s.events }

// Errors returns the stream error channel.
func (s *deepgramStream) Errors() <-chan error { return s.errs }

// Close asks Deepgram to flush any buffered audio, then closes the socket.
func (s *deepgramStream) Close() error {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
			slog.Debug("failed to send CloseStream", "error", err)
		}
		s.cancel()
		s.closeErr = s.conn.Close(websocket.StatusNormalClosure, "stream ended")
	})
	return s.closeErr
}
