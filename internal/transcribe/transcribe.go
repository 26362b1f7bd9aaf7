// Package transcribe provides the streaming speech-to-text port and its
// Deepgram implementation.
package transcribe

import (
	"context"
	"time"
)

// AudioFormat describes the raw audio the client will stream.
type AudioFormat struct {
	Encoding   string // e.g. "linear16"
	SampleRate int
	Channels   int
}

// DefaultFormat is 16kHz mono PCM, which the browser capture produces.
func DefaultFormat() AudioFormat {
	return AudioFormat{Encoding: "linear16", SampleRate: 16000, Channels: 1}
}

// Event is one utterance emitted by the transcription collaborator. Interim
// events revise the in-progress utterance; a final event closes it.
type Event struct {
	Text      string
	IsFinal   bool
	Timestamp time.Time
}

// Stream is one live transcription connection.
type Stream interface {
	// Send forwards a raw audio frame to the recognizer.
	Send(ctx context.Context, frame []byte) error

	// Events returns the channel of utterance events, delivered in the
	// order the recognizer emits them. Closed when the stream ends.
	Events() <-chan Event

	// Errors returns the channel of stream-level failures.
	Errors() <-chan error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Port opens live transcription streams.
type Port interface {
	Open(ctx context.Context, format AudioFormat) (Stream, error)
}
