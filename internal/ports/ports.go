package ports

import (
	"context"
	"errors"
	"io"
	"time"

	"iatbridge/internal/domain"
)

// ErrConnClosed is wrapped by Conn implementations when the peer closed the connection.
var ErrConnClosed = errors.New("connection closed")

// AudioSource opens an audio file as a byte stream. The caller closes it.
type AudioSource interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

// Conn is an established streaming connection carrying text frames.
type Conn interface {
	WriteMessage(payload []byte) error
	ReadMessage() ([]byte, error)
	SetReadDeadline(deadline time.Time) error
	// CloseSend starts a graceful close; reads continue until the peer closes.
	CloseSend() error
	Close() error
}

// Dialer opens streaming connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// StreamProtocol signs, encodes and decodes messages for one streaming speech service.
type StreamProtocol interface {
	ConnectURL(now time.Time) (string, error)
	EncodeFrame(state domain.FrameState, payload []byte) ([]byte, error)
	DecodeMessage(payload []byte) (domain.InboundMessage, error)
}

// Recognizer turns an audio file into a transcript.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (domain.Transcript, error)
}

// SessionObserver receives session lifecycle notifications.
type SessionObserver interface {
	SessionStateChanged(sessionID string, state domain.SessionState)
	FrameSent(sessionID string, state domain.FrameState, size int)
	PartialTranscript(sessionID string, text string)
	SessionFinished(sessionID string, err error, elapsed time.Duration)
}
