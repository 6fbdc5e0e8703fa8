package usecase

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
	"iatbridge/internal/ports"
)

const (
	defaultChunkSize = 1280
	// bufio's minimum; only used for the one-byte end-of-stream lookahead.
	lookaheadSize = 16
)

// frameChunker cuts an audio stream into First, Continue* and Last payloads.
// The chunk that exhausts the source is tagged Last; a First chunk is always
// followed by a separate Last so session parameters never ride on the final frame.
type frameChunker struct {
	r    *bufio.Reader
	buf  []byte
	next domain.FrameState

	emptyLast bool
	done      bool
}

func newFrameChunker(r io.Reader, chunkSize int) *frameChunker {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &frameChunker{
		r:    bufio.NewReaderSize(r, lookaheadSize),
		buf:  make([]byte, chunkSize),
		next: domain.FrameFirst,
	}
}

// Next returns the next frame. The payload is only valid until the following call.
// It returns io.EOF once the Last frame has been produced.
func (c *frameChunker) Next() (domain.FrameState, []byte, error) {
	if c.done {
		return domain.FrameLast, nil, io.EOF
	}
	if c.emptyLast {
		c.done = true
		return domain.FrameLast, nil, nil
	}

	n, err := io.ReadFull(c.r, c.buf)
	exhausted := false
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		exhausted = true
	default:
		return 0, nil, errorsx.Wrap(fmt.Errorf("audio read error: %w", err), errorsx.ReasonAudioRead)
	}

	if !exhausted {
		if _, peekErr := c.r.Peek(1); peekErr != nil {
			if !errors.Is(peekErr, io.EOF) {
				return 0, nil, errorsx.Wrap(fmt.Errorf("audio read error: %w", peekErr), errorsx.ReasonAudioRead)
			}
			exhausted = true
		}
	}

	state := c.next
	if state == domain.FrameFirst {
		c.next = domain.FrameContinue
		c.emptyLast = exhausted
		return domain.FrameFirst, c.buf[:n], nil
	}
	if exhausted {
		c.done = true
		return domain.FrameLast, c.buf[:n], nil
	}
	return domain.FrameContinue, c.buf[:n], nil
}

// pumpFrames reads the audio source chunk by chunk and sends each encoded frame in order.
func (r *streamRun) pumpFrames(ctx context.Context, audio io.Reader) error {
	chunker := newFrameChunker(audio, r.chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.final.Load() {
			return nil
		}

		state, payload, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		encoded, err := r.protocol.EncodeFrame(state, payload)
		if err != nil {
			return err
		}
		if err := r.conn.WriteMessage(encoded); err != nil {
			if errors.Is(err, ports.ErrConnClosed) {
				// The receiver decides whether the close ended the session cleanly.
				r.session.logger.Debug("frame_send_after_close", slog.String("state", state.String()))
				return nil
			}
			return err
		}

		r.session.logger.Debug("frame_sent",
			slog.String("state", state.String()),
			slog.Int("bytes", len(payload)))
		r.session.observer.FrameSent(r.session.id, state, len(payload))

		if state == domain.FrameLast {
			r.session.setState(domain.SessionStateDraining)
			return nil
		}
	}
}
