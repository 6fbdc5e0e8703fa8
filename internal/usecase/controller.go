package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"iatbridge/internal/domain"
	"iatbridge/internal/errorsx"
	"iatbridge/internal/logging"
	"iatbridge/internal/ports"
)

const defaultDrainTimeout = 5 * time.Second

// Config controls streaming session behavior.
type Config struct {
	ChunkSize int
	// FrameInterval paces outbound frames; zero sends as fast as the transport accepts.
	FrameInterval time.Duration
	// DrainTimeout bounds the wait for the server to close after the final segment.
	DrainTimeout time.Duration
	// SessionTimeout bounds a whole session; zero leaves it to the caller's context.
	SessionTimeout time.Duration
}

// SessionController runs streaming transcription sessions. Each call to
// Transcribe owns its own connection and aggregator; calls may run concurrently.
type SessionController struct {
	audio    ports.AudioSource
	dialer   ports.Dialer
	protocol ports.StreamProtocol
	observer ports.SessionObserver
	logger   *slog.Logger
	cfg      Config

	now   func() time.Time
	newID func() string
}

func NewSessionController(
	audio ports.AudioSource,
	dialer ports.Dialer,
	protocol ports.StreamProtocol,
	observer ports.SessionObserver,
	logger *slog.Logger,
	cfg Config,
) *SessionController {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = defaultDrainTimeout
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &SessionController{
		audio:    audio,
		dialer:   dialer,
		protocol: protocol,
		observer: observer,
		logger:   logging.NewComponentLogger(logger, "session"),
		cfg:      cfg,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Recognize implements ports.Recognizer.
func (c *SessionController) Recognize(ctx context.Context, path string) (domain.Transcript, error) {
	return c.TranscribeFile(ctx, path)
}

// TranscribeFile opens path through the audio source and releases it on every exit path.
func (c *SessionController) TranscribeFile(ctx context.Context, path string) (domain.Transcript, error) {
	source, err := c.audio.Open(ctx, path)
	if err != nil {
		return domain.Transcript{}, errorsx.Wrap(fmt.Errorf("open audio %q: %w", path, err), errorsx.ReasonAudioRead)
	}
	defer func() {
		if closeErr := source.Close(); closeErr != nil {
			c.logger.Warn("audio_source_close_failed", slog.String("error", closeErr.Error()))
		}
	}()
	return c.Transcribe(ctx, source)
}

// Transcribe streams audio to the speech service and returns the merged transcript.
// Any failure discards the partial transcript.
func (c *SessionController) Transcribe(ctx context.Context, audio io.Reader) (domain.Transcript, error) {
	session := newActiveSession(c.newID(), c.logger, c.observer)
	session.logger = session.logger.With(slog.String("session_id", session.id))
	started := c.now()

	transcript, err := c.run(ctx, session, audio)
	elapsed := c.now().Sub(started)
	if err != nil {
		session.setState(domain.SessionStateFailed)
		session.logger.Error("session_failed",
			slog.String("reason", string(errorsx.Reason(err))),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed))
		c.observer.SessionFinished(session.id, err, elapsed)
		return domain.Transcript{}, err
	}

	session.setState(domain.SessionStateClosed)
	session.logger.Info("session_closed",
		slog.String("sid", transcript.SID),
		slog.Int("transcript_bytes", len(transcript.Text)),
		slog.Duration("elapsed", elapsed))
	c.observer.SessionFinished(session.id, nil, elapsed)
	return transcript, nil
}

// streamRun is the per-session state shared by the frame pump and the receiver.
type streamRun struct {
	session    *activeSession
	conn       ports.Conn
	protocol   ports.StreamProtocol
	aggregator *transcriptAggregator
	limiter    *rate.Limiter
	chunkSize  int
	drain      time.Duration

	final atomic.Bool
}

func (c *SessionController) run(ctx context.Context, session *activeSession, audio io.Reader) (domain.Transcript, error) {
	sessionCtx := ctx
	if c.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		sessionCtx, cancel = context.WithTimeout(ctx, c.cfg.SessionTimeout)
		defer cancel()
	}

	session.setState(domain.SessionStateConnecting)
	url, err := c.protocol.ConnectURL(c.now())
	if err != nil {
		return domain.Transcript{}, errorsx.Wrap(err, errorsx.ReasonConfig)
	}

	conn, err := c.dialer.Dial(sessionCtx, url)
	if err != nil {
		return domain.Transcript{}, c.classify(ctx, sessionCtx, err)
	}
	defer conn.Close()
	session.setState(domain.SessionStateStreaming)

	r := &streamRun{
		session:    session,
		conn:       conn,
		protocol:   c.protocol,
		aggregator: newTranscriptAggregator(),
		chunkSize:  c.cfg.ChunkSize,
		drain:      c.cfg.DrainTimeout,
	}
	if c.cfg.FrameInterval > 0 {
		r.limiter = rate.NewLimiter(rate.Every(c.cfg.FrameInterval), 1)
	}

	group, groupCtx := errgroup.WithContext(sessionCtx)
	go func() {
		<-groupCtx.Done()
		_ = conn.Close()
	}()
	group.Go(func() error { return r.pumpFrames(groupCtx, audio) })
	group.Go(func() error { return r.consumeServerMessages() })

	if err := group.Wait(); err != nil {
		return domain.Transcript{}, c.classify(ctx, sessionCtx, err)
	}
	if err := ctx.Err(); err != nil {
		return domain.Transcript{}, c.classify(ctx, sessionCtx, err)
	}
	return r.aggregator.Snapshot(), nil
}

func (c *SessionController) classify(parent, sessionCtx context.Context, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return errorsx.Wrap(fmt.Errorf("transcription canceled: %w", parentErr), errorsx.ReasonCanceled)
	}
	if errors.Is(sessionCtx.Err(), context.DeadlineExceeded) {
		return errorsx.Wrap(fmt.Errorf("session timed out after %s: %w", c.cfg.SessionTimeout, err), errorsx.ReasonTransport)
	}
	if errors.Is(err, ports.ErrConnClosed) && errorsx.Reason(err) == errorsx.ReasonUnknown {
		return errorsx.Wrap(fmt.Errorf("%w: %v", errorsx.ErrIncompleteSession, err), errorsx.ReasonIncomplete)
	}
	return errorsx.Wrap(err, errorsx.ReasonTransport)
}
