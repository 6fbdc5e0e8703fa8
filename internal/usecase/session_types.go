package usecase

import (
	"log/slog"
	"sync"
	"time"

	"iatbridge/internal/domain"
	"iatbridge/internal/ports"
)

var allowedTransitions = map[domain.SessionState][]domain.SessionState{
	domain.SessionStateIdle:       {domain.SessionStateConnecting, domain.SessionStateFailed},
	domain.SessionStateConnecting: {domain.SessionStateStreaming, domain.SessionStateFailed},
	domain.SessionStateStreaming:  {domain.SessionStateDraining, domain.SessionStateClosed, domain.SessionStateFailed},
	domain.SessionStateDraining:   {domain.SessionStateClosed, domain.SessionStateFailed},
}

type activeSession struct {
	id       string
	logger   *slog.Logger
	observer ports.SessionObserver

	stateMu sync.Mutex
	state   domain.SessionState
}

func newActiveSession(id string, logger *slog.Logger, observer ports.SessionObserver) *activeSession {
	return &activeSession{
		id:       id,
		logger:   logger,
		observer: observer,
		state:    domain.SessionStateIdle,
	}
}

// setState applies a transition if the lifecycle allows it and reports whether it did.
func (s *activeSession) setState(next domain.SessionState) bool {
	s.stateMu.Lock()
	current := s.state
	allowed := false
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if allowed {
		s.state = next
	}
	s.stateMu.Unlock()

	if !allowed {
		s.logger.Debug("session_transition_ignored",
			slog.String("from", string(current)),
			slog.String("to", string(next)))
		return false
	}

	s.logger.Info("session_state_changed",
		slog.String("from", string(current)),
		slog.String("to", string(next)))
	s.observer.SessionStateChanged(s.id, next)
	return true
}

func (s *activeSession) getState() domain.SessionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

type noopObserver struct{}

func (noopObserver) SessionStateChanged(string, domain.SessionState) {}
func (noopObserver) FrameSent(string, domain.FrameState, int)         {}
func (noopObserver) PartialTranscript(string, string)                 {}
func (noopObserver) SessionFinished(string, error, time.Duration)     {}
