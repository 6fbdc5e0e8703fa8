package domain

// SessionState models the streaming session lifecycle.
type SessionState string

const (
	SessionStateIdle       SessionState = "idle"
	SessionStateConnecting SessionState = "connecting"
	SessionStateStreaming  SessionState = "streaming"
	SessionStateDraining   SessionState = "draining"
	SessionStateClosed     SessionState = "closed"
	SessionStateFailed     SessionState = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s SessionState) Terminal() bool {
	return s == SessionStateClosed || s == SessionStateFailed
}

// FrameState tags the position of an outbound frame in the audio stream.
type FrameState int

const (
	FrameFirst FrameState = iota
	FrameContinue
	FrameLast
)

func (s FrameState) String() string {
	switch s {
	case FrameFirst:
		return "first"
	case FrameContinue:
		return "continue"
	case FrameLast:
		return "last"
	default:
		return "unknown"
	}
}

// InboundMessage is a decoded server response.
type InboundMessage struct {
	Code    int
	Message string
	SID     string
	// Final is set once the server reports the last segment.
	Final  bool
	Result *PartialResult
}

// PartialResult is one recognition guess for a segment of audio.
type PartialResult struct {
	Seq     int
	Replace bool
	// Invalidate lists sequence numbers retracted by this result when Replace is set.
	Invalidate []int
	Words      []string
}

// Transcript is the merged text of all live partial results.
type Transcript struct {
	Text string `json:"text"`
	SID  string `json:"sid,omitempty"`
}
