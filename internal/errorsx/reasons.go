package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonConfig     ReasonCode = "config"
	ReasonTransport  ReasonCode = "transport"
	ReasonProtocol   ReasonCode = "protocol"
	ReasonIncomplete ReasonCode = "incomplete_session"
	ReasonCanceled   ReasonCode = "canceled"
	ReasonAudioRead  ReasonCode = "audio_read"
	ReasonEncode     ReasonCode = "encode"
)
