package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonSTTConnect   ReasonCode = "stt_connect"
	ReasonSTTSend      ReasonCode = "stt_send"
	ReasonSTTFinalize  ReasonCode = "stt_finalize"
	ReasonSTTReconnect ReasonCode = "stt_reconnect"
	ReasonSTTFatal     ReasonCode = "stt_fatal"

	ReasonTTSConnect ReasonCode = "tts_connect"
	ReasonTTSStream  ReasonCode = "tts_stream"
	ReasonTTSDecode  ReasonCode = "tts_decode"
	ReasonTTSVendor  ReasonCode = "tts_vendor_error"

	ReasonAgentQuery  ReasonCode = "agent_query"
	ReasonAgentStream ReasonCode = "agent_stream"

	ReasonTransportSend ReasonCode = "transport_send"
)
