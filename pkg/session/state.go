package session

// State is the lifecycle phase of a voice session.
type State int

const (
	StateIdle State = iota
	StateListening
	StateProcessing
	StateSpeaking
)

// String returns the wire representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}
