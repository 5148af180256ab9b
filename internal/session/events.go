package session

import "time"

// State represents the connection state machine of a recording session.
type State int

const (
	// StateDisconnected is the initial and terminal state.
	StateDisconnected State = iota

	// StateConnecting means the socket is being dialed and the setup
	// handshake is in flight.
	StateConnecting

	// StateConnected means audio frames are streamed to the live endpoint.
	// It is the only state in which frames are forwarded to the protocol
	// handler.
	StateConnected

	// StateDegraded means the live connection is unavailable (quota or
	// exhausted reconnects) and buffered audio is submitted to the batch
	// endpoint instead. Recording continues.
	StateDegraded

	// StateReconnecting means the session is between reconnect attempts.
	StateReconnecting
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// EventKind classifies session events.
type EventKind int

const (
	// EventStateChange reports a state machine transition.
	EventStateChange EventKind = iota

	// EventTranscript delivers a transcription fragment.
	EventTranscript

	// EventError surfaces a non-fatal fault the session recovered from.
	EventError

	// EventStopped is the terminal event, emitted exactly once.
	EventStopped
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventStateChange:
		return "state_change"
	case EventTranscript:
		return "transcript"
	case EventError:
		return "error"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is one item on the session's outbound event stream. Fields beyond
// Kind and Timestamp are populated per kind: State for state changes, the
// transcript fields for transcripts, Err for errors.
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	State State

	Text       string
	IsFinal    bool
	Confidence float64
	Source     string

	Err error
}
