// Package protocol implements the wire protocol spoken over the live
// transcription socket: outgoing envelope formatting, incoming message type
// detection, priority-ordered dispatch, and request/response correlation.
//
// The wire format follows the BidiGenerateContent style: every outgoing
// message is a JSON object wrapped in a single well-known top-level field
// (setup, realtimeInput, clientContent, ping) and every incoming message is
// classified by which well-known field it carries.
package protocol

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the protocol-level kind of a message.
type Type string

// Outgoing message types.
const (
	TypeSetup         Type = "setup"
	TypeClientContent Type = "clientContent"
	TypeRealtimeInput Type = "realtimeInput"
	TypePing          Type = "ping"
)

// Incoming message types.
const (
	TypeServerContent Type = "serverContent"
	TypeAudioData     Type = "audioData"
	TypeTurnComplete  Type = "turnComplete"
	TypePong          Type = "pong"
	TypeSetupComplete Type = "setupComplete"
	TypeError         Type = "error"
)

// Priority orders outgoing messages in the dispatch loop. Higher values are
// drained first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent

	numPriorities = 4
)

// String returns the human-readable name of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Message is a single outgoing protocol message. Messages are immutable once
// enqueued: the handler never modifies a message after [Handler.Enqueue].
type Message struct {
	// ID uniquely identifies the message for response correlation.
	ID string

	// Timestamp records when the message was created.
	Timestamp time.Time

	// Type selects the outgoing envelope format.
	Type Type

	// Priority places the message in one of the four dispatch queues.
	Priority Priority

	// Payload holds the type-specific body (see codec.go for the accepted
	// payload shape per type). Unknown types pass through as raw JSON values.
	Payload any
}

// NewMessage creates a message with a fresh UUID and the current time.
func NewMessage(t Type, p Priority, payload any) Message {
	return Message{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      t,
		Priority:  p,
		Payload:   payload,
	}
}
