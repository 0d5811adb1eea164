package signaling

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Inbound event names. connect and disconnect are transport-level (socket
// open/close) and have no envelope.
const (
	EventJoin    = "join"
	EventMessage = "message"
	EventSignal  = "signal"
	EventLeave   = "leave"
	EventReport  = "report"
)

// Outbound event names. EventSignal doubles as the outbound name for relayed
// negotiation payloads.
const (
	EventUserCount   = "user-count"
	EventWaiting     = "waiting"
	EventMatchFound  = "match-found"
	EventChatMessage = "chat-message"
	EventUserLeft    = "user-left"
	EventUserJoined  = "user-joined"
	EventReportAck   = "report-ack"
	EventRejected    = "rejected"
)

// Leave reasons. Clients send skip or failure; the server fills in
// disconnected on socket loss and left as the open-floor default.
const (
	ReasonSkip         = "skip"
	ReasonFailure      = "failure"
	ReasonDisconnected = "disconnected"
	ReasonLeft         = "left"
)

// maxReasonRunes bounds a client-supplied leave reason; anything longer falls
// back to the default for the session kind.
const maxReasonRunes = 32

type joinRequest struct {
	// Target selects what to join: null requests a pairing, the open-floor id
	// joins the broadcast room.
	Target      *string  `json:"target"`
	Interests   []string `json:"interests,omitempty"`
	DisplayName string   `json:"displayName,omitempty"`
}

type messageRequest struct {
	Target string `json:"target"`
	Text   string `json:"text"`
}

type signalRequest struct {
	Target string `json:"target"`
	// Payload is opaque negotiation data; the engine forwards it untouched.
	Payload json.RawMessage `json:"payload"`
}

type leaveRequest struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

type reportRequest struct {
	ReportedID string `json:"reportedId"`
	Reason     string `json:"reason,omitempty"`
}

type userCountEvent struct {
	Count int `json:"count"`
}

type matchFoundEvent struct {
	SessionID string `json:"sessionId"`
	Initiator bool   `json:"initiator"`
	// Interests is the shared intersection that produced the match; empty for
	// a fallback match.
	Interests []string `json:"interests"`
}

type chatMessageEvent struct {
	ID                string `json:"id"`
	Text              string `json:"text"`
	SenderDisplayName string `json:"senderDisplayName"`
	// Timestamp is Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

type signalEvent struct {
	Payload  json.RawMessage `json:"payload"`
	SenderID string          `json:"senderId"`
}

type userLeftEvent struct {
	Reason      string `json:"reason"`
	DisplayName string `json:"displayName"`
}

type userJoinedEvent struct {
	DisplayName string `json:"displayName"`
}

type reportAckEvent struct {
	Success bool `json:"success"`
}

type rejectedEvent struct {
	Event  string `json:"event"`
	Reason string `json:"reason"`
}

// decodeStrict unmarshals an event payload, rejecting unknown fields and
// trailing data so malformed frames fail loudly at the protocol boundary
// instead of surfacing as odd handler behavior.
func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}
