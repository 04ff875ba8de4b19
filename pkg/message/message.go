package message

import (
	"time"

	"github.com/google/uuid"
)

// Kind classifies a message for dispatch.
type Kind string

const (
	KindCommand  Kind = "command"
	KindQuery    Kind = "query"
	KindResponse Kind = "response"
	KindEvent    Kind = "event"
	KindError    Kind = "error"
	KindStatus   Kind = "status"
)

// Priority orders messages in the orchestrator queue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank maps a priority to its ordering value. Unknown priorities sort as normal.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityNormal:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// Message is the envelope exchanged between agents. It is immutable after
// construction; reply constructors return new values and copy correlation
// state forward.
type Message struct {
	ID            string            `json:"id"`
	Kind          Kind              `json:"kind"`
	Sender        string            `json:"sender"`
	Recipient     string            `json:"recipient,omitempty"` // empty means broadcast
	Payload       map[string]any    `json:"payload,omitempty"`
	Priority      Priority          `json:"priority"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	ReplyTo       string            `json:"reply_to,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// New constructs a broadcast message with a fresh id and normal priority.
func New(kind Kind, sender string, payload map[string]any) Message {
	return Message{
		ID:        uuid.NewString(),
		Kind:      kind,
		Sender:    sender,
		Payload:   payload,
		Priority:  PriorityNormal,
		Timestamp: time.Now().UTC(),
	}
}

// To returns a copy addressed to the given recipient.
func (m Message) To(recipient string) Message {
	m.Recipient = recipient
	return m
}

// WithPriority returns a copy carrying the given priority.
func (m Message) WithPriority(p Priority) Message {
	m.Priority = p
	return m
}

// WithMetadata returns a copy carrying the given metadata bag.
func (m Message) WithMetadata(md map[string]string) Message {
	m.Metadata = md
	return m
}

// Reply constructs a response addressed back to this message's sender. The
// reply inherits the priority and correlation id; correlation defaults to
// the original message id when unset.
func (m Message) Reply(sender string, payload map[string]any) Message {
	return m.reply(KindResponse, sender, payload, m.Priority)
}

// ReplyAs is Reply with an explicit kind.
func (m Message) ReplyAs(kind Kind, sender string, payload map[string]any) Message {
	return m.reply(kind, sender, payload, m.Priority)
}

// ErrorReply constructs an error response addressed back to this message's
// sender. Error replies are always high priority.
func (m Message) ErrorReply(sender string, errText string, details map[string]any) Message {
	payload := map[string]any{"error": errText}
	if len(details) > 0 {
		payload["details"] = details
	}
	return m.reply(KindError, sender, payload, PriorityHigh)
}

func (m Message) reply(kind Kind, sender string, payload map[string]any, priority Priority) Message {
	correlation := m.CorrelationID
	if correlation == "" {
		correlation = m.ID
	}

	return Message{
		ID:            uuid.NewString(),
		Kind:          kind,
		Sender:        sender,
		Recipient:     m.Sender,
		Payload:       payload,
		Priority:      priority,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlation,
		ReplyTo:       m.ID,
	}
}

// IsBroadcast reports whether the message has no addressed recipient.
func (m Message) IsBroadcast() bool {
	return m.Recipient == ""
}

// IsError reports whether the message carries an error.
func (m Message) IsError() bool {
	return m.Kind == KindError
}

// IsResponseTo reports whether the message answers the given message id.
func (m Message) IsResponseTo(id string) bool {
	return m.ReplyTo == id
}
