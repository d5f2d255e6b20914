// Package queue is the message bus used between the post office and the
// producing subsystems: a fire-and-forget send plus a session-scoped receive
// that waits for the reply carrying a given SessionToken.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"postoffice/internal/types"
)

// Message is a bus envelope. Body holds the encoded contract bytes.
type Message struct {
	Type           types.MessageType
	CorrelationID  string
	EventID        string
	SchemaVersion  string
	Session        SessionToken
	ReplyTo        string
	IdempotencyKey string
	Body           []byte
}

// NewMessage builds an envelope with a fresh event id and the correlation
// id carried by ctx (or a new one).
func NewMessage(ctx context.Context, typ types.MessageType, body []byte) Message {
	correlationID := types.GetCorrelationID(ctx)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return Message{
		Type:          typ,
		CorrelationID: correlationID,
		EventID:       uuid.NewString(),
		SchemaVersion: types.SchemaVersion,
		Body:          body,
	}
}

// Validate rejects envelopes this service cannot interpret.
func (m Message) Validate() error {
	if !m.Type.IsValid() {
		return types.NewAppErrorWithDetails(types.ErrCodeProtocolMalformed, "unknown message type", nil,
			map[string]any{"message_type": string(m.Type)})
	}
	if m.SchemaVersion != types.SchemaVersion {
		return types.NewAppErrorWithDetails(types.ErrCodeProtocolMalformed, "unsupported schema version", nil,
			map[string]any{"schema_version": m.SchemaVersion})
	}
	return nil
}

// ErrReceiveTimeout is returned by ReceiveSession when no message for the
// session arrived in time.
var ErrReceiveTimeout = errors.New("queue: no message for session before timeout")

// Sender delivers a message to a named queue.
type Sender interface {
	Send(ctx context.Context, queue string, msg Message) error
}

// SessionReceiver waits for the message tagged with session on a named
// queue. Messages for other sessions stay on the queue. Cancelling ctx ends
// the wait and releases everything the receive acquired.
type SessionReceiver interface {
	ReceiveSession(ctx context.Context, queue string, session SessionToken, timeout time.Duration) (Message, error)
}

// Bus combines both directions.
type Bus interface {
	Sender
	SessionReceiver
}
