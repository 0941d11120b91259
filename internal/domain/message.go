package domain

import "time"

// MessageType discriminates how the broker routes a Message.
type MessageType string

const (
	MessageDirect    MessageType = "DIRECT"
	MessageBroadcast MessageType = "BROADCAST"
	MessageRequest   MessageType = "REQUEST"
	MessageResponse  MessageType = "RESPONSE"
)

// Message is the unit the MessageBroker routes between agents and
// subscribers. A zero To addresses every subscriber of Type.
type Message struct {
	ID            string
	From          string
	To            string
	Type          string
	Kind          MessageType
	Payload       Payload
	Priority      Priority
	Timestamp     time.Time
	CorrelationID string
	ReplyTo       string
}

// IsRequest reports whether responses to this message should be routed back
// via CorrelationID.
func (m Message) IsRequest() bool {
	return m.Kind == MessageRequest && m.CorrelationID != ""
}
