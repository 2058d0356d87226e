package realtime

import (
	"encoding/json"

	"github.com/campusmarket/communication-service/models"
)

// Envelope types delivered over the live channel. Receivers must treat
// unknown types as a no-op.
const (
	EnvelopeNewMessage = "new_message"
)

// Envelope is the tagged wire frame pushed to connected clients. Payload is
// left raw so that receivers decode only the types they recognize.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessageEnvelope wraps a freshly created message for delivery to the
// thread's participants.
func NewMessageEnvelope(msg *models.Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{
		Type:    EnvelopeNewMessage,
		Payload: payload,
	})
}
