package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/campusmarket/communication-service/models"
)

// testClient builds a registry-only client; the pumps are never started, so
// frames are read straight from the send channel.
func testClient(hub *Hub, userID uint, buffer int) *Client {
	return &Client{
		ID:     uuid.NewString(),
		UserID: userID,
		hub:    hub,
		send:   make(chan []byte, buffer),
	}
}

func waitForConnections(t *testing.T, hub *Hub, userID uint, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectionCount(userID) != want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, want, hub.ConnectionCount(userID))
}

func receiveFrame(t *testing.T, client *Client) []byte {
	t.Helper()
	select {
	case data, ok := <-client.send:
		if !ok {
			t.Fatal("Send channel closed before a frame arrived")
		}
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for a frame")
		return nil
	}
}

func TestHub_FanOutToParticipants(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	// The sender holds two connections, the receiver one; a third user is
	// connected but not a participant.
	senderTab1 := testClient(hub, 1, 4)
	senderTab2 := testClient(hub, 1, 4)
	receiver := testClient(hub, 2, 4)
	bystander := testClient(hub, 3, 4)

	hub.Register(senderTab1)
	hub.Register(senderTab2)
	hub.Register(receiver)
	hub.Register(bystander)
	waitForConnections(t, hub, 1, 2)
	waitForConnections(t, hub, 2, 1)

	text := "fan out"
	hub.PublishNewMessage(&models.Message{
		ID:         7,
		ResponseID: 42,
		SenderID:   1,
		ReceiverID: 2,
		Text:       &text,
	})

	for _, client := range []*Client{senderTab1, senderTab2, receiver} {
		frame := receiveFrame(t, client)

		var envelope Envelope
		assert.NoError(t, json.Unmarshal(frame, &envelope))
		assert.Equal(t, EnvelopeNewMessage, envelope.Type)

		var msg models.Message
		assert.NoError(t, json.Unmarshal(envelope.Payload, &msg))
		assert.Equal(t, uint(7), msg.ID)
		assert.Equal(t, uint(42), msg.ResponseID)
		assert.Equal(t, "fan out", *msg.Text)
	}

	select {
	case <-bystander.send:
		t.Fatal("Non-participant must not receive the push")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	client := testClient(hub, 1, 4)
	hub.Register(client)
	waitForConnections(t, hub, 1, 1)

	hub.Unregister(client)
	waitForConnections(t, hub, 1, 0)

	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "Send channel should be closed after unregister")
	case <-time.After(time.Second):
		t.Fatal("Send channel was not closed")
	}
}

func TestHub_SlowConsumerDoesNotBlock(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	// A zero-buffer client that nobody drains
	slow := testClient(hub, 2, 0)
	fast := testClient(hub, 2, 8)
	hub.Register(slow)
	hub.Register(fast)
	waitForConnections(t, hub, 2, 2)

	text := "burst"
	for i := 0; i < 5; i++ {
		hub.PublishNewMessage(&models.Message{
			ID:         uint(i + 1),
			ResponseID: 42,
			SenderID:   1,
			ReceiverID: 2,
			Text:       &text,
		})
	}

	// The healthy connection keeps receiving even though its sibling stalls
	for i := 0; i < 5; i++ {
		receiveFrame(t, fast)
	}
}

func TestHub_StopClosesAllClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	first := testClient(hub, 1, 4)
	second := testClient(hub, 2, 4)
	hub.Register(first)
	hub.Register(second)
	waitForConnections(t, hub, 1, 1)
	waitForConnections(t, hub, 2, 1)

	hub.Stop()

	for _, client := range []*Client{first, second} {
		select {
		case _, ok := <-client.send:
			assert.False(t, ok, "Stop should close every send channel")
		case <-time.After(time.Second):
			t.Fatal("Send channel was not closed on Stop")
		}
	}
}

func TestHub_UnregisterAfterStopReturns(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := testClient(hub, 7, 1)
	hub.Register(client)
	waitForConnections(t, hub, 7, 1)

	hub.Stop()

	// The read pump unregisters on its way out even when the connection dies
	// during shutdown; that call must not hang once the registry loop is gone.
	done := make(chan struct{})
	go func() {
		hub.Unregister(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Unregister hung after Stop")
	}
}

func TestHub_RegisterAfterStopRefused(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	hub.Stop()

	client := testClient(hub, 9, 1)
	registered := make(chan struct{})
	go func() {
		hub.Register(client)
		close(registered)
	}()
	select {
	case <-registered:
	case <-time.After(2 * time.Second):
		t.Fatal("Register hung after Stop")
	}

	// The send channel closes so the write pump unwinds instead of waiting
	// on frames that will never come.
	select {
	case _, ok := <-client.send:
		assert.False(t, ok, "Send channel should be closed, not carrying a frame")
	case <-time.After(2 * time.Second):
		t.Fatal("Send channel was not closed for a post-stop register")
	}

	// Publishing after Stop is a no-op, not a deadlock.
	published := make(chan struct{})
	go func() {
		text := "late"
		hub.PublishNewMessage(&models.Message{ID: 1, ResponseID: 42, SenderID: 1, ReceiverID: 2, Text: &text})
		close(published)
	}()
	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("PublishNewMessage hung after Stop")
	}
}

func TestNewMessageEnvelope(t *testing.T) {
	text := "payload check"
	key := "attachments/abc.png"
	data, err := NewMessageEnvelope(&models.Message{
		ID:         12,
		ResponseID: 42,
		SenderID:   1,
		ReceiverID: 2,
		Text:       &text,
		ImageS3Key: &key,
	})
	assert.NoError(t, err)

	var envelope Envelope
	assert.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, EnvelopeNewMessage, envelope.Type)

	var decoded map[string]interface{}
	assert.NoError(t, json.Unmarshal(envelope.Payload, &decoded))
	assert.Equal(t, float64(12), decoded["id"])
	assert.Equal(t, "payload check", decoded["text"])
	assert.Equal(t, key, decoded["image_s3_key"])
}
