package realtime

import (
	"log"
	"sync"

	"github.com/campusmarket/communication-service/models"
)

// outbound is one frame addressed to every open connection of each recipient.
type outbound struct {
	recipients []uint
	data       []byte
}

// Hub tracks open websocket connections per authenticated user and fans new
// message envelopes out to thread participants. A user may hold several
// connections (multiple tabs); all of them receive every push.
type Hub struct {
	mu      sync.RWMutex
	clients map[uint]map[string]*Client // user id -> connection id -> client

	registerChan   chan *Client
	unregisterChan chan *Client
	publishChan    chan outbound
	done           chan struct{}
}

// NewHub creates a hub. Call Run in its own goroutine before registering
// clients.
func NewHub() *Hub {
	return &Hub{
		clients:        make(map[uint]map[string]*Client),
		registerChan:   make(chan *Client),
		unregisterChan: make(chan *Client),
		publishChan:    make(chan outbound, 16),
		done:           make(chan struct{}),
	}
}

// Run owns the client registry. It exits when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.registerChan:
			h.mu.Lock()
			conns := h.clients[client.UserID]
			if conns == nil {
				conns = make(map[string]*Client)
				h.clients[client.UserID] = conns
			}
			conns[client.ID] = client
			h.mu.Unlock()
			log.Printf("realtime: user %d connected (%s)", client.UserID, client.ID)

		case client := <-h.unregisterChan:
			h.mu.Lock()
			if conns, ok := h.clients[client.UserID]; ok {
				if _, ok := conns[client.ID]; ok {
					delete(conns, client.ID)
					close(client.send)
					if len(conns) == 0 {
						delete(h.clients, client.UserID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("realtime: user %d disconnected (%s)", client.UserID, client.ID)

		case out := <-h.publishChan:
			h.mu.RLock()
			for _, userID := range out.recipients {
				for _, client := range h.clients[userID] {
					select {
					case client.send <- out.data:
					default:
						// Slow consumer; drop the frame rather than block
						// the hub. The client still has explicit reloads.
						log.Printf("realtime: dropping frame for slow consumer %s", client.ID)
					}
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for _, conns := range h.clients {
				for _, client := range conns {
					close(client.send)
				}
			}
			h.clients = make(map[uint]map[string]*Client)
			h.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and closes every client send channel.
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a client to the registry. After Stop the client is refused:
// its send channel is closed immediately so the pumps unwind.
func (h *Hub) Register(client *Client) {
	select {
	case h.registerChan <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client and closes its send channel. Safe to call more
// than once for the same client, and returns immediately after Stop (the
// shutdown path already closed every registered send channel).
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregisterChan <- client:
	case <-h.done:
	}
}

// PublishNewMessage pushes a new_message envelope to both participants of the
// message's thread. Marshal failures are logged and dropped; a bad frame must
// never take the hub down.
func (h *Hub) PublishNewMessage(msg *models.Message) {
	data, err := NewMessageEnvelope(msg)
	if err != nil {
		log.Printf("realtime: failed to encode message %d: %v", msg.ID, err)
		return
	}
	select {
	case h.publishChan <- outbound{
		recipients: []uint{msg.SenderID, msg.ReceiverID},
		data:       data,
	}:
	case <-h.done:
	}
}

// ConnectionCount reports how many connections a user currently holds.
func (h *Hub) ConnectionCount(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}
