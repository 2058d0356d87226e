package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/campusmarket/communication-service/chat"
)

// WSChannel is a live delivery channel over a websocket connection. It
// implements chat.LiveChannel.
type WSChannel struct {
	conn      *websocket.Conn
	envelopes chan chat.Envelope
	closeOnce sync.Once
}

// ConnectLive dials the service's websocket endpoint. The identity token
// travels as the "auth" query parameter because the handshake cannot carry
// custom headers from a browser-equivalent client. A failed dial means live
// updates are unavailable; the session still works on explicit reloads.
func (c *Client) ConnectLive(ctx context.Context) (*WSChannel, error) {
	endpoint, err := url.Parse(c.baseURL + "/ws")
	if err != nil {
		return nil, fmt.Errorf("client: ws endpoint: %w", err)
	}
	switch endpoint.Scheme {
	case "https":
		endpoint.Scheme = "wss"
	case "http":
		endpoint.Scheme = "ws"
	}
	query := endpoint.Query()
	query.Set("auth", c.token)
	endpoint.RawQuery = query.Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("client: ws dial: %w", err)
	}

	ch := &WSChannel{
		conn:      conn,
		envelopes: make(chan chat.Envelope, 16),
	}
	go ch.readLoop()
	return ch, nil
}

// Envelopes implements chat.LiveChannel. The channel closes when the
// connection drops or Close is called.
func (w *WSChannel) Envelopes() <-chan chat.Envelope {
	return w.envelopes
}

// Close implements chat.LiveChannel. Idempotent.
func (w *WSChannel) Close() error {
	var err error
	w.closeOnce.Do(func() {
		err = w.conn.Close()
	})
	return err
}

// readLoop decodes frames into envelopes. A malformed frame is logged and
// skipped; it must never kill the session.
func (w *WSChannel) readLoop() {
	defer func() {
		_ = w.Close()
		close(w.envelopes)
	}()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("client: ws read: %v", err)
			}
			return
		}

		var env chat.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Printf("client: ws frame parse error: %v", err)
			continue
		}
		w.envelopes <- env
	}
}
