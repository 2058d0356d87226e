package controllers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/campusmarket/communication-service/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The JWT middleware already authenticated the handshake; cross-origin
	// browser clients are expected.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWS handles GET /api/v1/ws - upgrades the connection and registers it
// with the realtime hub so the user receives new_message pushes. The identity
// token travels as the "auth" query parameter because the browser websocket
// handshake cannot carry custom headers.
func ServeWS(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}

	if hub == nil {
		c.PureJSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "LIVE_UNAVAILABLE",
				"message": "Live updates are not available",
			},
		})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error response
		log.Printf("websocket upgrade failed for user %d: %v", user.ID, err)
		return
	}

	client := realtime.NewClient(hub, conn, user.ID)
	hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
