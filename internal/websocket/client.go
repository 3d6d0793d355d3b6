package websocket

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 16
)

type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// NewClient builds a client without a connection, for registering on a hub
// in tests or in-process consumers.
func NewClient(buffer int) *Client {
	return &Client{send: make(chan []byte, buffer)}
}

// Messages exposes the outbound queue.
func (c *Client) Messages() <-chan []byte {
	return c.send
}

// Upgrader accepts connections from the configured origins; "*" allows any.
func Upgrader(allowedOrigins string) websocket.Upgrader {
	origins := strings.Split(allowedOrigins, ",")
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range origins {
				allowed = strings.TrimSpace(allowed)
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

func ServeWS(w http.ResponseWriter, r *http.Request, hub *Hub, upgrader websocket.Upgrader, ownerID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithField("owner_id", ownerID).Debug("Websocket upgrade failed")
		return
	}
	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	hub.Register(ownerID, client)
	go client.writePump(hub, ownerID)
	client.readPump(hub, ownerID)
}

func (c *Client) readPump(hub *Hub, ownerID string) {
	defer func() {
		hub.Unregister(ownerID, c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump(hub *Hub, ownerID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		hub.Unregister(ownerID, c)
		_ = c.conn.Close()
	}()
	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
