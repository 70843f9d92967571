package chat

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"community-chat/internal/protocol"
	"community-chat/internal/ratelimit"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one principal's live websocket channel. The read pump feeds
// the server's dispatcher; the write pump drains the send buffer.
type Client struct {
	server      *Server
	conn        *websocket.Conn
	userID      uuid.UUID
	username    string
	connID      string
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	limiter     *ratelimit.Limiter
	lastWarning time.Time
}

func NewClient(server *Server, conn *websocket.Conn, userID uuid.UUID, username string) *Client {
	return &Client{
		server:   server,
		conn:     conn,
		userID:   userID,
		username: username,
		connID:   uuid.NewString(),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		limiter:  ratelimit.New(5, 500*time.Millisecond),
	}
}

func (c *Client) ID() uuid.UUID        { return c.userID }
func (c *Client) Name() string         { return c.username }
func (c *Client) ConnectionID() string { return c.connID }

// Send enqueues an encoded event without blocking. False means the
// buffer is full or the channel already shut down.
func (c *Client) Send(event protocol.ServerEvent) bool {
	data, err := event.Encode()
	if err != nil {
		log.Printf("[WS] Encode error for %s: %v", c.username, err)
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// CloseSlow force-closes the connection; the read pump's exit path runs
// the usual disconnect cleanup.
func (c *Client) CloseSlow() {
	c.shutdown()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *Client) ReadPump() {
	defer func() {
		c.server.Disconnect(c)
		c.shutdown()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Unexpected close from %s: %v", c.username, err)
			}
			break
		}

		if !c.limiter.Allow() {
			if time.Since(c.lastWarning) > 3*time.Second {
				if c.Send(protocol.NewError("rate_limited", "slow down")) {
					c.lastWarning = time.Now()
				}
			}
			continue
		}

		c.server.HandleEvent(c, raw)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain whatever queued up behind this frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
