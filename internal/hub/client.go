package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/ridemap/ridemap/pkg/streaming"
)

const (
	sendChSize     = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// client manages one WebSocket connection with a single write goroutine.
type client struct {
	sessionID string
	conn      *ws.Conn
	sendCh    chan []byte

	mu     sync.Mutex
	done   chan struct{} // closed on shutdown
	closed bool

	logger *slog.Logger
}

func newClient(sessionID string, conn *ws.Conn, logger *slog.Logger) *client {
	return &client{
		sessionID: sessionID,
		conn:      conn,
		sendCh:    make(chan []byte, sendChSize),
		done:      make(chan struct{}),
		logger:    logger.With("sessionId", sessionID),
	}
}

// writeLoop drains sendCh and writes messages to the WebSocket. It also
// pings the peer so dead connections are noticed by the read deadline.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, ""))
			// Unblock readLoop if the peer never answers the close frame.
			_ = c.conn.SetReadDeadline(time.Now().Add(writeWait))
			return
		case data := <-c.sendCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				c.close()
				return
			}
			if err := c.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.logger.Warn("WebSocket write error", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("WebSocket ping failed", "error", err)
				c.close()
				return
			}
		}
	}
}

// readLoop decodes command envelopes and hands them to handle. It returns
// when the peer goes away.
func (c *client) readLoop(handle func(streaming.CommandPayload)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				c.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var env streaming.Envelope
		if err := json.Unmarshal(message, &env); err != nil || env.Type != streaming.TypeCommand {
			c.logger.Debug("Non-command message received", "raw", string(message))
			continue
		}
		var cmd streaming.CommandPayload
		if err := json.Unmarshal(env.Payload, &cmd); err != nil {
			c.logger.Debug("Malformed command payload", "error", err)
			continue
		}
		handle(cmd)
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *client) send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// close stops the write loop, which sends a close frame on its way out.
func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}
