// Package hub fans session updates out to live websocket clients and feeds
// their commands back into the dispatcher.
package hub

import (
	"log/slog"
	"net/http"
	"sync"

	ws "github.com/gorilla/websocket"

	"github.com/ridemap/ridemap/pkg/core"
	"github.com/ridemap/ridemap/pkg/streaming"
)

// CommandFunc executes a client command for a session.
type CommandFunc func(sessionID string, cmd streaming.CommandPayload) (any, error)

// Hub tracks the connected clients of every session. It implements
// session.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}

	upgrader ws.Upgrader
	command  CommandFunc
	logger   *slog.Logger
}

// New creates a hub. command may be nil for a publish-only hub.
func New(command CommandFunc, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		upgrader: ws.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		command: command,
		logger:  logger,
	}
}

// Serve upgrades the request and attaches the connection to sessionID. It
// blocks until the client disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := newClient(sessionID, conn, h.logger)
	h.add(c)
	h.logger.Debug("WebSocket client connected", "sessionId", sessionID)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop()
	}()

	c.readLoop(func(cmd streaming.CommandPayload) {
		h.handleCommand(c, cmd)
	})

	h.remove(c)
	c.close()
	<-writerDone
	_ = conn.Close()
	h.logger.Debug("WebSocket client disconnected", "sessionId", sessionID)
	return nil
}

func (h *Hub) handleCommand(c *client, cmd streaming.CommandPayload) {
	res := streaming.ResultPayload{ID: cmd.ID, Command: cmd.Command}
	if h.command == nil {
		res.Error = "commands are not accepted"
	} else if result, err := h.command(c.sessionID, cmd); err != nil {
		res.Error = err.Error()
	} else {
		res.Result = result
	}

	data, err := streaming.MarshalEnvelope(streaming.TypeResult, res)
	if err != nil {
		h.logger.Error("failed to encode command result", "command", cmd.Command, "error", err)
		return
	}
	c.send(data)
}

// PublishSnapshot sends the snapshot to every client of its session.
func (h *Hub) PublishSnapshot(snap core.Snapshot) {
	h.broadcast(snap.SessionID, streaming.TypeSnapshot, snap)
}

// PublishNotification sends a notification to every client of the session.
func (h *Hub) PublishNotification(sessionID string, n core.Notification) {
	h.broadcast(sessionID, streaming.TypeNotification, n)
}

func (h *Hub) broadcast(sessionID, msgType string, payload any) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.clients[sessionID]
	if len(clients) == 0 {
		return
	}
	data, err := streaming.MarshalEnvelope(msgType, payload)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "type", msgType, "error", err)
		return
	}
	for c := range clients {
		c.send(data)
	}
}

// Clients returns the number of connections attached to sessionID.
func (h *Hub) Clients(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// Disconnect closes every connection of a session.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[sessionID] {
		c.close()
	}
}

// Close closes every connection.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, clients := range h.clients {
		for c := range clients {
			c.close()
		}
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.sessionID]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[c.sessionID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[c.sessionID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.sessionID)
	}
}
