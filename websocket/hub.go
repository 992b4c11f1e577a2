package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// Client is one live voice connection. SessionToken is the server-issued
// identifier for the connection's voice session; the client learns it from
// the session_started event and echoes it back with every clip.
type Client struct {
	Hub          *Hub
	Conn         *websocket.Conn
	Send         chan []byte
	SessionToken string
	// MessageHandler processes one inbound message. ReadPump runs it on
	// its own goroutine so a slow voice turn never blocks the read loop.
	MessageHandler func(*Client, []byte)
	// CloseHandler runs once when the read loop exits, before the client
	// is unregistered.
	CloseHandler func(*Client)
	// turnMu serializes voice turns on this connection: a second clip
	// sent before the first finished waits its turn, so every clip gets
	// exactly one terminal event and replies never interleave.
	turnMu sync.Mutex
}

// Message is the client-to-server frame. The only type clients send is
// "voice_data" with a base64 clip.
type Message struct {
	Type      string `json:"type"`
	Audio     string `json:"audio,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			slog.Info("Client registered", "session_token", client.SessionToken)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			h.mu.Unlock()
			slog.Info("Client unregistered", "session_token", client.SessionToken)
		}
	}
}

// ClientCount reports the number of live connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient wraps an upgraded connection in a Client with a fresh
// session token and adds it to the hub.
func (h *Hub) RegisterClient(conn *websocket.Conn) *Client {
	client := &Client{
		Hub:          h,
		Conn:         conn,
		Send:         make(chan []byte, 256),
		SessionToken: uuid.New().String(),
	}

	h.register <- client
	return client
}

// BeginTurn blocks until no other voice turn is running on this
// connection. Every BeginTurn must be paired with EndTurn.
func (c *Client) BeginTurn() {
	c.turnMu.Lock()
}

func (c *Client) EndTurn() {
	c.turnMu.Unlock()
}

func (c *Client) ReadPump() {
	defer func() {
		if c.CloseHandler != nil {
			c.CloseHandler(c)
		}
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(10 * 1024 * 1024) // 10MB limit for large audio recordings
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			slog.Error("Failed to unmarshal message", "error", err)
			continue
		}

		slog.Info("Message received", "type", msg.Type, "session_token", c.SessionToken, "audio_length", len(msg.Audio))

		if c.MessageHandler != nil {
			// Run message handler asynchronously to avoid blocking
			go c.MessageHandler(c, messageBytes)
		} else {
			slog.Warn("No message handler configured", "type", msg.Type)
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
