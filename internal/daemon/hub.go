package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Inbound is one event-channel request from a client.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Outbound is one event-channel message to a client.
type Outbound struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Dispatch handles one inbound message: reply goes back to the caller only,
// broadcast (when non-nil) goes to every other connected client.
type Dispatch func(msg Inbound) (reply Outbound, broadcast *Outbound)

// Hub owns the event-broadcast channel: every connected UI client, the
// heartbeat, and the fan-out of state changes.
type Hub struct {
	logger    *slog.Logger
	dispatch  Dispatch
	snapshot  func() Outbound
	heartbeat time.Duration
	upgrader  websocket.Upgrader

	mu      sync.Mutex
	clients map[*wsClient]bool
	closed  bool
}

// NewHub builds a hub. snapshot produces the STATE_SNAPSHOT pushed on
// connect; dispatch handles everything after that.
func NewHub(logger *slog.Logger, heartbeat time.Duration, snapshot func() Outbound, dispatch Dispatch) *Hub {
	return &Hub{
		logger:    logger,
		dispatch:  dispatch,
		snapshot:  snapshot,
		heartbeat: heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The daemon binds to loopback; UIs connect from local pages.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: map[*wsClient]bool{},
	}
}

type wsClient struct {
	conn *websocket.Conn
	send chan Outbound
	done chan struct{}
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// queue hands a message to the client's writer, dropping it if the client
// is too slow to drain its buffer. A UI that misses a broadcast recovers on
// its next GET_STATE.
func (c *wsClient) queue(msg Outbound) {
	select {
	case c.send <- msg:
	case <-c.done:
	default:
	}
}

// ServeWS upgrades one HTTP request onto the event channel.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan Outbound, 64),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[client] = true
	h.mu.Unlock()

	// New clients get the full state before anything else.
	client.queue(h.snapshot())

	go h.writePump(client)
	h.readPump(client)
}

func (h *Hub) readPump(client *wsClient) {
	defer h.drop(client)

	client.conn.SetReadLimit(1 << 20)
	client.conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(2 * h.heartbeat))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("event channel read", "error", err)
			}
			return
		}

		var msg Inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			client.queue(Outbound{Type: "ERROR", Payload: map[string]any{
				"message":   "malformed message: " + err.Error(),
				"operation": "parse",
			}})
			continue
		}

		reply, broadcast := h.dispatch(msg)
		client.queue(reply)
		if broadcast != nil {
			h.broadcastExcept(client, *broadcast)
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	defer client.close()

	for {
		select {
		case msg := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-client.done:
			return
		}
	}
}

func (h *Hub) drop(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()
}

// Broadcast sends a message to every connected client.
func (h *Hub) Broadcast(msg Outbound) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.queue(msg)
	}
}

func (h *Hub) broadcastExcept(skip *wsClient, msg Outbound) {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		if c != skip {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.queue(msg)
	}
}

// Shutdown tells every client the daemon is going away, waits out the grace
// window for delivery, then closes all sockets. Safe to call more than once.
func (h *Hub) Shutdown(grace time.Duration) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.queue(Outbound{Type: "DAEMON_SHUTTING_DOWN"})
	}
	time.Sleep(grace)
	for _, c := range clients {
		c.close()
	}
}

// ClientCount reports connected event-channel clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
