package events

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"tracker/internal/tracker"
)

// Message is one server-sent event ready to be written to a stream.
type Message struct {
	ID    string
	Event string
	Data  string
}

// Client is one open event stream owned by a user.
type Client struct {
	ID       string
	UserID   string
	Messages chan Message
}

// Hub fans engine events out to connected users. A client whose buffer is
// full is disconnected so it reconnects and refetches; clients dedupe
// replays by event id.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	buffer  int
	logger  *slog.Logger
}

var _ tracker.Publisher = (*Hub)(nil)

// NewHub creates a hub whose clients buffer up to buffer messages.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: make(map[string]*Client), buffer: buffer, logger: logger}
}

// Register opens a stream for userID.
func (h *Hub) Register(userID string) *Client {
	c := &Client{ID: uuid.NewString(), UserID: userID, Messages: make(chan Message, h.buffer)}
	h.mu.Lock()
	h.clients[c.ID] = c
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("event client registered", slog.String("client_id", c.ID), slog.String("user_id", userID), slog.Int("total", total))
	return c
}

// Unregister closes and forgets a stream.
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		close(c.Messages)
		delete(h.clients, clientID)
		h.logger.Debug("event client unregistered", slog.String("client_id", clientID), slog.Int("total", len(h.clients)))
	}
}

// Publish delivers ev to every stream owned by one of userIDs.
func (h *Hub) Publish(userIDs []string, ev tracker.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode event", slog.String("event", ev.Type), slog.String("error", err.Error()))
		return
	}
	msg := Message{ID: ev.ID, Event: ev.Type, Data: string(data)}

	targets := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		targets[id] = struct{}{}
	}

	var slow []string
	h.mu.RLock()
	for _, c := range h.clients {
		if _, ok := targets[c.UserID]; !ok {
			continue
		}
		select {
		case c.Messages <- msg:
		default:
			slow = append(slow, c.ID)
		}
	}
	h.mu.RUnlock()

	for _, id := range slow {
		h.logger.Warn("event client too slow, closing stream",
			slog.String("client_id", id), slog.String("event_id", ev.ID))
		h.Unregister(id)
	}
}

// Clients reports how many streams are open.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
