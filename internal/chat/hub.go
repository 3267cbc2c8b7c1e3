package chat

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"go-ai-chat/internal/metrics"
)

// Hub is the local fan-out substrate. Its Run loop is the only goroutine that
// touches clients and groups, so neither needs a lock.
type Hub struct {
	clients map[string]*Client
	groups  map[string]map[*Client]bool
	// group each client was last added to
	memberOf map[*Client]string

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	broadcast  chan Envelope
	direct     chan directMessage
	stats      chan chan Stats
	done       chan struct{}

	onDisconnect func(connID string)
	log          zerolog.Logger
}

type joinRequest struct {
	connID string
	group  string
}

type directMessage struct {
	connID string
	frame  Frame
}

type Stats struct {
	Groups  int `json:"groups"`
	Clients int `json:"clients"`
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		groups:     make(map[string]map[*Client]bool),
		memberOf:   make(map[*Client]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		broadcast:  make(chan Envelope),
		direct:     make(chan directMessage),
		stats:      make(chan chan Stats),
		done:       make(chan struct{}),
		log:        log.With().Str("component", "hub").Logger(),
	}
}

// OnDisconnect sets the callback invoked once per removed client. It must be
// set before Run and must not call back into the hub.
func (h *Hub) OnDisconnect(fn func(connID string)) {
	h.onDisconnect = fn
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, c := range h.clients {
				h.remove(c)
			}
			return

		case client := <-h.register:
			h.clients[client.ID] = client
			metrics.ConnectionsActive.Inc()

		case client := <-h.unregister:
			// Always check they exist to avoid double-close panics
			if _, ok := h.clients[client.ID]; ok {
				h.remove(client)
			}

		case req := <-h.join:
			client, ok := h.clients[req.connID]
			if !ok {
				continue
			}
			h.leaveGroup(client)
			members, ok := h.groups[req.group]
			if !ok {
				members = make(map[*Client]bool)
				h.groups[req.group] = members
			}
			members[client] = true
			h.memberOf[client] = req.group

		case env := <-h.broadcast:
			h.fanOut(env)

		case msg := <-h.direct:
			if client, ok := h.clients[msg.connID]; ok {
				h.deliver(client, encodeFrame(msg.frame))
			}

		case reply := <-h.stats:
			reply <- Stats{Groups: len(h.groups), Clients: len(h.clients)}
		}
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// AddToGroup moves the connection into group, leaving its previous group.
func (h *Hub) AddToGroup(connID, group string) {
	select {
	case h.join <- joinRequest{connID: connID, group: group}:
	case <-h.done:
	}
}

// BroadcastToGroup delivers frame to every member of group except the
// excluded connections. Delivery is best-effort per member.
func (h *Hub) BroadcastToGroup(group string, frame Frame, exclude ...string) {
	h.Deliver(Envelope{Group: group, Exclude: exclude, Frame: frame})
}

func (h *Hub) Deliver(env Envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	}
}

// Notify sends frame to a single connection if it is still registered here.
func (h *Hub) Notify(connID string, frame Frame) {
	select {
	case h.direct <- directMessage{connID: connID, frame: frame}:
	case <-h.done:
	}
}

func (h *Hub) Stats() Stats {
	reply := make(chan Stats, 1)
	select {
	case h.stats <- reply:
		return <-reply
	case <-h.done:
		return Stats{}
	}
}

func (h *Hub) fanOut(env Envelope) {
	members, ok := h.groups[env.Group]
	if !ok {
		return
	}
	payload := encodeFrame(env.Frame)
	for client := range members {
		if excluded(client.ID, env.Exclude) {
			continue
		}
		h.deliver(client, payload)
	}
}

// deliver drops a client whose buffer is full instead of blocking the loop.
func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		metrics.BroadcastDropsTotal.Inc()
		h.log.Warn().Str("connection", client.ID).Msg("send buffer full, dropping client")
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.leaveGroup(client)
	delete(h.clients, client.ID)
	close(client.Send) // stops the writePump
	metrics.ConnectionsActive.Dec()
	if h.onDisconnect != nil {
		h.onDisconnect(client.ID)
	}
}

func (h *Hub) leaveGroup(client *Client) {
	group, ok := h.memberOf[client]
	if !ok {
		return
	}
	delete(h.memberOf, client)
	if members, ok := h.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

func excluded(id string, exclude []string) bool {
	for _, e := range exclude {
		if e == id {
			return true
		}
	}
	return false
}

func encodeFrame(f Frame) []byte {
	// Frame holds only strings, so encoding cannot fail.
	b, _ := json.Marshal(f)
	return b
}
