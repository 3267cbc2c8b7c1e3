package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-ai-chat/internal/llm"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
	maxMessageSize = 4096                // Maximum message size allowed from peer.
	sendBufferSize = 256
)

// Dispatcher handles the requests a client reads off its socket.
type Dispatcher interface {
	Join(connID, group string) error
	Chat(ctx context.Context, req ChatRequest) error
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	ID   string
	Hub  *Hub
	Conn *websocket.Conn
	// Buffered channel of outbound messages.
	Send chan []byte

	dispatcher Dispatcher
	requestCtx llm.RequestContext
	log        zerolog.Logger
}

func NewClient(id string, hub *Hub, conn *websocket.Conn, dispatcher Dispatcher, rc llm.RequestContext, log zerolog.Logger) *Client {
	return &Client{
		ID:         id,
		Hub:        hub,
		Conn:       conn,
		Send:       make(chan []byte, sendBufferSize),
		dispatcher: dispatcher,
		requestCtx: rc,
		log:        log.With().Str("connection", id).Logger(),
	}
}

// ReadPump pumps frames from the websocket connection to the dispatcher.
func (c *Client) ReadPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		// Cleanup: if the connection dies, tell the Hub to unregister
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("read error")
			}
			return
		}
		c.handle(ctx, data)
	}
}

func (c *Client) handle(ctx context.Context, data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Warn().Err(err).Msg("invalid frame")
		c.Hub.Notify(c.ID, NewErrorFrame("invalid frame"))
		return
	}

	var err error
	switch frame.Type {
	case FrameJoinGroup:
		err = c.dispatcher.Join(c.ID, frame.Group)
	case FrameChat:
		err = c.dispatcher.Chat(ctx, ChatRequest{
			ConnectionID: c.ID,
			UserName:     frame.Name,
			Message:      frame.Message,
			Client:       c.requestCtx,
		})
	default:
		c.log.Debug().Str("type", frame.Type).Msg("ignoring unknown frame")
		return
	}

	if err != nil {
		c.log.Info().Err(err).Str("type", frame.Type).Msg("request failed")
		msg := "request failed"
		if errors.Is(err, ErrNotInGroup) || errors.Is(err, ErrEmptyGroup) {
			msg = err.Error()
		}
		c.Hub.Notify(c.ID, NewErrorFrame(msg))
	}
}

// WritePump pumps messages from the hub to the websocket connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The Hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One frame per message: clients parse each text message as a single JSON object.
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
