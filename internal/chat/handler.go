package chat

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-ai-chat/internal/llm"
	myMiddleware "go-ai-chat/internal/middleware"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // The chat page may be served from another origin.
	},
}

type Handler struct {
	hub        *Hub
	dispatcher Dispatcher
	log        zerolog.Logger
}

func NewHandler(hub *Hub, dispatcher Dispatcher, log zerolog.Logger) *Handler {
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		log:        log,
	}
}

// ServeWs upgrades the request and starts the client's pumps.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	rc := llm.RequestContext{SourceIP: myMiddleware.SourceIP(r.Context())}
	client := NewClient(uuid.New().String(), h.hub, conn, h.dispatcher, rc, h.log)
	h.hub.Register(client)

	// These run in new goroutines, ServeWs returns immediately.
	go client.WritePump()
	go client.ReadPump()
}
