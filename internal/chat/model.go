package chat

import "go-ai-chat/internal/llm"

// ---------------------------------------------
// 🔌 Wire Frames (JSON over the websocket)
// ---------------------------------------------

const (
	// Inbound
	FrameJoinGroup = "joinGroup"
	FrameChat      = "chat"

	// Outbound
	FrameNewMessage       = "newMessage"
	FrameNewMessageWithID = "newMessageWithId"
	FrameError            = "error"
)

// Frame is the single JSON shape used in both directions. Message is never
// omitted so a final event with empty text is still explicit.
type Frame struct {
	Type    string `json:"type"`
	Group   string `json:"group,omitempty"`
	Name    string `json:"name,omitempty"`
	ID      string `json:"id,omitempty"`
	Message string `json:"message"`
}

func NewMessageFrame(name, message string) Frame {
	return Frame{Type: FrameNewMessage, Name: name, Message: message}
}

func NewStreamFrame(name, id, text string) Frame {
	return Frame{Type: FrameNewMessageWithID, Name: name, ID: id, Message: text}
}

func NewErrorFrame(message string) Frame {
	return Frame{Type: FrameError, Message: message}
}

// ---------------------------------------------
// ⚡ Coordinator Models
// ---------------------------------------------

// ChatRequest is one inbound chat message from a connection.
type ChatRequest struct {
	ConnectionID string
	UserName     string
	Message      string
	Client       llm.RequestContext
}

// Envelope is a group broadcast in transit, locally or through Redis.
type Envelope struct {
	Group   string   `json:"group"`
	Exclude []string `json:"exclude,omitempty"`
	Frame   Frame    `json:"frame"`
}
