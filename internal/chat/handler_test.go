package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-ai-chat/internal/group"
	"go-ai-chat/internal/history"
	myMiddleware "go-ai-chat/internal/middleware"
	"go-ai-chat/internal/stream"
)

type wsEnv struct {
	server     *httptest.Server
	membership *group.Membership
	history    *history.Store
	coord      *Coordinator
}

func newWSEnv(t *testing.T, gen *fakeGenerator) *wsEnv {
	t.Helper()
	log := zerolog.Nop()
	hub := NewHub(log)
	membership := group.NewMembership()
	store := history.NewStore(0)
	coord := NewCoordinator(Deps{
		Membership:  membership,
		History:     store,
		Coalescer:   stream.NewCoalescer(stream.DefaultThreshold),
		Generator:   gen,
		Broadcaster: hub,
		Log:         log,
	}, Options{AssistantPrefix: "@gpt", AssistantName: "assistant", Model: "m", GenerationTimeout: 5 * time.Second})
	hub.OnDisconnect(coord.Disconnect)

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	handler := NewHandler(hub, coord, log)
	srv := httptest.NewServer(myMiddleware.NewClientContext(false).Handle(http.HandlerFunc(handler.ServeWs)))
	t.Cleanup(func() {
		srv.Close()
		coord.Wait()
		cancel()
	})
	return &wsEnv{server: srv, membership: membership, history: store, coord: coord}
}

func (e *wsEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f Frame) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(f))
}

func receive(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestServeWs_GroupChatWithAssistant(t *testing.T) {
	env := newWSEnv(t, &fakeGenerator{fragments: []string{"4", " is", " the", " answer"}})
	c1 := env.dial(t)
	c2 := env.dial(t)

	send(t, c1, Frame{Type: FrameJoinGroup, Group: "lobby"})
	send(t, c2, Frame{Type: FrameJoinGroup, Group: "lobby"})
	require.Eventually(t, func() bool { return env.membership.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	send(t, c1, Frame{Type: FrameChat, Name: "C1", Message: "hello"})
	assert.Equal(t, NewMessageFrame("C1", "hello"), receive(t, c2))

	send(t, c1, Frame{Type: FrameChat, Name: "C1", Message: "@gpt what is 2+2?"})
	assert.Equal(t, NewMessageFrame("C1", "@gpt what is 2+2?"), receive(t, c2))

	final2 := receive(t, c2)
	assert.Equal(t, FrameNewMessageWithID, final2.Type)
	assert.Equal(t, "assistant", final2.Name)
	assert.Equal(t, "4 is the answer", final2.Message)

	// The sender gets the assistant reply but never its own messages.
	final1 := receive(t, c1)
	assert.Equal(t, final2, final1)

	env.coord.Wait()
	assert.Equal(t, []history.Turn{
		{Speaker: history.SpeakerUser, Name: "C1", Text: "hello"},
		{Speaker: history.SpeakerUser, Name: "C1", Text: "what is 2+2?"},
		{Speaker: history.SpeakerAssistant, Text: "4 is the answer"},
	}, env.history.Turns("lobby"))
}

func TestServeWs_ChatWithoutJoin(t *testing.T) {
	env := newWSEnv(t, &fakeGenerator{})
	c1 := env.dial(t)

	send(t, c1, Frame{Type: FrameChat, Name: "C1", Message: "hello"})

	f := receive(t, c1)
	assert.Equal(t, FrameError, f.Type)
	assert.Equal(t, ErrNotInGroup.Error(), f.Message)
	assert.Equal(t, 0, env.history.Groups())
}

func TestServeWs_InvalidFrame(t *testing.T) {
	env := newWSEnv(t, &fakeGenerator{})
	c1 := env.dial(t)

	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte("not json")))

	f := receive(t, c1)
	assert.Equal(t, FrameError, f.Type)
}

func TestServeWs_DisconnectLeavesGroup(t *testing.T) {
	env := newWSEnv(t, &fakeGenerator{})
	c1 := env.dial(t)
	c2 := env.dial(t)
	send(t, c1, Frame{Type: FrameJoinGroup, Group: "lobby"})
	send(t, c2, Frame{Type: FrameJoinGroup, Group: "lobby"})
	require.Eventually(t, func() bool { return env.membership.Len() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c2.Close())

	require.Eventually(t, func() bool { return env.membership.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	send(t, c1, Frame{Type: FrameChat, Name: "C1", Message: "anyone?"})
	require.Eventually(t, func() bool { return len(env.history.Turns("lobby")) == 1 }, 2*time.Second, 10*time.Millisecond)
}
