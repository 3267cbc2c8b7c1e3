package chat

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRelay_FallsBackToLocalDelivery(t *testing.T) {
	h, _ := startHub(t)
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()
	relay := NewRedisRelay(h, rdb, "groupchat", zerolog.Nop())

	c1 := newTestClient("C1", 8)
	c2 := newTestClient("C2", 8)
	h.Register(c1)
	h.Register(c2)
	relay.AddToGroup("C1", "lobby")
	relay.AddToGroup("C2", "lobby")

	relay.BroadcastToGroup("lobby", NewMessageFrame("C1", "hello"), "C1")
	relay.Notify("C1", NewErrorFrame("oops"))
	h.Stats()

	got := drain(c2)
	require.Len(t, got, 1)
	assert.Equal(t, NewMessageFrame("C1", "hello"), got[0])

	notes := drain(c1)
	require.Len(t, notes, 1)
	assert.Equal(t, FrameError, notes[0].Type)
}

func TestRedisRelay_DeliverPayload(t *testing.T) {
	h, _ := startHub(t)
	relay := NewRedisRelay(h, nil, "groupchat", zerolog.Nop())

	c1 := newTestClient("C1", 8)
	c2 := newTestClient("C2", 8)
	other := newTestClient("C3", 8)
	for c, g := range map[*Client]string{c1: "lobby", c2: "lobby", other: "random"} {
		h.Register(c)
		h.AddToGroup(c.ID, g)
	}

	payload, err := json.Marshal(Envelope{
		Group:   "lobby",
		Exclude: []string{"C1"},
		Frame:   NewStreamFrame("assistant", "s1", "partial"),
	})
	require.NoError(t, err)

	require.NoError(t, relay.deliverPayload(string(payload)))
	assert.Error(t, relay.deliverPayload("not json"))
	h.Stats()

	assert.Empty(t, drain(c1))
	assert.Empty(t, drain(other))
	got := drain(c2)
	require.Len(t, got, 1)
	assert.Equal(t, NewStreamFrame("assistant", "s1", "partial"), got[0])
}

// Runs against a real Redis when TEST_REDIS_ADDR is set.
func TestRedisRelay_FansOutAcrossInstances(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	channel := "groupchat-test-" + uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hubA, _ := startHub(t)
	hubB, _ := startHub(t)
	relayA := NewRedisRelay(hubA, rdb, channel, zerolog.Nop())
	relayB := NewRedisRelay(hubB, rdb, channel, zerolog.Nop())
	go relayA.Subscribe(ctx)
	go relayB.Subscribe(ctx)

	require.Eventually(t, func() bool {
		subs, err := rdb.PubSubNumSub(ctx, channel).Result()
		return err == nil && subs[channel] == 2
	}, 5*time.Second, 20*time.Millisecond)

	sender := newTestClient("C1", 8)
	hubA.Register(sender)
	relayA.AddToGroup("C1", "lobby")
	remote := newTestClient("C2", 8)
	hubB.Register(remote)
	relayB.AddToGroup("C2", "lobby")

	relayA.BroadcastToGroup("lobby", NewMessageFrame("C1", "hello"), "C1")

	var got []Frame
	require.Eventually(t, func() bool {
		got = append(got, drain(remote)...)
		return len(got) == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, NewMessageFrame("C1", "hello"), got[0])
	assert.Empty(t, drain(sender))
}
