package chat

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisRelay publishes group broadcasts to a Redis channel so every server
// instance subscribed to it fans them out to its own local members.
// Membership and history stay local to each instance.
type RedisRelay struct {
	hub     *Hub
	redis   *redis.Client
	channel string
	log     zerolog.Logger
}

func NewRedisRelay(hub *Hub, redisClient *redis.Client, channel string, log zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		hub:     hub,
		redis:   redisClient,
		channel: channel,
		log:     log.With().Str("component", "relay").Str("channel", channel).Logger(),
	}
}

func (r *RedisRelay) AddToGroup(connID, group string) {
	r.hub.AddToGroup(connID, group)
}

// Notify stays local: the target connection lives on this instance.
func (r *RedisRelay) Notify(connID string, frame Frame) {
	r.hub.Notify(connID, frame)
}

func (r *RedisRelay) BroadcastToGroup(group string, frame Frame, exclude ...string) {
	env := Envelope{Group: group, Exclude: exclude, Frame: frame}
	payload, err := json.Marshal(env)
	if err != nil {
		r.log.Error().Err(err).Str("group", group).Msg("encode envelope")
		return
	}
	if err := r.redis.Publish(context.Background(), r.channel, payload).Err(); err != nil {
		// Local members still get the event when Redis is unavailable.
		r.log.Error().Err(err).Str("group", group).Msg("redis publish failed, delivering locally")
		r.hub.Deliver(env)
	}
}

// Subscribe forwards envelopes from Redis to the local hub until ctx ends.
func (r *RedisRelay) Subscribe(ctx context.Context) error {
	pubsub := r.redis.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	r.log.Info().Msg("subscribed to redis")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.deliverPayload(msg.Payload); err != nil {
				r.log.Warn().Err(err).Msg("invalid envelope")
			}
		}
	}
}

// deliverPayload decodes one published envelope and fans it out locally.
func (r *RedisRelay) deliverPayload(payload string) error {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return err
	}
	r.hub.Deliver(env)
	return nil
}
