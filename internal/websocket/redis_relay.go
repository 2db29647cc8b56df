package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/promptgallery/gallery-backend/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultRelayChannel is the redis channel API instances fan events through
const DefaultRelayChannel = "gallery:events"

// redisClient is the subset of *redis.Client the relay uses
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// relayEnvelope wraps an event on the redis channel
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// RedisRelay publishes events to the local hub and to every other API
// instance subscribed to the same redis channel.
type RedisRelay struct {
	client       redisClient
	hub          *Hub
	origin       string
	redisChannel string
	logger       zerolog.Logger
}

var _ EventPublisher = (*RedisRelay)(nil)

// NewRedisRelay creates a relay for hub over client
func NewRedisRelay(client redisClient, hub *Hub, redisChannel string) *RedisRelay {
	if redisChannel == "" {
		redisChannel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:       client,
		hub:          hub,
		origin:       uuid.New().String(),
		redisChannel: redisChannel,
		logger:       log.With().Str("component", "realtime_relay").Logger(),
	}
}

// Publish broadcasts locally, then forwards the event to other instances.
// A redis failure is logged; local subscribers are still served.
func (r *RedisRelay) Publish(channel string, event Event) {
	data, err := event.ToJSON()
	if err != nil {
		r.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to serialize event")
		return
	}
	metrics.EventsPublished.WithLabelValues("local").Inc()
	r.hub.BroadcastRaw(channel, data)

	payload, err := json.Marshal(relayEnvelope{Origin: r.origin, Channel: channel, Data: data})
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to wrap event for relay")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.redisChannel, payload).Err(); err != nil {
		r.logger.Warn().Err(err).Str("event_type", event.Type).Msg("Failed to relay event")
	}
}

// Run subscribes to the relay channel and rebroadcasts events published by
// other instances. It blocks until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	pubsub := r.client.Subscribe(ctx, r.redisChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.redisChannel, err)
	}
	r.logger.Info().Str("channel", r.redisChannel).Msg("Realtime relay subscribed")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.handleMessage([]byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) handleMessage(payload []byte) {
	var env relayEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		r.logger.Warn().Err(err).Msg("Dropping malformed relay message")
		return
	}
	if env.Origin == r.origin {
		return
	}
	metrics.EventsPublished.WithLabelValues("relay").Inc()
	r.hub.BroadcastRaw(env.Channel, env.Data)
}
