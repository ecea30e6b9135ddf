package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"AquaWallet/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// envelope is the pub/sub payload shared by every instance.
type envelope struct {
	UserID string      `json:"userId"`
	Event  model.Event `json:"event"`
}

// RedisPusher fans pushes out to all instances through a Redis channel. Each
// instance runs a Subscriber that hands the event to its local Hub.
type RedisPusher struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisPusher(rdb *redis.Client, channel string, logger *zap.Logger) *RedisPusher {
	return &RedisPusher{rdb: rdb, channel: channel, logger: logger.Named("redis_pusher")}
}

// Push reports true when at least one instance is subscribed. Whether that
// instance holds a session for the user is not known here.
func (p *RedisPusher) Push(ctx context.Context, userID string, event model.Event) bool {
	payload, err := json.Marshal(envelope{UserID: userID, Event: event})
	if err != nil {
		p.logger.Error("failed to encode push", zap.Error(err))
		return false
	}
	receivers, err := p.rdb.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		p.logger.Warn("failed to publish push",
			zap.String("user_id", userID),
			zap.String("event", string(event.Name)),
			zap.Error(err))
		return false
	}
	return receivers > 0
}

type Subscriber struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	pubsub  *redis.PubSub
	logger  *zap.Logger
}

func NewSubscriber(rdb *redis.Client, channel string, hub *Hub, logger *zap.Logger) *Subscriber {
	return &Subscriber{rdb: rdb, channel: channel, hub: hub, logger: logger.Named("redis_subscriber")}
}

// Start subscribes and forwards events to the hub until ctx is done.
func (s *Subscriber) Start(ctx context.Context) error {
	s.pubsub = s.rdb.Subscribe(ctx, s.channel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	s.logger.Info("subscribed", zap.String("channel", s.channel))

	go s.listen(ctx)
	return nil
}

func (s *Subscriber) listen(ctx context.Context) {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Warn("failed to decode push", zap.Error(err))
				continue
			}
			s.hub.Push(ctx, env.UserID, env.Event)
		}
	}
}
