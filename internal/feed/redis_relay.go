package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/util"
)

// RedisRelay is a Publisher that also forwards events through a Redis
// channel so subscribers connected to other instances see them.
type RedisRelay struct {
	local     Publisher
	client    *redis.Client
	channel   string
	origin    string
	logger    logrus.FieldLogger
	ready     chan struct{}
	readyOnce sync.Once
}

func NewRedisRelay(local Publisher, client *redis.Client, channel string, logger logrus.FieldLogger) *RedisRelay {
	return &RedisRelay{
		local:   local,
		client:  client,
		channel: channel,
		origin:  util.NewID("node"),
		logger:  logger.WithField("component", "feed.relay"),
		ready:   make(chan struct{}),
	}
}

func (r *RedisRelay) Origin() string { return r.origin }

// Ready is closed once Run holds an active subscription.
func (r *RedisRelay) Ready() <-chan struct{} { return r.ready }

func (r *RedisRelay) Publish(event Event) {
	event.Origin = r.origin
	r.local.Publish(event)

	payload, err := json.Marshal(event)
	if err != nil {
		r.logger.WithError(err).Warn("marshal relayed event")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.logger.WithError(err).WithField("event", event.Type).Warn("relay publish failed")
	}
}

func (r *RedisRelay) Subscribe(topic string) <-chan Event { return r.local.Subscribe(topic) }

func (r *RedisRelay) Unsubscribe(topic string, ch <-chan Event) { r.local.Unsubscribe(topic, ch) }

func (r *RedisRelay) Close() { r.local.Close() }

// Run consumes the Redis channel until ctx is cancelled, re-publishing
// events from other instances locally.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	r.readyOnce.Do(func() { close(r.ready) })
	r.logger.WithField("channel", r.channel).Info("feed relay subscribed")

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.logger.WithError(err).Warn("drop malformed relayed event")
				continue
			}
			if event.Origin == r.origin {
				continue
			}
			r.local.Publish(event)
		}
	}
}
