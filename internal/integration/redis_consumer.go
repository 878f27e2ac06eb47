package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/drogue-iot/drogue-cloud-sub001/internal/eventbus"
	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// redisConsumer is the LiveConsumer backing a Redis Streams
// consumer group read, the default internal broker's counterpart to
// eventbus.RedisBroker.Publish.
type redisConsumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// NewRedisConsumerFactory builds a ConsumerFactory against client. A
// blank group gets an anonymous auto-generated one, per §4.8 ("the
// requested group, or an anonymous auto-generated one").
func NewRedisConsumerFactory(client *redis.Client) ConsumerFactory {
	return func(ctx context.Context, app, group string) (LiveConsumer, error) {
		stream := eventbus.EventsTopic(app)
		if group == "" {
			group = "anon-" + uuid.NewString()
		}

		if err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
			return nil, fmt.Errorf("creating consumer group %s on %s: %w", group, stream, err)
		}

		return &redisConsumer{
			client:   client,
			stream:   stream,
			group:    group,
			consumer: "integration-" + uuid.NewString(),
		}, nil
	}
}

func isBusyGroupErr(err error) bool {
	return err != nil && err.Error() == "BUSYGROUP Consumer Group name already exists"
}

// Next blocks until the next event, forwarding any application whose
// events attribute matches the subscribed app only (callers filter by
// re-checking env.App, since one stream per app already guarantees
// this, but the check stays explicit per §4.8's wording).
func (c *redisConsumer) Next(ctx context.Context) (event.Envelope, error) {
	for {
		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    1,
			Block:    30 * time.Second,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return event.Envelope{}, err
		}
		for _, stream := range res {
			for _, msg := range stream.Messages {
				env := eventbus.EnvelopeFromValues(msg.Values)
				c.client.XAck(ctx, c.stream, c.group, msg.ID)
				return env, nil
			}
		}
	}
}

func (c *redisConsumer) Close() error {
	return c.client.XGroupDelConsumer(context.Background(), c.stream, c.group, c.consumer).Err()
}
