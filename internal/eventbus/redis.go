package eventbus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/drogue-iot/drogue-cloud-sub001/pkg/event"
)

// RedisBroker is the internal default broker (§4.4): every topic is a
// Redis Stream, `XADD`-ed with a bounded approximate length so a stream
// no application ever reads from doesn't grow unbounded.
type RedisBroker struct {
	client    *redis.Client
	maxLength int64
}

// NewRedisBroker wires client as the internal default broker. maxLength
// caps each stream's approximate length (MAXLEN ~); 0 disables trimming.
func NewRedisBroker(client *redis.Client, maxLength int64) *RedisBroker {
	return &RedisBroker{client: client, maxLength: maxLength}
}

// Publish XADDs env onto the stream named by topic, partitioned by
// app/device via the stream entry's own fields so a consumer can still
// recover ordering per device after a shared read.
func (b *RedisBroker) Publish(ctx context.Context, topic string, env event.Envelope) (Outcome, error) {
	args := &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{
			"app":          env.App,
			"device":       env.Device,
			"channel":      env.Channel,
			"sender":       env.Sender,
			"as_device":    env.AsDevice,
			"content_type": env.ContentType,
			"payload":      env.Payload,
			"partition":    PartitionKey(env.App, env.Device),
		},
	}
	if b.maxLength > 0 {
		args.MaxLen = b.maxLength
		args.Approx = true
	}

	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		return OutcomeRejected, fmt.Errorf("publishing to stream %s: %w", topic, err)
	}
	return OutcomeAccepted, nil
}

// EnvelopeFromValues reconstructs an Envelope from a Redis Stream
// entry's field map, the inverse of the Values built in Publish. Used
// by integration consumers (C8) reading directly off a stream.
func EnvelopeFromValues(values map[string]any) event.Envelope {
	str := func(k string) string {
		v, _ := values[k].(string)
		return v
	}
	var payload []byte
	if v, ok := values["payload"].(string); ok {
		payload = []byte(v)
	}
	return event.Envelope{
		App:         str("app"),
		Device:      str("device"),
		Channel:     str("channel"),
		Sender:      str("sender"),
		AsDevice:    str("as_device"),
		ContentType: str("content_type"),
		Payload:     payload,
	}
}
