package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/edgevision/inference-api/internal/store"
)

const payloadField = "payload"

// RedisBus implements publish and consume over Redis Streams. Outbound work
// items are XADDed to per-runtime streams; results are read from the two
// inbound streams through a consumer group, which gives at-least-once
// delivery with no ordering across streams.
type RedisBus struct {
	client   *redis.Client
	group    string
	consumer string
}

// NewRedisBus creates a RedisBus from a Redis URL.
func NewRedisBus(redisURL, group string) (*RedisBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisBus{
		client:   redis.NewClient(opts),
		group:    group,
		consumer: "inference-api-" + uuid.NewString(),
	}, nil
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}

// Client exposes the underlying connection for collaborators that share it.
func (b *RedisBus) Client() *redis.Client {
	return b.client
}

func (b *RedisBus) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: map[string]any{payloadField: body},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Run consumes the success and failure streams until ctx is cancelled.
// Messages are acked after handling; a handler reporting the record as
// missing is treated as benign redelivery and acked as well.
func (b *RedisBus) Run(ctx context.Context, handler Handler) error {
	for _, topic := range []string{TopicSuccess, TopicFail} {
		err := b.client.XGroupCreateMkStream(ctx, topic, b.group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return fmt.Errorf("create consumer group on %s: %w", topic, err)
		}
	}

	for {
		streams, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.consumer,
			Streams:  []string{TopicSuccess, TopicFail, ">", ">"},
			Count:    16,
			Block:    5 * time.Second,
		}).Result()
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			slog.Error("bus read failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				b.dispatch(ctx, handler, stream.Stream, msg)
			}
		}
	}
}

func (b *RedisBus) dispatch(ctx context.Context, handler Handler, topic string, msg redis.XMessage) {
	raw, _ := msg.Values[payloadField].(string)

	var err error
	switch topic {
	case TopicSuccess:
		var m SuccessMessage
		if decodeErr := json.Unmarshal([]byte(raw), &m); decodeErr != nil {
			// A payload that cannot be decoded will never succeed; ack it
			// instead of looping.
			slog.Error("dropping undecodable message", "topic", topic, "message_id", msg.ID, "error", decodeErr)
		} else {
			err = handler.Complete(ctx, m.ID, m.Result)
		}
	case TopicFail:
		var m FailMessage
		if decodeErr := json.Unmarshal([]byte(raw), &m); decodeErr != nil {
			slog.Error("dropping undecodable message", "topic", topic, "message_id", msg.ID, "error", decodeErr)
		} else {
			err = handler.Fail(ctx, m.ID)
		}
	}

	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		// Duplicate or late delivery for a record that is gone or already
		// terminal. Ack it so it does not loop.
		slog.Debug("ignoring stale result message", "topic", topic, "message_id", msg.ID)
	default:
		slog.Error("result message failed", "topic", topic, "message_id", msg.ID, "error", err)
		// Leave the message pending for redelivery.
		return
	}

	if err := b.client.XAck(ctx, topic, b.group, msg.ID).Err(); err != nil {
		slog.Error("ack failed", "topic", topic, "message_id", msg.ID, "error", err)
	}
}
