package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Consumer reads the location update log and applies it to the presence
// store through the pipeline. Delivery is at-least-once; Apply is a full
// replace per user id, so redelivery is harmless.
type Consumer struct {
	cc jetstream.ConsumeContext
}

// StartConsumer binds a durable consumer to the location stream and starts
// consuming. Malformed payloads are acked and dropped with a log entry; a
// Nak would only redeliver them forever.
func StartConsumer(ctx context.Context, nc *nats.Conn, pipe *Pipeline) (*Consumer, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	stream, err := ensureStream(ctx, js)
	if err != nil {
		return nil, err
	}

	cons, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       durableConsumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer %s: %w", durableConsumer, err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		switch msg.Subject() {
		case SubjectUpdate:
			var u Update
			if err := json.Unmarshal(msg.Data(), &u); err != nil {
				slog.Warn("dropping malformed location update", "error", err)
				_ = msg.Ack()
				return
			}
			if _, err := pipe.Apply(u); err != nil {
				slog.Warn("dropping invalid location update", "user_id", u.ID, "error", err)
				_ = msg.Ack()
				return
			}
			_ = msg.Ack()

		case SubjectDelete:
			var del struct {
				ID string `json:"id"`
			}
			if err := json.Unmarshal(msg.Data(), &del); err != nil || del.ID == "" {
				slog.Warn("dropping malformed location delete", "error", err)
				_ = msg.Ack()
				return
			}
			pipe.Delete(del.ID)
			_ = msg.Ack()

		default:
			_ = msg.Ack()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	slog.Info("location consumer started", "stream", StreamName, "durable", durableConsumer)
	return &Consumer{cc: cc}, nil
}

func (c *Consumer) Stop() {
	c.cc.Stop()
}
