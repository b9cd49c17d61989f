package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher is the producer side of the two-step ingestion protocol: it
// writes updates to the durable log and returns once the stream accepted
// them, whether or not a consumer is currently running.
type Publisher struct {
	js jetstream.JetStream
}

func NewPublisher(ctx context.Context, nc *nats.Conn) (*Publisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if _, err := ensureStream(ctx, js); err != nil {
		return nil, err
	}
	return &Publisher{js: js}, nil
}

func (p *Publisher) PublishUpdate(ctx context.Context, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(ctx, SubjectUpdate, data); err != nil {
		return fmt.Errorf("publish update: %w", err)
	}
	return nil
}

func (p *Publisher) PublishDelete(ctx context.Context, id string) error {
	if id == "" {
		return ErrMissingID
	}
	data, err := json.Marshal(struct {
		ID string `json:"id"`
	}{ID: id})
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(ctx, SubjectDelete, data); err != nil {
		return fmt.Errorf("publish delete: %w", err)
	}
	return nil
}
