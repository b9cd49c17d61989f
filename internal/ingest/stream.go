package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

const (
	StreamName    = "LOCATION_UPDATES"
	SubjectUpdate = "location.update"
	SubjectDelete = "location.delete"

	durableConsumer = "presence-ingest"
)

// ensureStream creates or updates the location update log. Producers and
// consumers both call it, so whichever side starts first wins: a producer's
// write is durable even with no consumer running.
func ensureStream(ctx context.Context, js jetstream.JetStream) (jetstream.Stream, error) {
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectUpdate, SubjectDelete},
		Retention: jetstream.LimitsPolicy,
		MaxMsgs:   100000,
		MaxAge:    24 * time.Hour,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return stream, nil
}
