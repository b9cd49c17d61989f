package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"wavelength/internal/ingest"
	"wavelength/internal/models"

	"github.com/nats-io/nats.go"
)

// locpub publishes one location update (or delete) to the durable log. The
// write succeeds even when no consumer is running; the presence store
// catches up once one resumes.
func main() {
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server URL")
	id := flag.String("id", "", "user id (required)")
	lat := flag.Float64("lat", 0, "latitude")
	lon := flag.Float64("lon", 0, "longitude")
	name := flag.String("name", "", "display name")
	status := flag.String("status", "live", "status (live or recent)")
	track := flag.String("track", "", "currently playing track name")
	artist := flag.String("artist", "", "currently playing artist")
	del := flag.Bool("delete", false, "publish a delete event instead of an update")
	flag.Parse()

	if *id == "" {
		fmt.Println("Usage: locpub -id <user> [-lat N -lon N] [-name NAME] [-delete]")
		os.Exit(1)
	}

	nc, err := nats.Connect(*natsURL, nats.Name("locpub"))
	if err != nil {
		fmt.Printf("Error connecting to NATS: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := ingest.NewPublisher(ctx, nc)
	if err != nil {
		fmt.Printf("Error creating publisher: %v\n", err)
		os.Exit(1)
	}

	if *del {
		if err := pub.PublishDelete(ctx, *id); err != nil {
			fmt.Printf("Error publishing delete: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("published delete for %s\n", *id)
		return
	}

	update := ingest.Update{
		ID:          *id,
		Latitude:    lat,
		Longitude:   lon,
		DisplayName: *name,
		Status:      models.PresenceStatus(*status),
	}
	if *track != "" {
		update.CurrentlyPlaying = &models.Track{Name: *track, Artist: *artist}
	}

	if err := pub.PublishUpdate(ctx, update); err != nil {
		fmt.Printf("Error publishing update: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("published update for %s\n", *id)
}
