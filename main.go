package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wavelength/internal/api"
	"wavelength/internal/auth"
	"wavelength/internal/config"
	"wavelength/internal/http"
	"wavelength/internal/ingest"
	"wavelength/internal/presence"
	"wavelength/internal/push"
	"wavelength/internal/sse"
	"wavelength/internal/storage"
	"wavelength/internal/ws"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	sessions := auth.NewSessions(ctx, cfg.SessionExpiry)

	store := presence.NewStore(cfg.PresenceTTL)
	sseHub := sse.NewHub(store.Snapshot)
	pipeline := ingest.NewPipeline(store, sseHub.Publish)

	notifier := push.NewNotifier(bbStorage, push.Config{
		Subscriber:      cfg.VAPIDSubscriber,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
	})

	chatHub := ws.NewHub(bbStorage, notifier)

	wsServer := ws.NewServer(sessions, chatHub)
	sseServer := sse.NewServer(sseHub, cfg.HeartbeatInterval)
	apiHandlers := api.New(pipeline, store, sessions, bbStorage)
	apiServer := http.NewAPIServer(apiHandlers, wsServer, sseServer, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Broker-backed ingestion is the authoritative path; without a broker
	// only the direct HTTP path operates.
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL,
			nats.Name("wavelength"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return err
		}
		defer nc.Close()

		consumer, err := ingest.StartConsumer(gCtx, nc, pipeline)
		if err != nil {
			return err
		}
		defer consumer.Stop()
	} else {
		slog.Info("NATS_URL not set, running with direct ingestion only")
	}

	// Presence sweeper
	g.Go(func() error {
		store.RunSweeper(gCtx, cfg.SweepInterval, sseHub.Publish)
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
