package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	DBFile            string
	APIAddr           string
	NATSURL           string
	PresenceTTL       time.Duration
	SweepInterval     time.Duration
	HeartbeatInterval time.Duration
	SessionExpiry     time.Duration
	VAPIDPublicKey    string
	VAPIDPrivateKey   string
	VAPIDSubscriber   string
}

func Load() (*Config, error) {
	presenceTTL, err := time.ParseDuration(getEnv("PRESENCE_TTL", "300s"))
	if err != nil {
		return nil, fmt.Errorf("invalid PRESENCE_TTL: %w", err)
	}

	sweepInterval, err := time.ParseDuration(getEnv("SWEEP_INTERVAL", "300s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SWEEP_INTERVAL: %w", err)
	}

	heartbeat, err := time.ParseDuration(getEnv("HEARTBEAT_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid HEARTBEAT_INTERVAL: %w", err)
	}

	sessionExpiry, err := time.ParseDuration(getEnv("SESSION_EXPIRY", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_EXPIRY: %w", err)
	}

	cfg := &Config{
		DBFile:            getEnv("WAVELENGTH_DB", "wavelength.db"),
		APIAddr:           getEnv("API_ADDR", ":8080"),
		NATSURL:           os.Getenv("NATS_URL"), // empty disables the broker path
		PresenceTTL:       presenceTTL,
		SweepInterval:     sweepInterval,
		HeartbeatInterval: heartbeat,
		SessionExpiry:     sessionExpiry,
		VAPIDPublicKey:    os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey:   os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubscriber:   getEnv("VAPID_SUBSCRIBER", "mailto:ops@wavelength.app"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PresenceTTL <= 0 {
		return fmt.Errorf("PRESENCE_TTL must be greater than 0")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be greater than 0")
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be greater than 0")
	}
	if c.SessionExpiry <= 0 {
		return fmt.Errorf("SESSION_EXPIRY must be greater than 0")
	}
	if (c.VAPIDPublicKey == "") != (c.VAPIDPrivateKey == "") {
		return fmt.Errorf("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
