package push

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"wavelength/internal/models"
	"wavelength/internal/storage"

	webpush "github.com/SherClockHolmes/webpush-go"
)

type subscriptionStore interface {
	Subscriptions(userID string) ([]storage.DBPushSubscription, error)
	DeleteSubscription(userID, endpoint string) error
}

type Config struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

// Notifier delivers Web Push notifications for direct messages that found
// no live session. Delivery is best effort: a failed push is logged and a
// gone subscription is dropped.
type Notifier struct {
	store   subscriptionStore
	cfg     Config
	enabled bool
}

func NewNotifier(store subscriptionStore, cfg Config) *Notifier {
	return &Notifier{
		store:   store,
		cfg:     cfg,
		enabled: cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "",
	}
}

func (n *Notifier) Enabled() bool {
	return n.enabled
}

// NotifyDirectMessage pushes msg to every subscription registered for
// userID.
func (n *Notifier) NotifyDirectMessage(userID string, msg models.ChatMessage) {
	if !n.enabled {
		return
	}

	subs, err := n.store.Subscriptions(userID)
	if err != nil {
		slog.Warn("failed to load push subscriptions", "user_id", userID, "error", err)
		return
	}

	payload, err := json.Marshal(map[string]string{
		"title": msg.Username,
		"body":  msg.Content,
	})
	if err != nil {
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotification(payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      n.cfg.Subscriber,
			VAPIDPublicKey:  n.cfg.VAPIDPublicKey,
			VAPIDPrivateKey: n.cfg.VAPIDPrivateKey,
			TTL:             60,
		})
		if err != nil {
			slog.Warn("push delivery failed", "user_id", userID, "error", err)
			continue
		}
		if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
			// The push service says this subscription no longer exists.
			if err := n.store.DeleteSubscription(userID, sub.Endpoint); err != nil {
				slog.Warn("failed to drop dead subscription", "user_id", userID, "error", err)
			}
		}
		_ = resp.Body.Close()
	}
}
