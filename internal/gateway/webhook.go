package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	"registration-service/internal/models"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

// VerifyWebhook checks the Stripe-Signature header against the configured
// signing secret and converts the payload into a tagged ProviderEvent.
// No field of the payload is trusted before this succeeds.
func VerifyWebhook(payload []byte, sigHeader, secret string) (models.ProviderEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return models.ProviderEvent{}, fmt.Errorf("webhook signature verification failed: %w", err)
	}
	return parseEvent(event.ID, string(event.Type), event.Created, event.Data.Raw)
}

// ParseUnverifiedWebhook parses a payload without signature verification.
// Only the explicitly-flagged local-development bypass may call this.
func ParseUnverifiedWebhook(payload []byte) (models.ProviderEvent, error) {
	var raw struct {
		ID      string `json:"id"`
		Type    string `json:"type"`
		Created int64  `json:"created"`
		Data    struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return models.ProviderEvent{}, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	if raw.ID == "" || raw.Type == "" {
		return models.ProviderEvent{}, fmt.Errorf("webhook payload missing id or type")
	}
	return parseEvent(raw.ID, raw.Type, raw.Created, raw.Data.Object)
}

func parseEvent(id, eventType string, created int64, object json.RawMessage) (models.ProviderEvent, error) {
	out := models.ProviderEvent{
		ID:        id,
		Type:      models.ProviderEventUnknown,
		RawType:   eventType,
		CreatedAt: time.Unix(created, 0).UTC(),
	}

	switch eventType {
	case string(stripe.EventTypeCheckoutSessionCompleted), string(stripe.EventTypeCheckoutSessionExpired):
		var sess struct {
			ID            string `json:"id"`
			PaymentIntent string `json:"payment_intent"`
		}
		if err := json.Unmarshal(object, &sess); err != nil {
			return models.ProviderEvent{}, fmt.Errorf("failed to parse checkout session object: %w", err)
		}
		if sess.ID == "" {
			return models.ProviderEvent{}, fmt.Errorf("checkout session event %s has no session id", id)
		}
		out.SessionID = sess.ID
		out.PaymentIntentID = sess.PaymentIntent
		if eventType == string(stripe.EventTypeCheckoutSessionCompleted) {
			out.Type = models.ProviderEventCheckoutCompleted
		} else {
			out.Type = models.ProviderEventCheckoutExpired
		}
	}

	return out, nil
}
