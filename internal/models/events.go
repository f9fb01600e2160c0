package models

import "time"

// Provider event types the reconciliation state machine cares about. The
// gateway sends many more; everything else maps to ProviderEventUnknown.
type ProviderEventType string

const (
	ProviderEventCheckoutCompleted ProviderEventType = "checkout.session.completed"
	ProviderEventCheckoutExpired   ProviderEventType = "checkout.session.expired"
	ProviderEventUnknown           ProviderEventType = "unknown"
)

// ProviderEvent is the validated, tagged form of an inbound webhook payload.
// Fields are only trusted after signature verification and parsing at the
// gateway boundary.
type ProviderEvent struct {
	// ID is the provider's globally unique event id, the idempotency key
	// for the whole state machine.
	ID              string            `json:"id"`
	Type            ProviderEventType `json:"type"`
	RawType         string            `json:"raw_type"`
	SessionID       string            `json:"session_id"`
	PaymentIntentID string            `json:"payment_intent_id"`
	CreatedAt       time.Time         `json:"created_at"`
}

// Notification event types published to Kafka
const (
	EventTypeRegistrationConfirmed = "REGISTRATION_CONFIRMED"
)

// BaseEvent contains common fields for all notification events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// ReceiptItem is one registrant's line on a confirmation receipt
type ReceiptItem struct {
	RegistrationID int64  `json:"registration_id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	Amount         int64  `json:"amount"`
	Detail         string `json:"detail"`
}

// RegistrationConfirmedEvent is published after a payment completes (or a
// free registration confirms) and drives the receipt mail. Delivery is
// best-effort; losing one never rolls back the confirmation.
type RegistrationConfirmedEvent struct {
	BaseEvent
	EventName   string        `json:"event_name"`
	GroupID     string        `json:"group_id,omitempty"`
	Items       []ReceiptItem `json:"items"`
	AmountTotal int64         `json:"amount_total"`
}
