// Package gateway wraps the external payment provider. The rest of the
// service only sees the Gateway interface and the validated ProviderEvent
// type; every Stripe-specific shape stops at this boundary.
package gateway

import "context"

// LineItem is one charge line on a checkout session. Amount is cents.
type LineItem struct {
	Name        string
	Description string
	Amount      int64
	Quantity    int64
}

// CreateSessionParams describes a checkout session to open.
type CreateSessionParams struct {
	LineItems         []LineItem
	SuccessURL        string
	CancelURL         string
	ClientReferenceID string
	// IdempotencyKey is passed through to the provider so retried create
	// calls cannot open duplicate sessions.
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession is the provider-neutral view of a session.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
	AmountTotal     int64
	// Open reports whether the session can still be paid.
	Open bool
}

// Gateway creates and manages external checkout sessions.
type Gateway interface {
	CreateSession(ctx context.Context, params *CreateSessionParams) (*CheckoutSession, error)
	GetSession(ctx context.Context, id string) (*CheckoutSession, error)
	ExpireSession(ctx context.Context, id string) error
}
