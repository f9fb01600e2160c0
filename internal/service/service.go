package service

import (
	"context"
	"errors"

	"registration-service/internal/models"
)

// Sentinel errors mapped to HTTP statuses at the API boundary.
var (
	ErrAlreadyConfirmed  = errors.New("registration already confirmed")
	ErrNoPaymentRequired = errors.New("no payment required")
	ErrValidation        = errors.New("invalid input")
)

// Store is the persistence surface the services need. *store.Store
// implements it; tests substitute in-memory fakes.
type Store interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	GetActiveEvents(ctx context.Context) ([]models.Event, error)
	GetPricingConfigByEventID(ctx context.Context, eventID int64) (*models.PricingConfig, error)

	CreateRegistration(ctx context.Context, reg *models.Registration) error
	GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error)
	GetRegistrationsByGroupID(ctx context.Context, groupID string) ([]models.Registration, error)
	UpdateRegistrationPricing(ctx context.Context, id int64, amount int64, code, detail string) error
	ConfirmRegistration(ctx context.Context, id int64) (int64, error)
	ConfirmGroupRegistrations(ctx context.Context, groupID string) (int64, error)

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	GetPendingPaymentByRegistrationID(ctx context.Context, registrationID int64) (*models.Payment, error)
	GetPendingPaymentByGroupID(ctx context.Context, groupID string) (*models.Payment, error)
	UpdatePaymentSession(ctx context.Context, paymentID int64, sessionID string, amount int64) (int64, error)
	CompletePayment(ctx context.Context, sessionID, paymentIntentID, eventID string) (int64, error)
	ExpirePayment(ctx context.Context, sessionID, eventID string) (int64, error)
	HasProcessedProviderEvent(ctx context.Context, eventID string) (bool, error)
}

// Publisher hands notification events to the broker. Failures are logged by
// callers, never propagated: notification is decoupled from the state
// transition that triggered it.
type Publisher interface {
	PublishRegistrationConfirmed(ctx context.Context, event *models.RegistrationConfirmedEvent) error
}
