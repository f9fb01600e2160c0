package service

import (
	"context"
	"fmt"

	"registration-service/internal/models"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

// WebhookService is the reconciliation state machine. It consumes verified
// provider events delivered at-least-once, possibly duplicated and
// reordered, and advances payment/registration status so that each session
// transitions pending -> completed (or pending -> expired) exactly once.
// Every mutating write is a status-guarded compare-and-swap; no external
// locking is used or needed.
type WebhookService struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

// NewWebhookService creates a new webhook service
func NewWebhookService(store Store, publisher Publisher) *WebhookService {
	return &WebhookService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// WebhookResult is acknowledged back to the provider with HTTP 200.
type WebhookResult struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// HandleEvent processes one verified provider event. A non-nil error means
// genuine infrastructure failure and should surface as a 5xx so the
// provider retries; every expected anomaly (duplicate, orphan, race loss,
// unknown type) acknowledges successfully.
func (ws *WebhookService) HandleEvent(ctx context.Context, event models.ProviderEvent) (*WebhookResult, error) {
	ctx, span := util.StartSpan(ctx, "WebhookService.HandleEvent")
	defer span.End()

	// Idempotency gate: provider event ids are globally unique and are
	// recorded on the payment row they transitioned. Seen means done.
	processed, err := ws.store.HasProcessedProviderEvent(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check event ledger: %w", err)
	}
	if processed {
		util.WebhookDuplicatesTotal.Inc()
		ws.logger.Info("Event already processed, skipping",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID))
		return &WebhookResult{Received: true, Duplicate: true}, nil
	}

	switch event.Type {
	case models.ProviderEventCheckoutCompleted:
		return ws.handleCompleted(ctx, event)
	case models.ProviderEventCheckoutExpired:
		return ws.handleExpired(ctx, event)
	default:
		// The gateway sends many event types; only two matter here.
		util.WebhookEventsTotal.WithLabelValues("other", "ignored").Inc()
		ws.logger.Info("Ignoring unhandled event type",
			zap.String("event_id", event.ID),
			zap.String("raw_type", event.RawType))
		return &WebhookResult{Received: true}, nil
	}
}

func (ws *WebhookService) handleCompleted(ctx context.Context, event models.ProviderEvent) (*WebhookResult, error) {
	payment, err := ws.store.GetPaymentBySessionID(ctx, event.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payment: %w", err)
	}
	if payment == nil {
		// Orphaned event: retries would never resolve a missing row, so
		// acknowledge, but surface it for manual reconciliation.
		util.WebhookEventsTotal.WithLabelValues("completed", "orphan").Inc()
		ws.logger.Warn("Completed event references unknown session",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID))
		return &WebhookResult{Received: true}, nil
	}
	if payment.Status == models.PaymentStatusCompleted {
		util.WebhookEventsTotal.WithLabelValues("completed", "noop").Inc()
		ws.logger.Info("Payment already completed",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID))
		return &WebhookResult{Received: true}, nil
	}

	rows, err := ws.store.CompletePayment(ctx, event.SessionID, event.PaymentIntentID, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete payment: %w", err)
	}
	if rows == 0 {
		// A concurrent delivery won the compare-and-swap.
		util.WebhookEventsTotal.WithLabelValues("completed", "race_loss").Inc()
		ws.logger.Info("Lost completion race, treating as no-op",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID))
		return &WebhookResult{Received: true}, nil
	}

	util.PaymentsCompletedTotal.Inc()
	util.WebhookEventsTotal.WithLabelValues("completed", "applied").Inc()

	confirmed, err := ws.confirmRegistrations(ctx, payment)
	if err != nil {
		// The payment transition committed and recorded this event id, so
		// a provider retry would stop at the idempotency gate; a 500 here
		// cannot heal anything. Log loudly for manual reconciliation.
		util.WebhookEventsTotal.WithLabelValues("completed", "confirm_failed").Inc()
		ws.logger.Error("Payment completed but registration confirmation failed",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID),
			zap.Int64("payment_id", payment.ID),
			zap.Error(err))
		return &WebhookResult{Received: true}, nil
	}

	ws.logger.Info("Payment completed and registrations confirmed",
		zap.String("event_id", event.ID),
		zap.String("session_id", event.SessionID),
		zap.Int64("payment_id", payment.ID),
		zap.Int64("registrations_confirmed", confirmed))

	ws.notifyConfirmed(ctx, payment)
	return &WebhookResult{Received: true}, nil
}

func (ws *WebhookService) handleExpired(ctx context.Context, event models.ProviderEvent) (*WebhookResult, error) {
	rows, err := ws.store.ExpirePayment(ctx, event.SessionID, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to expire payment: %w", err)
	}
	if rows == 0 {
		// Already terminal, or the session was never ours.
		util.WebhookEventsTotal.WithLabelValues("expired", "noop").Inc()
		ws.logger.Info("Expire event matched no pending payment",
			zap.String("event_id", event.ID),
			zap.String("session_id", event.SessionID))
		return &WebhookResult{Received: true}, nil
	}

	// Registrations stay pending: expiry means "retry checkout", not
	// "cancel the registration".
	util.PaymentsExpiredTotal.Inc()
	util.WebhookEventsTotal.WithLabelValues("expired", "applied").Inc()
	ws.logger.Info("Payment expired",
		zap.String("event_id", event.ID),
		zap.String("session_id", event.SessionID))
	return &WebhookResult{Received: true}, nil
}

// confirmRegistrations flips the registration(s) behind a completed payment
// to confirmed. Groups are confirmed in one statement so partial
// confirmation is never observable.
func (ws *WebhookService) confirmRegistrations(ctx context.Context, payment *models.Payment) (int64, error) {
	if payment.GroupID != nil {
		rows, err := ws.store.ConfirmGroupRegistrations(ctx, *payment.GroupID)
		if err != nil {
			return 0, fmt.Errorf("failed to confirm group %s: %w", *payment.GroupID, err)
		}
		util.RegistrationsConfirmedTotal.Add(float64(rows))
		return rows, nil
	}

	rows, err := ws.store.ConfirmRegistration(ctx, payment.RegistrationID)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm registration %d: %w", payment.RegistrationID, err)
	}
	if rows > 0 {
		util.RegistrationsConfirmedTotal.Inc()
	}
	return rows, nil
}

// notifyConfirmed fires the receipt notification. Strictly best-effort:
// the state transition is committed, so a notification failure is logged
// and the webhook still acknowledges success.
func (ws *WebhookService) notifyConfirmed(ctx context.Context, payment *models.Payment) {
	var (
		regs    []models.Registration
		groupID string
		err     error
	)
	if payment.GroupID != nil {
		groupID = *payment.GroupID
		regs, err = ws.store.GetRegistrationsByGroupID(ctx, groupID)
	} else {
		var reg *models.Registration
		reg, err = ws.store.GetRegistrationByID(ctx, payment.RegistrationID)
		if reg != nil {
			regs = []models.Registration{*reg}
		}
	}
	if err != nil || len(regs) == 0 {
		ws.logger.Error("Failed to load registrations for receipt",
			zap.Int64("payment_id", payment.ID), zap.Error(err))
		return
	}

	eventName := ""
	if ev, evErr := ws.store.GetEvent(ctx, regs[0].EventID); evErr == nil {
		eventName = ev.Name
	}

	notification := buildConfirmedEvent(eventName, groupID, regs, payment.Amount)
	if err := ws.publisher.PublishRegistrationConfirmed(ctx, notification); err != nil {
		ws.logger.Error("Failed to publish RegistrationConfirmed event",
			zap.Int64("payment_id", payment.ID), zap.Error(err))
	}
}
