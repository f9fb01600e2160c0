package service

import (
	"context"
	"fmt"
	"strconv"

	"registration-service/internal/gateway"
	"registration-service/internal/models"
	"registration-service/internal/pricing"
	"registration-service/internal/store"
	"registration-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutService turns a pending registration (or group) into a
// ready-to-pay external checkout session while protecting against
// double-charging and price drift.
type CheckoutService struct {
	store   Store
	gateway gateway.Gateway
	baseURL string
	logger  *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(store Store, gw gateway.Gateway, baseURL string) *CheckoutService {
	return &CheckoutService{
		store:   store,
		gateway: gw,
		baseURL: baseURL,
		logger:  util.GetLogger(),
	}
}

// CheckoutResponse carries the session a registrant should be redirected to
type CheckoutResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// InitiateCheckout opens (or reuses) a checkout session for a solo
// registration. The price is always recomputed server-side against current
// config immediately before charging; the stored amount is never trusted.
func (cs *CheckoutService) InitiateCheckout(ctx context.Context, registrationID int64) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.InitiateCheckout")
	defer span.End()

	reg, err := cs.store.GetRegistrationByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.Status == models.RegistrationStatusConfirmed {
		util.CheckoutFailedTotal.WithLabelValues("already_confirmed").Inc()
		return nil, ErrAlreadyConfirmed
	}

	event, cfg, err := cs.loadEvent(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}

	// Recompute with the registration's original timestamp so the
	// surcharge tier is the one the registrant saw, not "now".
	res := pricing.Compute(registrantInput(reg), event, cfg)
	if res.Amount == 0 {
		util.CheckoutFailedTotal.WithLabelValues("no_payment_required").Inc()
		return nil, ErrNoPaymentRequired
	}
	cs.healDrift(ctx, reg, res.Amount, res.Code, res.Detail)

	existing, err := cs.store.GetPendingPaymentByRegistrationID(ctx, reg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending payment: %w", err)
	}
	if resp := cs.reuseOpenSession(ctx, existing); resp != nil {
		return resp, nil
	}

	key := checkoutKey(fmt.Sprintf("reg-%d", reg.ID))
	sess, err := cs.gateway.CreateSession(ctx, &gateway.CreateSessionParams{
		LineItems: []gateway.LineItem{{
			Name:        fmt.Sprintf("%s - %s", event.Name, reg.Name),
			Description: res.Detail,
			Amount:      res.Amount,
			Quantity:    1,
		}},
		SuccessURL:        fmt.Sprintf("%s/registration/success?registration_id=%d", cs.baseURL, reg.ID),
		CancelURL:         fmt.Sprintf("%s/registration/cancel?registration_id=%d", cs.baseURL, reg.ID),
		ClientReferenceID: strconv.FormatInt(reg.ID, 10),
		IdempotencyKey:    key,
		Metadata:          map[string]string{"registration_id": strconv.FormatInt(reg.ID, 10)},
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	payment := &models.Payment{
		RegistrationID:  reg.ID,
		StripeSessionID: sess.ID,
		Amount:          res.Amount,
		Status:          models.PaymentStatusPending,
		IdempotencyKey:  key,
	}
	if err := cs.persistPayment(ctx, existing, payment, sess); err != nil {
		return nil, err
	}

	util.CheckoutSessionsCreatedTotal.Inc()
	cs.logger.Info("Checkout session created",
		zap.Int64("registration_id", reg.ID),
		zap.String("session_id", sess.ID),
		zap.Int64("amount", res.Amount))
	return &CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// InitiateGroupCheckout mirrors the solo flow over every pending
// registration in a group: N line items plus at most one surcharge line,
// one payment row keyed to the group's primary registration.
func (cs *CheckoutService) InitiateGroupCheckout(ctx context.Context, groupID string) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.InitiateGroupCheckout")
	defer span.End()

	regs, err := cs.store.GetRegistrationsByGroupID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load group: %w", err)
	}
	if len(regs) == 0 {
		return nil, fmt.Errorf("group %s: %w", groupID, store.ErrNotFound)
	}
	for i := range regs {
		if regs[i].Status == models.RegistrationStatusConfirmed {
			util.CheckoutFailedTotal.WithLabelValues("already_confirmed").Inc()
			return nil, ErrAlreadyConfirmed
		}
	}

	// Only pending members are priced and charged; a cancelled member
	// stays out of the session entirely.
	pending := make([]models.Registration, 0, len(regs))
	for i := range regs {
		if regs[i].Status == models.RegistrationStatusPending {
			pending = append(pending, regs[i])
		}
	}
	if len(pending) == 0 {
		util.CheckoutFailedTotal.WithLabelValues("no_pending_members").Inc()
		return nil, fmt.Errorf("%w: group %s has no pending registrations", ErrValidation, groupID)
	}
	regs = pending

	event, cfg, err := cs.loadEvent(ctx, regs[0].EventID)
	if err != nil {
		return nil, err
	}

	inputs := make([]pricing.Input, 0, len(regs))
	for i := range regs {
		inputs = append(inputs, registrantInput(&regs[i]))
	}
	groupRes := pricing.ComputeGroup(inputs, event, cfg)
	if groupRes.GrandTotal == 0 {
		util.CheckoutFailedTotal.WithLabelValues("no_payment_required").Inc()
		return nil, ErrNoPaymentRequired
	}
	for i := range regs {
		cs.healDrift(ctx, &regs[i], groupRes.Items[i].Base, groupRes.Items[i].Code, groupRes.Items[i].Detail)
	}

	existing, err := cs.store.GetPendingPaymentByGroupID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up pending payment: %w", err)
	}
	if resp := cs.reuseOpenSession(ctx, existing); resp != nil {
		return resp, nil
	}

	lineItems := make([]gateway.LineItem, 0, len(regs)+1)
	for i := range regs {
		lineItems = append(lineItems, gateway.LineItem{
			Name:        fmt.Sprintf("%s - %s", event.Name, regs[i].Name),
			Description: groupRes.Items[i].Detail,
			Amount:      groupRes.Items[i].Base,
			Quantity:    1,
		})
	}
	if groupRes.Surcharge > 0 {
		lineItems = append(lineItems, gateway.LineItem{
			Name:        groupRes.SurchargeLabel,
			Description: fmt.Sprintf("%s (applied once per group)", groupRes.SurchargeLabel),
			Amount:      groupRes.Surcharge,
			Quantity:    1,
		})
	}

	primary := regs[0]
	key := checkoutKey(fmt.Sprintf("group-%s", groupID))
	sess, err := cs.gateway.CreateSession(ctx, &gateway.CreateSessionParams{
		LineItems:         lineItems,
		SuccessURL:        fmt.Sprintf("%s/registration/success?registration_id=%d&group_id=%s", cs.baseURL, primary.ID, groupID),
		CancelURL:         fmt.Sprintf("%s/registration/cancel?registration_id=%d&group_id=%s", cs.baseURL, primary.ID, groupID),
		ClientReferenceID: groupID,
		IdempotencyKey:    key,
		Metadata: map[string]string{
			"registration_id": strconv.FormatInt(primary.ID, 10),
			"group_id":        groupID,
		},
	})
	if err != nil {
		util.CheckoutFailedTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	payment := &models.Payment{
		RegistrationID:  primary.ID,
		GroupID:         &groupID,
		StripeSessionID: sess.ID,
		Amount:          groupRes.GrandTotal,
		Status:          models.PaymentStatusPending,
		IdempotencyKey:  key,
	}
	if err := cs.persistPayment(ctx, existing, payment, sess); err != nil {
		return nil, err
	}

	util.CheckoutSessionsCreatedTotal.Inc()
	cs.logger.Info("Group checkout session created",
		zap.String("group_id", groupID),
		zap.String("session_id", sess.ID),
		zap.Int64("amount", groupRes.GrandTotal))
	return &CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// healDrift overwrites the stored price when the checkout-time recompute
// disagrees. Pricing-config changes mid-flow self-heal instead of silently
// over- or under-charging against a stale stored amount.
func (cs *CheckoutService) healDrift(ctx context.Context, reg *models.Registration, amount int64, code, detail string) {
	if reg.ComputedAmount == amount && reg.ExplanationCode == code && reg.ExplanationDetail == detail {
		return
	}
	cs.logger.Warn("Stored price drifted from recomputed price, correcting",
		zap.Int64("registration_id", reg.ID),
		zap.Int64("stored_amount", reg.ComputedAmount),
		zap.Int64("recomputed_amount", amount))
	util.PriceDriftTotal.Inc()
	if err := cs.store.UpdateRegistrationPricing(ctx, reg.ID, amount, code, detail); err != nil {
		// Best-effort: the session line items carry the authoritative
		// amount regardless.
		cs.logger.Error("Failed to persist drift correction",
			zap.Int64("registration_id", reg.ID), zap.Error(err))
	}
	reg.ComputedAmount = amount
	reg.ExplanationCode = code
	reg.ExplanationDetail = detail
}

// reuseOpenSession returns the existing session when the pending payment's
// session is still payable, so repeated "pay now" clicks never spawn
// duplicate sessions.
func (cs *CheckoutService) reuseOpenSession(ctx context.Context, existing *models.Payment) *CheckoutResponse {
	if existing == nil || existing.StripeSessionID == "" {
		return nil
	}
	sess, err := cs.gateway.GetSession(ctx, existing.StripeSessionID)
	if err != nil {
		cs.logger.Warn("Failed to look up existing checkout session, creating a new one",
			zap.String("session_id", existing.StripeSessionID), zap.Error(err))
		return nil
	}
	if !sess.Open {
		return nil
	}
	util.CheckoutSessionsReusedTotal.Inc()
	cs.logger.Info("Reusing open checkout session",
		zap.String("session_id", sess.ID),
		zap.Int64("payment_id", existing.ID))
	return &CheckoutResponse{SessionID: sess.ID, URL: sess.URL}
}

// persistPayment upserts the payment row: update the existing pending row
// if there is one, insert otherwise. If the local write fails after the
// external session was created, the orphaned session is expired best-effort
// so no uncharged, unreferenced session stays alive.
func (cs *CheckoutService) persistPayment(ctx context.Context, existing, payment *models.Payment, sess *gateway.CheckoutSession) error {
	if existing != nil {
		rows, err := cs.store.UpdatePaymentSession(ctx, existing.ID, sess.ID, payment.Amount)
		if err == nil && rows == 0 {
			err = fmt.Errorf("payment %d is no longer pending", existing.ID)
		}
		if err != nil {
			cs.expireOrphanedSession(ctx, sess.ID)
			util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
			return fmt.Errorf("failed to update payment row: %w", err)
		}
		return nil
	}

	if err := cs.store.CreatePayment(ctx, payment); err != nil {
		cs.expireOrphanedSession(ctx, sess.ID)
		util.CheckoutFailedTotal.WithLabelValues("db_error").Inc()
		return fmt.Errorf("failed to create payment row: %w", err)
	}
	return nil
}

func (cs *CheckoutService) expireOrphanedSession(ctx context.Context, sessionID string) {
	if err := cs.gateway.ExpireSession(ctx, sessionID); err != nil {
		cs.logger.Error("Failed to expire orphaned checkout session",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (cs *CheckoutService) loadEvent(ctx context.Context, eventID int64) (*models.Event, *models.PricingConfig, error) {
	event, err := cs.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := cs.store.GetPricingConfigByEventID(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if event.InfantAgeThreshold == 0 {
		event.InfantAgeThreshold = 3
	}
	return event, cfg, nil
}

func registrantInput(reg *models.Registration) pricing.Input {
	return pricing.Input{
		DateOfBirth:  reg.DateOfBirth,
		FullDuration: reg.FullDuration,
		MotelStay:    reg.MotelStay,
		NumDays:      reg.NumDays,
		RegisteredAt: reg.CreatedAt,
	}
}

// checkoutKey derives a provider idempotency key from the registration or
// group identity, suffixed so a retry after an expired session gets a fresh
// key while a tight double-click still trips the row-level uniqueness.
func checkoutKey(base string) string {
	return fmt.Sprintf("%s-%s", base, uuid.New().String()[:8])
}
