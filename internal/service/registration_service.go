package service

import (
	"context"
	"fmt"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/pricing"
	"registration-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RegistrationService handles registration creation and price quoting
type RegistrationService struct {
	store     Store
	publisher Publisher
	logger    *zap.Logger
}

// NewRegistrationService creates a new registration service
func NewRegistrationService(store Store, publisher Publisher) *RegistrationService {
	return &RegistrationService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// RegistrantRequest is one registrant as submitted by the UI wizard
type RegistrantRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone"`
	// DateOfBirth in YYYY-MM-DD form.
	DateOfBirth  string `json:"date_of_birth" binding:"required"`
	FullDuration bool   `json:"full_duration"`
	MotelStay    bool   `json:"motel_stay"`
	NumDays      int    `json:"num_days"`
}

// QuoteResponse is a price preview without persistence
type QuoteResponse struct {
	Registrant *pricing.Result      `json:"registrant,omitempty"`
	Group      *pricing.GroupResult `json:"group,omitempty"`
}

// toInput validates a request against the event and converts it to a
// pricing input. Day-count validation happens here, before the pricing
// engine is invoked; the engine itself is total over valid inputs.
func toInput(req *RegistrantRequest, event *models.Event, cfg *models.PricingConfig, registeredAt time.Time) (pricing.Input, error) {
	dob, err := time.Parse("2006-01-02", req.DateOfBirth)
	if err != nil {
		return pricing.Input{}, fmt.Errorf("%w: date_of_birth must be YYYY-MM-DD", ErrValidation)
	}
	if dob.After(event.StartDate) {
		return pricing.Input{}, fmt.Errorf("%w: date_of_birth is after the event start", ErrValidation)
	}

	in := pricing.Input{
		DateOfBirth:  dob,
		FullDuration: req.FullDuration,
		MotelStay:    req.MotelStay,
		NumDays:      req.NumDays,
		RegisteredAt: registeredAt,
	}

	// Day count only matters for partial attendance outside the motel.
	if !req.FullDuration && !(req.MotelStay && cfg.MotelStayFree) {
		if req.NumDays < 1 || req.NumDays > event.DurationDays() {
			return pricing.Input{}, fmt.Errorf("%w: num_days must be between 1 and %d", ErrValidation, event.DurationDays())
		}
	}
	return in, nil
}

// CreateRegistration creates a single registration. A computed amount of
// exactly zero confirms immediately and never reaches checkout.
func (rs *RegistrationService) CreateRegistration(ctx context.Context, eventID int64, req *RegistrantRequest) (*models.Registration, error) {
	ctx, span := util.StartSpan(ctx, "RegistrationService.CreateRegistration")
	defer span.End()

	event, cfg, err := rs.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	in, err := toInput(req, event, cfg, now)
	if err != nil {
		util.RegistrationsFailedTotal.WithLabelValues("validation").Inc()
		return nil, err
	}

	res := pricing.Compute(in, event, cfg)
	reg := rs.buildRegistration(eventID, nil, req, in, res.Amount, res.Code, res.Detail, res.AgeAtEvent, res.Category, now)

	if err := rs.store.CreateRegistration(ctx, reg); err != nil {
		util.RegistrationsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}
	util.RegistrationsCreatedTotal.WithLabelValues("solo").Inc()
	rs.logger.Info("Registration created",
		zap.Int64("registration_id", reg.ID),
		zap.String("code", reg.ExplanationCode),
		zap.Int64("amount", reg.ComputedAmount))

	if reg.Status == models.RegistrationStatusConfirmed {
		util.RegistrationsConfirmedTotal.Inc()
		rs.notifyConfirmed(ctx, event.Name, "", []models.Registration{*reg}, 0)
	}
	return reg, nil
}

// CreateGroupRegistration creates N registrations sharing one group id and
// one eventual checkout. The late surcharge belongs to the group, so each
// member row stores only its base amount and a surcharge-free explanation.
func (rs *RegistrationService) CreateGroupRegistration(ctx context.Context, eventID int64, reqs []*RegistrantRequest) ([]models.Registration, *pricing.GroupResult, error) {
	ctx, span := util.StartSpan(ctx, "RegistrationService.CreateGroupRegistration")
	defer span.End()

	if len(reqs) == 0 {
		return nil, nil, fmt.Errorf("%w: group must have at least one registrant", ErrValidation)
	}

	event, cfg, err := rs.loadEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	inputs := make([]pricing.Input, 0, len(reqs))
	for _, req := range reqs {
		in, err := toInput(req, event, cfg, now)
		if err != nil {
			util.RegistrationsFailedTotal.WithLabelValues("validation").Inc()
			return nil, nil, err
		}
		inputs = append(inputs, in)
	}

	groupRes := pricing.ComputeGroup(inputs, event, cfg)
	groupID := uuid.New().String()
	allFree := groupRes.GrandTotal == 0

	regs := make([]models.Registration, 0, len(reqs))
	for i, req := range reqs {
		item := groupRes.Items[i]
		reg := rs.buildRegistration(eventID, &groupID, req, inputs[i],
			item.Base, item.Code, item.Detail, item.AgeAtEvent, item.Category, now)
		if allFree {
			reg.Status = models.RegistrationStatusConfirmed
			reg.ConfirmedAt = &now
		}
		if err := rs.store.CreateRegistration(ctx, reg); err != nil {
			util.RegistrationsFailedTotal.WithLabelValues("db_error").Inc()
			return nil, nil, fmt.Errorf("failed to create group registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	util.RegistrationsCreatedTotal.WithLabelValues("group").Add(float64(len(regs)))
	rs.logger.Info("Group registration created",
		zap.String("group_id", groupID),
		zap.Int("members", len(regs)),
		zap.Int64("grand_total", groupRes.GrandTotal))

	if allFree {
		util.RegistrationsConfirmedTotal.Add(float64(len(regs)))
		rs.notifyConfirmed(ctx, event.Name, groupID, regs, 0)
	}
	return regs, &groupRes, nil
}

// GetRegistration retrieves a registration by ID
func (rs *RegistrationService) GetRegistration(ctx context.Context, id int64) (*models.Registration, error) {
	return rs.store.GetRegistrationByID(ctx, id)
}

// ListActiveEvents lists the events currently open for registration
func (rs *RegistrationService) ListActiveEvents(ctx context.Context) ([]models.Event, error) {
	return rs.store.GetActiveEvents(ctx)
}

// Quote prices one or more registrants without persisting anything
func (rs *RegistrationService) Quote(ctx context.Context, eventID int64, reqs []*RegistrantRequest) (*QuoteResponse, error) {
	event, cfg, err := rs.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one registrant required", ErrValidation)
	}

	now := time.Now()
	inputs := make([]pricing.Input, 0, len(reqs))
	for _, req := range reqs {
		in, err := toInput(req, event, cfg, now)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	if len(inputs) == 1 {
		res := pricing.Compute(inputs[0], event, cfg)
		return &QuoteResponse{Registrant: &res}, nil
	}
	res := pricing.ComputeGroup(inputs, event, cfg)
	return &QuoteResponse{Group: &res}, nil
}

func (rs *RegistrationService) loadEvent(ctx context.Context, eventID int64) (*models.Event, *models.PricingConfig, error) {
	event, err := rs.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if !event.Active {
		return nil, nil, fmt.Errorf("%w: event is not open for registration", ErrValidation)
	}
	cfg, err := rs.store.GetPricingConfigByEventID(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if event.InfantAgeThreshold == 0 {
		event.InfantAgeThreshold = 3
	}
	return event, cfg, nil
}

func (rs *RegistrationService) buildRegistration(eventID int64, groupID *string, req *RegistrantRequest, in pricing.Input, amount int64, code, detail string, age int, category string, now time.Time) *models.Registration {
	reg := &models.Registration{
		EventID:           eventID,
		GroupID:           groupID,
		Name:              req.Name,
		Email:             req.Email,
		Phone:             req.Phone,
		DateOfBirth:       in.DateOfBirth,
		AgeAtEvent:        age,
		Category:          category,
		FullDuration:      in.FullDuration,
		MotelStay:         in.MotelStay,
		NumDays:           in.NumDays,
		ComputedAmount:    amount,
		ExplanationCode:   code,
		ExplanationDetail: detail,
		Status:            models.RegistrationStatusPending,
	}
	if groupID == nil && amount == 0 {
		reg.Status = models.RegistrationStatusConfirmed
		reg.ConfirmedAt = &now
	}
	return reg
}

// notifyConfirmed fires the receipt notification, best-effort.
func (rs *RegistrationService) notifyConfirmed(ctx context.Context, eventName, groupID string, regs []models.Registration, total int64) {
	event := buildConfirmedEvent(eventName, groupID, regs, total)
	if err := rs.publisher.PublishRegistrationConfirmed(ctx, event); err != nil {
		rs.logger.Error("Failed to publish RegistrationConfirmed event",
			zap.String("group_id", groupID), zap.Error(err))
	}
}

// buildConfirmedEvent assembles the notification payload shared by the free
// fast path and the webhook confirmation path.
func buildConfirmedEvent(eventName, groupID string, regs []models.Registration, total int64) *models.RegistrationConfirmedEvent {
	items := make([]models.ReceiptItem, 0, len(regs))
	for _, reg := range regs {
		items = append(items, models.ReceiptItem{
			RegistrationID: reg.ID,
			Name:           reg.Name,
			Email:          reg.Email,
			Amount:         reg.ComputedAmount,
			Detail:         reg.ExplanationDetail,
		})
	}
	return &models.RegistrationConfirmedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeRegistrationConfirmed,
			Timestamp: time.Now(),
		},
		EventName:   eventName,
		GroupID:     groupID,
		Items:       items,
		AmountTotal: total,
	}
}
