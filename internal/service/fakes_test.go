package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"registration-service/internal/gateway"
	"registration-service/internal/models"
	"registration-service/internal/store"
)

// fakeStore is an in-memory Store with the same compare-and-swap semantics
// as the SQL implementation. All mutation happens under one mutex so
// concurrent handlers race exactly the way rows in Postgres would.
type fakeStore struct {
	mu sync.Mutex

	events   map[int64]*models.Event
	configs  map[int64]*models.PricingConfig
	regs     map[int64]*models.Registration
	payments map[int64]*models.Payment

	nextRegID     int64
	nextPaymentID int64

	failCreatePayment bool
	failConfirm       bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		events:   make(map[int64]*models.Event),
		configs:  make(map[int64]*models.PricingConfig),
		regs:     make(map[int64]*models.Registration),
		payments: make(map[int64]*models.Payment),
	}
}

func (f *fakeStore) addEvent(ev *models.Event, cfg *models.PricingConfig) {
	f.events[ev.ID] = ev
	f.configs[ev.ID] = cfg
}

func (f *fakeStore) addRegistration(reg *models.Registration) *models.Registration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg.ID == 0 {
		f.nextRegID++
		reg.ID = f.nextRegID
	} else if reg.ID > f.nextRegID {
		f.nextRegID = reg.ID
	}
	f.regs[reg.ID] = reg
	return reg
}

func (f *fakeStore) addPayment(p *models.Payment) *models.Payment {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == 0 {
		f.nextPaymentID++
		p.ID = f.nextPaymentID
	}
	f.payments[p.ID] = p
	return p
}

func (f *fakeStore) GetEvent(ctx context.Context, id int64) (*models.Event, error) {
	if ev, ok := f.events[id]; ok {
		copied := *ev
		return &copied, nil
	}
	return nil, fmt.Errorf("event %d: %w", id, store.ErrNotFound)
}

func (f *fakeStore) GetActiveEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	for _, ev := range f.events {
		if ev.Active {
			events = append(events, *ev)
		}
	}
	return events, nil
}

func (f *fakeStore) GetPricingConfigByEventID(ctx context.Context, eventID int64) (*models.PricingConfig, error) {
	if cfg, ok := f.configs[eventID]; ok {
		copied := *cfg
		return &copied, nil
	}
	return nil, fmt.Errorf("pricing config for event %d: %w", eventID, store.ErrNotFound)
}

func (f *fakeStore) CreateRegistration(ctx context.Context, reg *models.Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextRegID++
	reg.ID = f.nextRegID
	reg.CreatedAt = time.Now()
	reg.UpdatedAt = reg.CreatedAt
	copied := *reg
	f.regs[reg.ID] = &copied
	return nil
}

func (f *fakeStore) GetRegistrationByID(ctx context.Context, id int64) (*models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reg, ok := f.regs[id]; ok {
		copied := *reg
		return &copied, nil
	}
	return nil, fmt.Errorf("registration %d: %w", id, store.ErrNotFound)
}

func (f *fakeStore) GetRegistrationsByGroupID(ctx context.Context, groupID string) ([]models.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Registration
	for id := int64(1); id <= f.nextRegID; id++ {
		reg, ok := f.regs[id]
		if ok && reg.GroupID != nil && *reg.GroupID == groupID {
			out = append(out, *reg)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateRegistrationPricing(ctx context.Context, id int64, amount int64, code, detail string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	reg, ok := f.regs[id]
	if !ok {
		return fmt.Errorf("registration %d: %w", id, store.ErrNotFound)
	}
	reg.ComputedAmount = amount
	reg.ExplanationCode = code
	reg.ExplanationDetail = detail
	return nil
}

func (f *fakeStore) ConfirmRegistration(ctx context.Context, id int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConfirm {
		return 0, fmt.Errorf("store down")
	}
	reg, ok := f.regs[id]
	if !ok || reg.Status != models.RegistrationStatusPending {
		return 0, nil
	}
	now := time.Now()
	reg.Status = models.RegistrationStatusConfirmed
	reg.ConfirmedAt = &now
	return 1, nil
}

func (f *fakeStore) ConfirmGroupRegistrations(ctx context.Context, groupID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failConfirm {
		return 0, fmt.Errorf("store down")
	}
	var rows int64
	now := time.Now()
	for _, reg := range f.regs {
		if reg.GroupID != nil && *reg.GroupID == groupID && reg.Status == models.RegistrationStatusPending {
			reg.Status = models.RegistrationStatusConfirmed
			reg.ConfirmedAt = &now
			rows++
		}
	}
	return rows, nil
}

func (f *fakeStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreatePayment {
		return fmt.Errorf("insert failed")
	}
	f.nextPaymentID++
	payment.ID = f.nextPaymentID
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	copied := *payment
	f.payments[payment.ID] = &copied
	return nil
}

func (f *fakeStore) GetPaymentBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.StripeSessionID == sessionID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetPendingPaymentByRegistrationID(ctx context.Context, registrationID int64) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.RegistrationID == registrationID && p.GroupID == nil && p.Status == models.PaymentStatusPending {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetPendingPaymentByGroupID(ctx context.Context, groupID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.GroupID != nil && *p.GroupID == groupID && p.Status == models.PaymentStatusPending {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdatePaymentSession(ctx context.Context, paymentID int64, sessionID string, amount int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[paymentID]
	if !ok || p.Status != models.PaymentStatusPending {
		return 0, nil
	}
	p.StripeSessionID = sessionID
	p.Amount = amount
	return 1, nil
}

func (f *fakeStore) CompletePayment(ctx context.Context, sessionID, paymentIntentID, eventID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.StripeSessionID == sessionID && p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusCompleted
			p.StripePaymentIntentID = &paymentIntentID
			p.StripeEventID = &eventID
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) ExpirePayment(ctx context.Context, sessionID, eventID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.StripeSessionID == sessionID && p.Status == models.PaymentStatusPending {
			p.Status = models.PaymentStatusExpired
			p.StripeEventID = &eventID
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeStore) HasProcessedProviderEvent(ctx context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.StripeEventID != nil && *p.StripeEventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

// fakePublisher counts published notifications
type fakePublisher struct {
	mu        sync.Mutex
	published []*models.RegistrationConfirmedEvent
	err       error
}

func (f *fakePublisher) PublishRegistrationConfirmed(ctx context.Context, event *models.RegistrationConfirmedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, event)
	return nil
}

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

// fakeGateway records created sessions and serves configured lookups
type fakeGateway struct {
	mu sync.Mutex

	createCalls int
	lastParams  *gateway.CreateSessionParams
	sessions    map[string]*gateway.CheckoutSession
	expired     []string
	createErr   error
	nextID      int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{sessions: make(map[string]*gateway.CheckoutSession)}
}

func (f *fakeGateway) CreateSession(ctx context.Context, params *gateway.CreateSessionParams) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.lastParams = params
	if f.createErr != nil {
		return nil, f.createErr
	}
	var total int64
	for _, item := range params.LineItems {
		total += item.Amount * item.Quantity
	}
	f.nextID++
	sess := &gateway.CheckoutSession{
		ID:          fmt.Sprintf("cs_test_%d", f.nextID),
		URL:         fmt.Sprintf("https://checkout.example/%d", f.nextID),
		AmountTotal: total,
		Open:        true,
	}
	f.sessions[sess.ID] = sess
	return sess, nil
}

func (f *fakeGateway) GetSession(ctx context.Context, id string) (*gateway.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sess, ok := f.sessions[id]; ok {
		copied := *sess
		return &copied, nil
	}
	return nil, fmt.Errorf("session %s not found", id)
}

func (f *fakeGateway) ExpireSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, id)
	if sess, ok := f.sessions[id]; ok {
		sess.Open = false
	}
	return nil
}
