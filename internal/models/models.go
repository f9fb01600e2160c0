package models

import "time"

// Event represents a conference that can be registered for
type Event struct {
	ID                 int64     `db:"id" json:"id"`
	Name               string    `db:"name" json:"name"`
	StartDate          time.Time `db:"start_date" json:"start_date"`
	EndDate            time.Time `db:"end_date" json:"end_date"`
	AdultAgeThreshold  int       `db:"adult_age_threshold" json:"adult_age_threshold"`
	YouthAgeThreshold  int       `db:"youth_age_threshold" json:"youth_age_threshold"`
	InfantAgeThreshold int       `db:"infant_age_threshold" json:"infant_age_threshold"`
	Active             bool      `db:"active" json:"active"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
}

// DurationDays returns the event length in days, inclusive of both endpoints.
func (e *Event) DurationDays() int {
	return int(e.EndDate.Sub(e.StartDate).Hours()/24) + 1
}

// PricingConfig holds the price points for one event (1:1). Amounts are cents.
type PricingConfig struct {
	ID            int64 `db:"id" json:"id"`
	EventID       int64 `db:"event_id" json:"event_id"`
	AdultFull     int64 `db:"adult_full" json:"adult_full"`
	AdultDaily    int64 `db:"adult_daily" json:"adult_daily"`
	YouthFull     int64 `db:"youth_full" json:"youth_full"`
	YouthDaily    int64 `db:"youth_daily" json:"youth_daily"`
	ChildFull     int64 `db:"child_full" json:"child_full"`
	ChildDaily    int64 `db:"child_daily" json:"child_daily"`
	MotelStayFree bool  `db:"motel_stay_free" json:"motel_stay_free"`

	// Checked in position order; first matching interval wins.
	SurchargeTiers []SurchargeTier `db:"-" json:"surcharge_tiers"`
}

// SurchargeTier is a date-range-keyed flat late fee
type SurchargeTier struct {
	ID              int64     `db:"id" json:"id"`
	PricingConfigID int64     `db:"pricing_config_id" json:"pricing_config_id"`
	StartDate       time.Time `db:"start_date" json:"start_date"`
	EndDate         time.Time `db:"end_date" json:"end_date"`
	Amount          int64     `db:"amount" json:"amount"`
	Label           string    `db:"label" json:"label"`
	Position        int       `db:"position" json:"position"`
}

// Registration represents one registrant for one event
type Registration struct {
	ID                int64      `db:"id" json:"id"`
	EventID           int64      `db:"event_id" json:"event_id"`
	GroupID           *string    `db:"group_id" json:"group_id,omitempty"`
	Name              string     `db:"name" json:"name"`
	Email             string     `db:"email" json:"email"`
	Phone             string     `db:"phone" json:"phone"`
	DateOfBirth       time.Time  `db:"date_of_birth" json:"date_of_birth"`
	AgeAtEvent        int        `db:"age_at_event" json:"age_at_event"`
	Category          string     `db:"category" json:"category"`
	FullDuration      bool       `db:"full_duration" json:"full_duration"`
	MotelStay         bool       `db:"motel_stay" json:"motel_stay"`
	NumDays           int        `db:"num_days" json:"num_days"`
	ComputedAmount    int64      `db:"computed_amount" json:"computed_amount"`
	ExplanationCode   string     `db:"explanation_code" json:"explanation_code"`
	ExplanationDetail string     `db:"explanation_detail" json:"explanation_detail"`
	Status            string     `db:"status" json:"status"`
	ConfirmedAt       *time.Time `db:"confirmed_at" json:"confirmed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Payment represents one checkout session. For a group checkout the row is
// keyed to the group's primary registration and carries the group id.
type Payment struct {
	ID                    int64     `db:"id" json:"id"`
	RegistrationID        int64     `db:"registration_id" json:"registration_id"`
	GroupID               *string   `db:"group_id" json:"group_id,omitempty"`
	StripeSessionID       string    `db:"stripe_session_id" json:"stripe_session_id"`
	StripePaymentIntentID *string   `db:"stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	StripeEventID         *string   `db:"stripe_event_id" json:"stripe_event_id,omitempty"`
	Amount                int64     `db:"amount" json:"amount"`
	Status                string    `db:"status" json:"status"`
	IdempotencyKey        string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt             time.Time `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at" json:"updated_at"`
}

// Registration statuses. Confirmed is terminal and is never overwritten.
const (
	RegistrationStatusPending   = "pending"
	RegistrationStatusConfirmed = "confirmed"
	RegistrationStatusCancelled = "cancelled"
	RegistrationStatusRefunded  = "refunded"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
	PaymentStatusExpired   = "expired"
)

// Age categories derived from age at event start
const (
	CategoryAdult = "adult"
	CategoryYouth = "youth"
	CategoryChild = "child"
)

// Pricing explanation codes. Stored verbatim and displayed on receipts.
const (
	CodeFreeInfant       = "FREE_INFANT"
	CodeFullAdult        = "FULL_ADULT"
	CodeFullYouth        = "FULL_YOUTH"
	CodeFullChild        = "FULL_CHILD"
	CodePartialMotelFree = "PARTIAL_MOTEL_FREE"
	CodePartialAdult     = "PARTIAL_ADULT"
	CodePartialYouth     = "PARTIAL_YOUTH"
	CodePartialChild     = "PARTIAL_CHILD"

	// CodeFullMotelFree exists only in rows written before the infant-free
	// and partial-motel-free rules replaced it. New pricing runs never
	// produce it, but old rows must still decode.
	CodeFullMotelFree = "FULL_MOTEL_FREE"
)

var explanationLabels = map[string]string{
	CodeFreeInfant:       "Free (infant)",
	CodeFullAdult:        "Adult, full event",
	CodeFullYouth:        "Youth, full event",
	CodeFullChild:        "Child, full event",
	CodePartialMotelFree: "Free (motel stay, partial attendance)",
	CodePartialAdult:     "Adult, per day",
	CodePartialYouth:     "Youth, per day",
	CodePartialChild:     "Child, per day",
	CodeFullMotelFree:    "Free (motel stay)",
}

// ExplanationLabel maps a stored explanation code to its human label,
// including codes no longer produced.
func ExplanationLabel(code string) string {
	if label, ok := explanationLabels[code]; ok {
		return label
	}
	return code
}
