// Package pricing computes registration prices. Everything in here is pure:
// no I/O, no clock reads unless the input leaves RegisteredAt unset, and
// byte-identical output for identical input. The same computation runs at
// registration time and again at checkout time, and the two must agree
// unless the pricing config itself changed in between.
package pricing

import (
	"fmt"
	"time"

	"registration-service/internal/models"
)

// Input carries one registrant's pricing-relevant attributes. It is
// transient; the persisted Registration row is derived from it.
type Input struct {
	DateOfBirth  time.Time
	FullDuration bool
	// MotelStay only matters when FullDuration is false.
	MotelStay bool
	// NumDays only matters when partial and not staying in the motel.
	// Callers validate 1 <= NumDays <= event duration before computing.
	NumDays int
	// RegisteredAt pins the surcharge lookup to the original registration
	// time so a recomputation at payment time lands in the same tier.
	// Zero means "now".
	RegisteredAt time.Time
}

// Result is the full pricing outcome, amounts in cents.
type Result struct {
	Amount         int64  `json:"amount"`
	Base           int64  `json:"base"`
	Surcharge      int64  `json:"surcharge"`
	SurchargeLabel string `json:"surcharge_label,omitempty"`
	Code           string `json:"code"`
	Detail         string `json:"detail"`
	AgeAtEvent     int    `json:"age_at_event"`
	Category       string `json:"category"`
}

// AgeAt returns whole years between dob and ref, floored.
func AgeAt(dob, ref time.Time) int {
	years := ref.Year() - dob.Year()
	if ref.Month() < dob.Month() || (ref.Month() == dob.Month() && ref.Day() < dob.Day()) {
		years--
	}
	return years
}

// CategoryFor derives the age category against the event's thresholds.
func CategoryFor(age int, event *models.Event) string {
	switch {
	case age >= event.AdultAgeThreshold:
		return models.CategoryAdult
	case age >= event.YouthAgeThreshold:
		return models.CategoryYouth
	default:
		return models.CategoryChild
	}
}

// Compute prices a single registrant, surcharge included.
func Compute(in Input, event *models.Event, cfg *models.PricingConfig) Result {
	res := ComputeBase(in, event, cfg)

	// The two free branches and infants never pick up a late fee.
	if res.Base == 0 {
		return res
	}

	registeredAt := in.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}
	if tier := MatchSurchargeTier(registeredAt, cfg.SurchargeTiers); tier != nil {
		res.Surcharge = tier.Amount
		res.SurchargeLabel = tier.Label
		res.Amount = res.Base + tier.Amount
		res.Detail = fmt.Sprintf("%s + %s %s = %s total",
			res.Detail, Dollars(tier.Amount), tier.Label, Dollars(res.Amount))
	}
	return res
}

// ComputeBase prices a single registrant without any surcharge. The group
// aggregator uses this directly so the late fee is applied once per
// checkout instead of once per member.
func ComputeBase(in Input, event *models.Event, cfg *models.PricingConfig) Result {
	age := AgeAt(in.DateOfBirth, event.StartDate)

	// Infant rule wins over everything, including full/partial and motel.
	if age <= event.InfantAgeThreshold {
		return Result{
			Amount:     0,
			Base:       0,
			Code:       models.CodeFreeInfant,
			Detail:     fmt.Sprintf("Free (infant): age %d at event start", age),
			AgeAtEvent: age,
			Category:   models.CategoryChild,
		}
	}

	category := CategoryFor(age, event)

	if in.FullDuration {
		// Motel flag is ignored for full-duration attendees.
		amount := fullPrice(category, cfg)
		return Result{
			Amount:     amount,
			Base:       amount,
			Code:       fullCode(category),
			Detail:     fmt.Sprintf("%s, full event: %s", title(category), Dollars(amount)),
			AgeAtEvent: age,
			Category:   category,
		}
	}

	if in.MotelStay && cfg.MotelStayFree {
		return Result{
			Amount:     0,
			Base:       0,
			Code:       models.CodePartialMotelFree,
			Detail:     "Free (motel stay, partial attendance)",
			AgeAtEvent: age,
			Category:   category,
		}
	}

	daily := dailyPrice(category, cfg)
	amount := daily * int64(in.NumDays)
	return Result{
		Amount: amount,
		Base:   amount,
		Code:   partialCode(category),
		Detail: fmt.Sprintf("%s, %d day(s) x %s/day = %s",
			title(category), in.NumDays, Dollars(daily), Dollars(amount)),
		AgeAtEvent: age,
		Category:   category,
	}
}

// MatchSurchargeTier returns the first tier whose [start, end] interval
// contains the given date, inclusive at day granularity, or nil. Tiers are
// checked in stored order; overlaps are resolved by order alone.
func MatchSurchargeTier(at time.Time, tiers []models.SurchargeTier) *models.SurchargeTier {
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	for i := range tiers {
		start := truncateDay(tiers[i].StartDate)
		end := truncateDay(tiers[i].EndDate)
		if !day.Before(start) && !day.After(end) {
			return &tiers[i]
		}
	}
	return nil
}

// Dollars formats cents as a dollar string, e.g. 12050 -> "$120.50".
func Dollars(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func title(category string) string {
	switch category {
	case models.CategoryAdult:
		return "Adult"
	case models.CategoryYouth:
		return "Youth"
	default:
		return "Child"
	}
}

func fullPrice(category string, cfg *models.PricingConfig) int64 {
	switch category {
	case models.CategoryAdult:
		return cfg.AdultFull
	case models.CategoryYouth:
		return cfg.YouthFull
	default:
		return cfg.ChildFull
	}
}

func dailyPrice(category string, cfg *models.PricingConfig) int64 {
	switch category {
	case models.CategoryAdult:
		return cfg.AdultDaily
	case models.CategoryYouth:
		return cfg.YouthDaily
	default:
		return cfg.ChildDaily
	}
}

func fullCode(category string) string {
	switch category {
	case models.CategoryAdult:
		return models.CodeFullAdult
	case models.CategoryYouth:
		return models.CodeFullYouth
	default:
		return models.CodeFullChild
	}
}

func partialCode(category string) string {
	switch category {
	case models.CategoryAdult:
		return models.CodePartialAdult
	case models.CategoryYouth:
		return models.CodePartialYouth
	default:
		return models.CodePartialChild
	}
}
