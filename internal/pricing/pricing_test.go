package pricing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"registration-service/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testEvent() *models.Event {
	return &models.Event{
		ID:                 1,
		Name:               "Summer Conference 2026",
		StartDate:          date(2026, time.July, 10),
		EndDate:            date(2026, time.July, 14),
		AdultAgeThreshold:  18,
		YouthAgeThreshold:  12,
		InfantAgeThreshold: 3,
		Active:             true,
	}
}

func testConfig() *models.PricingConfig {
	return &models.PricingConfig{
		ID:            1,
		EventID:       1,
		AdultFull:     10000,
		AdultDaily:    3000,
		YouthFull:     7000,
		YouthDaily:    2000,
		ChildFull:     4000,
		ChildDaily:    1000,
		MotelStayFree: true,
		SurchargeTiers: []models.SurchargeTier{
			{
				StartDate: date(2026, time.June, 1),
				EndDate:   date(2026, time.June, 30),
				Amount:    2000,
				Label:     "Late Fee",
				Position:  0,
			},
		},
	}
}

func TestAgeAt(t *testing.T) {
	start := date(2026, time.July, 10)

	assert.Equal(t, 18, AgeAt(date(2008, time.July, 10), start), "birthday on event start counts")
	assert.Equal(t, 17, AgeAt(date(2008, time.July, 11), start), "birthday the day after does not")
	assert.Equal(t, 0, AgeAt(date(2025, time.August, 1), start))
}

func TestComputeFullDurationAdult(t *testing.T) {
	in := Input{
		DateOfBirth:  date(1990, time.March, 5),
		FullDuration: true,
		RegisteredAt: date(2026, time.March, 1),
	}

	res := Compute(in, testEvent(), testConfig())

	assert.Equal(t, int64(10000), res.Amount)
	assert.Equal(t, int64(10000), res.Base)
	assert.Equal(t, int64(0), res.Surcharge)
	assert.Equal(t, models.CodeFullAdult, res.Code)
	assert.Equal(t, "Adult, full event: $100.00", res.Detail)
	assert.Equal(t, models.CategoryAdult, res.Category)
}

func TestComputePartialAdultTwoDays(t *testing.T) {
	in := Input{
		DateOfBirth:  date(1990, time.March, 5),
		FullDuration: false,
		NumDays:      2,
		RegisteredAt: date(2026, time.March, 1),
	}

	res := Compute(in, testEvent(), testConfig())

	assert.Equal(t, int64(6000), res.Amount)
	assert.Equal(t, models.CodePartialAdult, res.Code)
	assert.Equal(t, "Adult, 2 day(s) x $30.00/day = $60.00", res.Detail)
}

func TestComputeMotelStayFree(t *testing.T) {
	in := Input{
		DateOfBirth:  date(1990, time.March, 5),
		FullDuration: false,
		MotelStay:    true,
		NumDays:      3,
		RegisteredAt: date(2026, time.June, 15),
	}

	res := Compute(in, testEvent(), testConfig())

	assert.Equal(t, int64(0), res.Amount)
	assert.Equal(t, models.CodePartialMotelFree, res.Code)
	assert.Equal(t, "Free (motel stay, partial attendance)", res.Detail)
	// Free registrants never pick up a surcharge, even in the window.
	assert.Equal(t, int64(0), res.Surcharge)
	assert.Empty(t, res.SurchargeLabel)
}

func TestComputeMotelIgnoredWhenConfigDisablesIt(t *testing.T) {
	cfg := testConfig()
	cfg.MotelStayFree = false

	in := Input{
		DateOfBirth:  date(1990, time.March, 5),
		MotelStay:    true,
		NumDays:      2,
		RegisteredAt: date(2026, time.March, 1),
	}

	res := Compute(in, testEvent(), cfg)

	assert.Equal(t, int64(6000), res.Amount, "motel flag is a no-op when the event does not comp motel guests")
	assert.Equal(t, models.CodePartialAdult, res.Code)
}

func TestComputeMotelIgnoredForFullDuration(t *testing.T) {
	in := Input{
		DateOfBirth:  date(1990, time.March, 5),
		FullDuration: true,
		MotelStay:    true,
		RegisteredAt: date(2026, time.March, 1),
	}

	res := Compute(in, testEvent(), testConfig())

	assert.Equal(t, int64(10000), res.Amount)
	assert.Equal(t, models.CodeFullAdult, res.Code)
}

func TestComputeInfantFree(t *testing.T) {
	in := Input{
		// Age 2 at event start.
		DateOfBirth:  date(2024, time.January, 15),
		FullDuration: true,
		MotelStay:    true,
		RegisteredAt: date(2026, time.June, 15),
	}

	res := Compute(in, testEvent(), testConfig())

	assert.Equal(t, int64(0), res.Amount)
	assert.Equal(t, models.CodeFreeInfant, res.Code)
	assert.Equal(t, "Free (infant): age 2 at event start", res.Detail)
	assert.Equal(t, int64(0), res.Surcharge, "infants skip the surcharge entirely")
}

func TestComputeInfantBoundary(t *testing.T) {
	// Exactly the infant threshold (3) is still free; one year older pays.
	free := Compute(Input{DateOfBirth: date(2023, time.July, 10), FullDuration: true,
		RegisteredAt: date(2026, time.March, 1)}, testEvent(), testConfig())
	paid := Compute(Input{DateOfBirth: date(2022, time.July, 10), FullDuration: true,
		RegisteredAt: date(2026, time.March, 1)}, testEvent(), testConfig())

	assert.Equal(t, models.CodeFreeInfant, free.Code)
	assert.Equal(t, models.CodeFullChild, paid.Code)
	assert.Equal(t, int64(4000), paid.Amount)
}

func TestComputeCategoryBoundaries(t *testing.T) {
	ev, cfg := testEvent(), testConfig()

	youth := Compute(Input{DateOfBirth: date(2014, time.July, 10), FullDuration: true,
		RegisteredAt: date(2026, time.March, 1)}, ev, cfg)
	adult := Compute(Input{DateOfBirth: date(2008, time.July, 10), FullDuration: true,
		RegisteredAt: date(2026, time.March, 1)}, ev, cfg)

	assert.Equal(t, models.CategoryYouth, youth.Category, "turned 12 on event start")
	assert.Equal(t, int64(7000), youth.Amount)
	assert.Equal(t, models.CategoryAdult, adult.Category, "turned 18 on event start")
	assert.Equal(t, int64(10000), adult.Amount)
}

func TestComputeSurchargeApplied(t *testing.T) {
	in := Input{
		DateOfBirth:  date(1990, time.March, 5),
		FullDuration: true,
		RegisteredAt: date(2026, time.June, 15),
	}

	res := Compute(in, testEvent(), testConfig())

	assert.Equal(t, int64(12000), res.Amount)
	assert.Equal(t, int64(10000), res.Base)
	assert.Equal(t, int64(2000), res.Surcharge)
	assert.Equal(t, "Late Fee", res.SurchargeLabel)
	assert.Equal(t, "Adult, full event: $100.00 + $20.00 Late Fee = $120.00 total", res.Detail)
}

func TestComputeDeterministic(t *testing.T) {
	in := Input{
		DateOfBirth:  date(1990, time.March, 5),
		FullDuration: true,
		RegisteredAt: date(2026, time.June, 15),
	}
	ev, cfg := testEvent(), testConfig()

	first := Compute(in, ev, cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Compute(in, ev, cfg))
	}
}

func TestMatchSurchargeTierBoundaries(t *testing.T) {
	tiers := testConfig().SurchargeTiers

	assert.Nil(t, MatchSurchargeTier(date(2026, time.May, 31), tiers))
	assert.NotNil(t, MatchSurchargeTier(date(2026, time.June, 1), tiers), "start date is inclusive")
	assert.NotNil(t, MatchSurchargeTier(date(2026, time.June, 30), tiers), "end date is inclusive")
	assert.Nil(t, MatchSurchargeTier(date(2026, time.July, 1), tiers))

	// Time-of-day on the boundary days must not matter.
	lateOnLastDay := time.Date(2026, time.June, 30, 23, 59, 59, 0, time.UTC)
	assert.NotNil(t, MatchSurchargeTier(lateOnLastDay, tiers))
}

func TestMatchSurchargeTierFirstMatchWins(t *testing.T) {
	tiers := []models.SurchargeTier{
		{StartDate: date(2026, time.June, 1), EndDate: date(2026, time.June, 30), Amount: 2000, Label: "Late Fee"},
		{StartDate: date(2026, time.June, 15), EndDate: date(2026, time.July, 9), Amount: 5000, Label: "Very Late Fee"},
	}

	tier := MatchSurchargeTier(date(2026, time.June, 20), tiers)

	assert.Equal(t, "Late Fee", tier.Label, "overlaps resolve by stored order")
	assert.Equal(t, int64(2000), tier.Amount)
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$0.00", Dollars(0))
	assert.Equal(t, "$0.05", Dollars(5))
	assert.Equal(t, "$120.50", Dollars(12050))
	assert.Equal(t, "$100.00", Dollars(10000))
}

func TestExplanationLabelDecodesLegacyCode(t *testing.T) {
	assert.Equal(t, "Free (motel stay)", models.ExplanationLabel(models.CodeFullMotelFree))
	assert.Equal(t, "Adult, full event", models.ExplanationLabel(models.CodeFullAdult))
	assert.Equal(t, "SOMETHING_ELSE", models.ExplanationLabel("SOMETHING_ELSE"))
}
