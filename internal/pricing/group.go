package pricing

import (
	"time"

	"registration-service/internal/models"
)

// GroupResult aggregates pricing over a family/group sharing one checkout.
// The late-registration surcharge is a per-checkout fee: it is applied once
// to the combined subtotal, never once per member.
type GroupResult struct {
	Items          []Result `json:"items"`
	Subtotal       int64    `json:"subtotal"`
	Surcharge      int64    `json:"surcharge"`
	SurchargeLabel string   `json:"surcharge_label,omitempty"`
	GrandTotal     int64    `json:"grand_total"`
}

// ComputeGroup prices N registrants as one checkout. Each member's detail
// describes only that member's base contribution; the surcharge becomes a
// group-level line determined by the first member's registration date.
func ComputeGroup(inputs []Input, event *models.Event, cfg *models.PricingConfig) GroupResult {
	res := GroupResult{Items: make([]Result, 0, len(inputs))}

	for _, in := range inputs {
		item := ComputeBase(in, event, cfg)
		res.Items = append(res.Items, item)
		res.Subtotal += item.Base
	}

	// A zero-sum group (all infants / motel-free) stays free even inside
	// a matching surcharge window.
	if res.Subtotal > 0 && len(inputs) > 0 {
		registeredAt := inputs[0].RegisteredAt
		if registeredAt.IsZero() {
			registeredAt = time.Now()
		}
		if tier := MatchSurchargeTier(registeredAt, cfg.SurchargeTiers); tier != nil {
			res.Surcharge = tier.Amount
			res.SurchargeLabel = tier.Label
		}
	}

	res.GrandTotal = res.Subtotal + res.Surcharge
	return res
}
