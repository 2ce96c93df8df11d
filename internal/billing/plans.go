// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NeuraLens Contributors

package billing

import (
	"sort"

	nlerr "github.com/neuralens-dev/neuralens/pkg/errors"
)

// Plan describes a subscription tier. A zero ImageQuota means unlimited
// images; a zero DurationDays means the plan never expires.
type Plan struct {
	ID           string
	Name         string
	StatusCode   string
	PriceCents   int64
	ImageQuota   int
	DurationDays int
	AdSupported  bool
	// ForSale is false for tiers granted out of band.
	ForSale bool
}

// Unlimited reports whether the plan has no image quota.
func (p Plan) Unlimited() bool { return p.ImageQuota <= 0 }

// Expires reports whether the plan has a fixed duration.
func (p Plan) Expires() bool { return p.DurationDays > 0 }

// FreePlanID is the tier every new account starts on.
const FreePlanID = "free"

var plans = map[string]Plan{
	"free": {
		ID:          "free",
		Name:        "Free (Ads)",
		StatusCode:  "F",
		PriceCents:  0,
		ImageQuota:  15,
		AdSupported: true,
		ForSale:     true,
	},
	"day25": {
		ID:           "day25",
		Name:         "25 Images / 1 Day",
		StatusCode:   "FD",
		PriceCents:   119,
		ImageQuota:   25,
		DurationDays: 1,
		ForSale:      true,
	},
	"week100": {
		ID:           "week100",
		Name:         "100 Images / 1 Week",
		StatusCode:   "FW",
		PriceCents:   602,
		ImageQuota:   100,
		DurationDays: 7,
		ForSale:      true,
	},
	"month1000": {
		ID:           "month1000",
		Name:         "1000 Images / 30 Days",
		StatusCode:   "FM",
		PriceCents:   1204,
		ImageQuota:   1000,
		DurationDays: 30,
		ForSale:      true,
	},
	"year_unlimited": {
		ID:           "year_unlimited",
		Name:         "Unlimited / 1 Year",
		StatusCode:   "FY",
		PriceCents:   9999,
		DurationDays: 365,
		ForSale:      true,
	},
	"god_mode": {
		ID:         "god_mode",
		Name:       "God Mode (Unlimited Forever)",
		StatusCode: "G",
	},
}

// PlanByID resolves a plan by its identifier.
func PlanByID(id string) (Plan, error) {
	plan, ok := plans[id]
	if !ok {
		return Plan{}, nlerr.Errorf(nlerr.CodeBillingPlanNotFound, "billing: unknown plan %q", id)
	}
	return plan, nil
}

// ListPlans returns all purchasable plans sorted by price.
func ListPlans() []Plan {
	out := make([]Plan, 0, len(plans))
	for _, p := range plans {
		if p.ForSale {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out
}

// productToPlan maps store-listing product IDs onto plan IDs.
var productToPlan = map[string]string{
	"neuralens_day25":          "day25",
	"neuralens_week100":        "week100",
	"neuralens_month1000":      "month1000",
	"neuralens_year_unlimited": "year_unlimited",
}

// PlanForProduct resolves the plan behind a store-listing product ID.
func PlanForProduct(productID string) (Plan, error) {
	planID, ok := productToPlan[productID]
	if !ok {
		return Plan{}, nlerr.Errorf(nlerr.CodeBillingPurchaseInvalid, "billing: unknown product %q", productID)
	}
	return PlanByID(planID)
}
