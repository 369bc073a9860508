/*
earnings.go - Cleaner payout calculation

PURPOSE:
  Computes what a cleaner earns from a priced booking using a tiered
  experience rule. Pure: safe to run in planning, dry-run validation,
  and materialization with identical results.

THE RULE:
  The cleaner's base is the customer subtotal minus the frequency
  discount and the service fee - the platform's fee never flows to the
  cleaner, and discount codes (a marketing cost) do not reduce the
  cleaner's base. Cleaners at or above the completed-job threshold earn
  the experienced rate; below it, the new rate. Tips pass through 100%.
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// EarningsConfig holds the payout tiers. Stored in settings with these
// documented defaults compiled in.
type EarningsConfig struct {
	ExperiencedRate decimal.Decimal // payout rate at/above the threshold
	NewRate         decimal.Decimal // payout rate below the threshold
	JobThreshold    int             // completed jobs to reach experienced
}

// DefaultEarningsConfig returns the documented defaults: 70% experienced,
// 60% new, threshold 50 completed jobs.
func DefaultEarningsConfig() EarningsConfig {
	return EarningsConfig{
		ExperiencedRate: decimal.NewFromFloat(0.70),
		NewRate:         decimal.NewFromFloat(0.60),
		JobThreshold:    50,
	}
}

// Earnings is the payout result for one booking.
type Earnings struct {
	Amount     decimal.Decimal // base share + tip, rounded to 2dp
	Percentage decimal.Decimal // the rate applied (0.60 or 0.70 by default)
}

// CalculateEarnings computes the cleaner payout for a priced booking.
func CalculateEarnings(price PriceBreakdown, completedJobs int, cfg EarningsConfig) Earnings {
	base := price.Subtotal.Sub(price.FrequencyDiscount).Sub(price.ServiceFee)
	if base.IsNegative() {
		base = decimal.Zero
	}

	rate := cfg.NewRate
	if completedJobs >= cfg.JobThreshold {
		rate = cfg.ExperiencedRate
	}

	return Earnings{
		Amount:     RoundMoney(base.Mul(rate).Add(price.Tip)),
		Percentage: rate,
	}
}
