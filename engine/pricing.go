/*
pricing.go - Deterministic price engine

PURPOSE:
  Computes the full price breakdown for a booking from service attributes
  and a pricing configuration snapshot. Pure: identical inputs always
  produce identical output, so edits and rebooks can safely recompute
  historical prices.

CALCULATION PIPELINE:
  base price (by service)
    + room price (bedrooms/bathrooms x per-service rates; office maps a
      size tier to an effective bedroom count; carpet cleaning prices
      fitted rooms and loose carpets instead)
    + extras price (matched extras only; unknown ids ignored)
    + furniture fee (carpet cleaning, furnished rooms)
  = subtotal
    - frequency discount (rate x subtotal)
    - code discount (clamped to the remaining discountable amount)
  = discounted subtotal
    + service fee (rate x discounted subtotal)
    + tip (pass-through, never discounted)
  = total

NUMERIC SEMANTICS:
  All arithmetic in decimal. Rounding to 2dp happens once, on the final
  total. Intermediate discounts stay unrounded so that repeated
  percentage steps don't compound rounding error.

SEE ALSO:
  - earnings.go: Consumes the breakdown for cleaner payouts
  - store.go: SettingsStore serves the live PricingConfig
*/
package engine

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// RoomRates are the per-bedroom and per-bathroom rates for one service.
type RoomRates struct {
	Bedroom  decimal.Decimal
	Bathroom decimal.Decimal
}

// CarpetRates price the carpet-cleaning service, which counts rooms and
// carpets instead of bedrooms.
type CarpetRates struct {
	PerFittedRoom  decimal.Decimal
	PerLooseCarpet decimal.Decimal
	FurnitureFee   decimal.Decimal
}

// PricingConfig is the configuration snapshot the engine prices against.
// Loaded from the settings store; DefaultPricingConfig is the compiled-in
// fallback when no stored config exists.
type PricingConfig struct {
	BasePrices         map[ServiceType]decimal.Decimal
	RoomPricing        map[ServiceType]RoomRates
	ExtrasPricing      map[string]decimal.Decimal
	FrequencyDiscounts map[Frequency]decimal.Decimal
	ServiceFeeRate     decimal.Decimal
	CarpetRates        CarpetRates
}

// DefaultPricingConfig returns the fallback rates used when the settings
// store has no stored configuration.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		BasePrices: map[ServiceType]decimal.Decimal{
			ServiceStandard:  NewMoney(250),
			ServiceDeep:      NewMoney(400),
			ServiceMoveInOut: NewMoney(500),
			ServiceAirbnb:    NewMoney(350),
			ServiceOffice:    NewMoney(300),
			ServiceHoliday:   NewMoney(450),
			ServiceCarpet:    NewMoney(350),
		},
		RoomPricing: map[ServiceType]RoomRates{
			ServiceStandard:  {Bedroom: NewMoney(20), Bathroom: NewMoney(30)},
			ServiceDeep:      {Bedroom: NewMoney(180), Bathroom: NewMoney(250)},
			ServiceMoveInOut: {Bedroom: NewMoney(160), Bathroom: NewMoney(220)},
			ServiceAirbnb:    {Bedroom: NewMoney(18), Bathroom: NewMoney(26)},
			ServiceOffice:    {Bedroom: NewMoney(30), Bathroom: NewMoney(40)},
			ServiceHoliday:   {Bedroom: NewMoney(30), Bathroom: NewMoney(40)},
			ServiceCarpet:    {},
		},
		ExtrasPricing: map[string]decimal.Decimal{
			"inside-fridge":    NewMoney(50),
			"inside-oven":      NewMoney(50),
			"inside-cabinets":  NewMoney(75),
			"interior-windows": NewMoney(100),
			"interior-walls":   NewMoney(100),
			"ironing":          NewMoney(75),
			"laundry":          NewMoney(150),
		},
		FrequencyDiscounts: map[Frequency]decimal.Decimal{
			FreqOneTime:  decimal.Zero,
			FreqWeekly:   decimal.NewFromFloat(0.15),
			FreqBiWeekly: decimal.NewFromFloat(0.10),
			FreqMonthly:  decimal.NewFromFloat(0.05),
		},
		ServiceFeeRate: decimal.NewFromFloat(0.10),
		CarpetRates: CarpetRates{
			PerFittedRoom:  NewMoney(180),
			PerLooseCarpet: NewMoney(150),
			FurnitureFee:   NewMoney(200),
		},
	}
}

// officeTierBedrooms maps an office size tier to its effective bedroom count.
var officeTierBedrooms = map[OfficeSize]int{
	OfficeSmall:  2,
	OfficeMedium: 5,
	OfficeLarge:  8,
}

// =============================================================================
// DISCOUNT CODES
// =============================================================================

type DiscountType string

const (
	DiscountPercent DiscountType = "percentage"
	DiscountFixed   DiscountType = "fixed"
)

// DiscountCode is a resolved code passed into the engine. Resolution (does
// the code exist, is it within its validity window) happens upstream;
// inactive codes contribute nothing.
type DiscountCode struct {
	Code        string
	Type        DiscountType
	Value       decimal.Decimal // percent (0-100) or fixed amount
	MaxDiscount decimal.Decimal // zero means uncapped
	Active      bool
}

// =============================================================================
// PRICE BREAKDOWN
// =============================================================================

// PriceBreakdown is the immutable result of one pricing computation.
// Invariant: Total = Subtotal - FrequencyDiscount - DiscountCodeDiscount
// + ServiceFee + Tip, and Subtotal = BasePrice + RoomPrice + ExtrasPrice
// + FurnitureFee.
type PriceBreakdown struct {
	BasePrice            decimal.Decimal
	RoomPrice            decimal.Decimal
	ExtrasPrice          decimal.Decimal
	FurnitureFee         decimal.Decimal
	Subtotal             decimal.Decimal
	FrequencyDiscount    decimal.Decimal
	DiscountCodeDiscount decimal.Decimal
	ServiceFee           decimal.Decimal
	Tip                  decimal.Decimal
	Total                decimal.Decimal
}

// DiscountedSubtotal returns the subtotal after both discounts. This is the
// base for the service fee and for cleaner earnings.
func (b PriceBreakdown) DiscountedSubtotal() decimal.Decimal {
	return b.Subtotal.Sub(b.FrequencyDiscount).Sub(b.DiscountCodeDiscount)
}

// =============================================================================
// PRICE ENGINE
// =============================================================================

// PriceRequest carries the service attributes to price.
type PriceRequest struct {
	Service   ServiceType
	Detail    ServiceDetail
	Extras    []string
	Frequency Frequency
	Code      *DiscountCode
	Tip       decimal.Decimal
}

// CalculatePrice computes a full price breakdown. Deterministic and pure.
func CalculatePrice(req PriceRequest, cfg PricingConfig) PriceBreakdown {
	basePrice := cfg.BasePrices[req.Service]

	var roomPrice, extrasPrice, furnitureFee decimal.Decimal

	switch detail := req.Detail.(type) {
	case CarpetDetail:
		roomPrice = decimal.NewFromInt(int64(detail.FittedRooms)).Mul(cfg.CarpetRates.PerFittedRoom)
		extrasPrice = decimal.NewFromInt(int64(detail.LooseCarpets)).Mul(cfg.CarpetRates.PerLooseCarpet)
		if detail.Furnished {
			furnitureFee = cfg.CarpetRates.FurnitureFee
		}
	case OfficeDetail:
		rates := cfg.RoomPricing[req.Service]
		bedrooms := officeTierBedrooms[detail.Size]
		roomPrice = roomTotal(bedrooms, detail.Bathrooms, rates)
		extrasPrice = extrasTotal(req.Extras, cfg.ExtrasPricing)
	case RoomDetail:
		rates := cfg.RoomPricing[req.Service]
		roomPrice = roomTotal(detail.Bedrooms, detail.Bathrooms, rates)
		extrasPrice = extrasTotal(req.Extras, cfg.ExtrasPricing)
	}

	subtotal := basePrice.Add(roomPrice).Add(extrasPrice).Add(furnitureFee)

	frequencyDiscount := subtotal.Mul(cfg.FrequencyDiscounts[req.Frequency])

	codeDiscount := codeDiscountAmount(req.Code, subtotal, frequencyDiscount)

	discountedSubtotal := subtotal.Sub(frequencyDiscount).Sub(codeDiscount)

	serviceFee := discountedSubtotal.Mul(cfg.ServiceFeeRate)

	total := RoundMoney(discountedSubtotal.Add(serviceFee).Add(req.Tip))

	return PriceBreakdown{
		BasePrice:            basePrice,
		RoomPrice:            roomPrice,
		ExtrasPrice:          extrasPrice,
		FurnitureFee:         furnitureFee,
		Subtotal:             subtotal,
		FrequencyDiscount:    frequencyDiscount,
		DiscountCodeDiscount: codeDiscount,
		ServiceFee:           serviceFee,
		Tip:                  req.Tip,
		Total:                total,
	}
}

func roomTotal(bedrooms, bathrooms int, rates RoomRates) decimal.Decimal {
	return decimal.NewFromInt(int64(bedrooms)).Mul(rates.Bedroom).
		Add(decimal.NewFromInt(int64(bathrooms)).Mul(rates.Bathroom))
}

// extrasTotal sums matched extras. Unknown extra ids contribute nothing:
// the extras catalog evolves independently of stored bookings, so a stale
// id must not fail a recomputation.
func extrasTotal(extras []string, rates map[string]decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, extra := range extras {
		total = total.Add(rates[extra])
	}
	return total
}

// codeDiscountAmount resolves the code's value and clamps it so the
// discount never exceeds what remains after the frequency discount.
func codeDiscountAmount(code *DiscountCode, subtotal, frequencyDiscount decimal.Decimal) decimal.Decimal {
	if code == nil || !code.Active {
		return decimal.Zero
	}
	var amount decimal.Decimal
	switch code.Type {
	case DiscountPercent:
		amount = subtotal.Mul(code.Value).Div(decimal.NewFromInt(100))
	case DiscountFixed:
		amount = code.Value
	default:
		return decimal.Zero
	}
	if code.MaxDiscount.IsPositive() && amount.GreaterThan(code.MaxDiscount) {
		amount = code.MaxDiscount
	}
	remaining := subtotal.Sub(frequencyDiscount)
	if amount.GreaterThan(remaining) {
		amount = remaining
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}
