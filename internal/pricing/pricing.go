package pricing

import (
	"github.com/shopspring/decimal"

	"resort_booking/internal/domain"
)

// QuoteInput is the pricing configuration for one stay.
type QuoteInput struct {
	NightlyRate       float64
	Nights            int
	Units             int
	CleaningFee       float64
	ServiceFeePercent float64
	DiscountPercent   float64
}

var hundred = decimal.NewFromInt(100)

// round2 rounds half-up at the cent; all money leaving this package has
// passed through it.
func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// Quote produces the itemized breakdown for a stay. The service fee is a
// percent of the discounted subtotal; OriginalSubtotal/OriginalTotal keep the
// undiscounted figures for display.
func Quote(in QuoteInput) domain.PriceBreakdown {
	rate := decimal.NewFromFloat(in.NightlyRate)
	nights := decimal.NewFromInt(int64(in.Nights))
	units := decimal.NewFromInt(int64(in.Units))
	svcPct := decimal.NewFromFloat(in.ServiceFeePercent)

	discRate := rate.Mul(hundred.Sub(decimal.NewFromFloat(in.DiscountPercent))).Div(hundred).Round(2)
	subtotal := discRate.Mul(nights).Mul(units).Round(2)
	origSubtotal := rate.Mul(nights).Mul(units).Round(2)

	cleaning := decimal.NewFromFloat(in.CleaningFee).Mul(units).Round(2)
	serviceFee := subtotal.Mul(svcPct).Div(hundred).Round(2)
	origServiceFee := origSubtotal.Mul(svcPct).Div(hundred).Round(2)

	total := subtotal.Add(cleaning).Add(serviceFee)
	origTotal := origSubtotal.Add(cleaning).Add(origServiceFee)

	return domain.PriceBreakdown{
		NightlyRate:      round2(discRate),
		Nights:           in.Nights,
		Units:            in.Units,
		DiscountPercent:  in.DiscountPercent,
		Subtotal:         round2(subtotal),
		OriginalSubtotal: round2(origSubtotal),
		CleaningFee:      round2(cleaning),
		ServiceFee:       round2(serviceFee),
		Total:            round2(total),
		OriginalTotal:    round2(origTotal),
		TotalPayable:     round2(total),
	}
}

// ApplyReferralDiscount subtracts a known affiliate discount amount from an
// already-quoted total. Total stays untouched: it is the commission base.
func ApplyReferralDiscount(pb domain.PriceBreakdown, amount float64) domain.PriceBreakdown {
	a := decimal.NewFromFloat(amount).Round(2)
	pb.ReferralDiscount = round2(a)
	pb.TotalPayable = round2(decimal.NewFromFloat(pb.Total).Sub(a))
	return pb
}

// PerUnitPrice splits a booking total across allocated units, rounded to
// cents per unit.
func PerUnitPrice(total float64, units int) float64 {
	if units <= 0 {
		return 0
	}
	return round2(decimal.NewFromFloat(total).Div(decimal.NewFromInt(int64(units))))
}

// CommissionAmount computes round(base × rate / 100, 2).
func CommissionAmount(base, ratePercent float64) float64 {
	return round2(decimal.NewFromFloat(base).Mul(decimal.NewFromFloat(ratePercent)).Div(hundred))
}
