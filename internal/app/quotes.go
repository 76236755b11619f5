package app

import (
	"context"
	"time"

	"resort_booking/internal/domain"
	"resort_booking/internal/pricing"
)

// QuoteService prices a prospective stay without touching booking state.
type QuoteService struct {
	repo domain.Repository
}

func NewQuoteService(r domain.Repository) *QuoteService {
	return &QuoteService{repo: r}
}

// Quote validates the stay and returns the locked-in breakdown a booking
// intake would snapshot.
func (s *QuoteService) Quote(ctx context.Context, collectionID int64, checkIn, checkOut time.Time, guests int) (domain.PriceBreakdown, pricing.DiscountResult, error) {
	col, err := s.repo.GetCollection(ctx, collectionID)
	if err != nil {
		return domain.PriceBreakdown{}, pricing.DiscountResult{}, err
	}
	units, err := s.repo.ListUnits(ctx, collectionID)
	if err != nil {
		return domain.PriceBreakdown{}, pricing.DiscountResult{}, err
	}
	if err := validateStay(col, countBookable(units), checkIn, checkOut, guests); err != nil {
		return domain.PriceBreakdown{}, pricing.DiscountResult{}, err
	}

	rules, err := s.repo.ListActiveDiscounts(ctx, collectionID)
	if err != nil {
		return domain.PriceBreakdown{}, pricing.DiscountResult{}, err
	}
	res := pricing.EvaluateDiscounts(rules, checkIn, checkOut)
	pb := pricing.Quote(pricing.QuoteInput{
		NightlyRate:       col.NightlyRate,
		Nights:            nights(checkIn, checkOut),
		Units:             domain.UnitsFor(guests, col.MaxGuestsPerUnit),
		CleaningFee:       col.CleaningFee,
		ServiceFeePercent: col.ServiceFeePercent,
		DiscountPercent:   res.Percent,
	})
	return pb, res, nil
}

func nights(checkIn, checkOut time.Time) int {
	return int(checkOut.Sub(checkIn).Hours() / 24)
}

func countBookable(units []domain.Unit) int {
	n := 0
	for _, u := range units {
		if u.Bookable() {
			n++
		}
	}
	return n
}

// validateStay rejects malformed booking parameters before any allocation
// attempt. Availability (minimum stay, free units) is checked separately so
// callers can distinguish the two failure classes.
func validateStay(col domain.Collection, bookableUnits int, checkIn, checkOut time.Time, guests int) error {
	if !checkOut.After(checkIn) {
		return domain.Validationf("check-out must be after check-in")
	}
	if nights(checkIn, checkOut) < 1 {
		return domain.Validationf("stay must cover at least one night")
	}
	if guests < 1 {
		return domain.Validationf("guest count must be positive")
	}
	need := domain.UnitsFor(guests, col.MaxGuestsPerUnit)
	if need == 0 || need > bookableUnits {
		return domain.Validationf("%d guests exceed collection capacity", guests)
	}
	if col.MinNights > 0 && nights(checkIn, checkOut) < col.MinNights {
		return domain.ErrBelowMinStay
	}
	return nil
}
