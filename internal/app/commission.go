package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"resort_booking/internal/adapters/observability"
	"resort_booking/internal/domain"
	"resort_booking/internal/pricing"
)

// CommissionService records affiliate commission for confirmed bookings,
// exactly once per booking.
type CommissionService struct {
	repo     domain.Repository
	notifier domain.Notifier
	now      func() time.Time
}

func NewCommissionService(r domain.Repository, n domain.Notifier) *CommissionService {
	return &CommissionService{repo: r, notifier: n, now: time.Now}
}

// RecordBookingCommission writes the AffiliateTransaction for a booking that
// reached CONFIRMED with an affiliate link attached. The base is the
// pre-referral-discount total: commission is never computed on the amount
// the guest actually paid after a referral discount.
//
// Re-entry (retried confirmations) finds the existing transaction and
// returns it unchanged.
func (s *CommissionService) RecordBookingCommission(ctx context.Context, b domain.Booking) (domain.AffiliateTransaction, error) {
	if b.AffiliateLinkID == nil {
		return domain.AffiliateTransaction{}, nil
	}

	if existing, err := s.repo.GetAffiliateTransactionByBooking(ctx, b.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.AffiliateTransaction{}, err
	}

	link, err := s.repo.GetAffiliateLink(ctx, *b.AffiliateLinkID)
	if err != nil {
		return domain.AffiliateTransaction{}, err
	}

	rate := link.BookingRate()
	t := domain.AffiliateTransaction{
		ID:              uuid.NewString(),
		AffiliateLinkID: link.ID,
		BookingID:       b.ID,
		Base:            b.Price.Total,
		RatePercent:     rate,
		Amount:          pricing.CommissionAmount(b.Price.Total, rate),
		CreatedAt:       s.now().UTC(),
	}
	if err := s.repo.CreateAffiliateTransaction(ctx, t); err != nil {
		// the unique key on booking_id is the last-resort guard: a duplicate
		// insert means another confirmation retry got there first
		if existing, gerr := s.repo.GetAffiliateTransactionByBooking(ctx, b.ID); gerr == nil {
			return existing, nil
		}
		return domain.AffiliateTransaction{}, fmt.Errorf("create affiliate transaction: %w", err)
	}
	observability.ObserveCommission(t.Amount)

	if nerr := s.notifier.CommissionEarned(ctx, link.OwnerEmail, t.Amount, b.ID); nerr != nil {
		log.Warn().Err(nerr).Str("booking", b.ID).Str("code", link.Code).
			Msg("commission notification failed")
	}
	return t, nil
}
