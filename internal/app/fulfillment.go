package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"resort_booking/internal/adapters/observability"
	"resort_booking/internal/domain"
	"resort_booking/internal/pricing"
)

// FulfillmentService drives a booking through its lifecycle:
// PENDING_PAYMENT -> PAYMENT_RECEIVED -> CONFIRMED -> COMPLETED, with
// CANCELLED reachable from any non-COMPLETED state.
type FulfillmentService struct {
	repo       domain.Repository
	channel    domain.ChannelClient
	avail      *AvailabilityService
	commission *CommissionService
	notifier   domain.Notifier
	now        func() time.Time
}

func NewFulfillmentService(r domain.Repository, ch domain.ChannelClient, av *AvailabilityService, cm *CommissionService, n domain.Notifier) *FulfillmentService {
	return &FulfillmentService{repo: r, channel: ch, avail: av, commission: cm, notifier: n, now: time.Now}
}

// IntakeRequest is a booking-intent: all parameters the guest supplied plus
// the attribution state the client carried.
type IntakeRequest struct {
	CollectionID     int64
	Guest            domain.Guest
	CheckIn          time.Time
	CheckOut         time.Time
	Guests           int
	Source           domain.BookingSource
	AffiliateCode    string
	ReferralDiscount float64
}

// Intake validates the request and creates a PENDING_PAYMENT booking with a
// locked-in price snapshot.
func (s *FulfillmentService) Intake(ctx context.Context, req IntakeRequest) (domain.Booking, error) {
	col, err := s.repo.GetCollection(ctx, req.CollectionID)
	if err != nil {
		return domain.Booking{}, err
	}
	units, err := s.repo.ListUnits(ctx, req.CollectionID)
	if err != nil {
		return domain.Booking{}, err
	}
	if err := validateStay(col, countBookable(units), req.CheckIn, req.CheckOut, req.Guests); err != nil {
		return domain.Booking{}, err
	}

	rules, err := s.repo.ListActiveDiscounts(ctx, req.CollectionID)
	if err != nil {
		return domain.Booking{}, err
	}
	res := pricing.EvaluateDiscounts(rules, req.CheckIn, req.CheckOut)
	pb := pricing.Quote(pricing.QuoteInput{
		NightlyRate:       col.NightlyRate,
		Nights:            nights(req.CheckIn, req.CheckOut),
		Units:             domain.UnitsFor(req.Guests, col.MaxGuestsPerUnit),
		CleaningFee:       col.CleaningFee,
		ServiceFeePercent: col.ServiceFeePercent,
		DiscountPercent:   res.Percent,
	})

	b := domain.Booking{
		ID:            uuid.NewString(),
		CollectionID:  req.CollectionID,
		Guest:         req.Guest,
		CheckIn:       req.CheckIn,
		CheckOut:      req.CheckOut,
		GuestCount:    req.Guests,
		UnitsRequired: domain.UnitsFor(req.Guests, col.MaxGuestsPerUnit),
		Status:        domain.BookingPendingPayment,
		Source:        req.Source,
		CreatedAt:     s.now().UTC(),
	}

	if req.AffiliateCode != "" {
		link, lerr := s.repo.GetAffiliateLinkByCode(ctx, req.AffiliateCode)
		switch {
		case lerr == nil && link.Active:
			b.AffiliateLinkID = &link.ID
			if req.ReferralDiscount > 0 {
				pb = pricing.ApplyReferralDiscount(pb, req.ReferralDiscount)
			}
		case errors.Is(lerr, domain.ErrNotFound):
			// unknown codes never block a booking
			log.Info().Str("code", req.AffiliateCode).Msg("ignoring unknown affiliate code")
		case lerr != nil:
			return domain.Booking{}, lerr
		}
	}
	b.Price = pb

	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return domain.Booking{}, err
	}
	observability.ObserveBooking(string(b.Status))
	return b, nil
}

// ConfirmPayment runs fulfillment after the payment collaborator reports
// success. Idempotent: a booking already CONFIRMED or COMPLETED returns its
// existing allocation untouched.
func (s *FulfillmentService) ConfirmPayment(ctx context.Context, bookingID string) (domain.Booking, []domain.BookingUnit, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, nil, err
	}

	switch b.Status {
	case domain.BookingConfirmed, domain.BookingCompleted:
		bus, err := s.repo.ListBookingUnits(ctx, b.ID)
		return b, bus, err
	case domain.BookingCancelled:
		return domain.Booking{}, nil, domain.Validationf("booking %s is cancelled", b.ID)
	case domain.BookingPendingPayment:
		if err := s.repo.SetBookingStatus(ctx, b.ID, domain.BookingPaymentReceived, s.now().UTC()); err != nil {
			return domain.Booking{}, nil, err
		}
		b.Status = domain.BookingPaymentReceived
	case domain.BookingPaymentReceived:
		// retry path: payment already recorded, allocation pending
	}

	// A prior attempt may have died between the allocation commit and the
	// CONFIRMED write; a retry must resume with the existing rows, never
	// allocate a second set.
	bus, err := s.repo.ListBookingUnits(ctx, b.ID)
	if err != nil {
		return domain.Booking{}, nil, err
	}
	if len(bus) == 0 {
		bus, err = s.allocate(ctx, b)
		if err != nil {
			return domain.Booking{}, nil, err
		}
	}

	// Remote creation runs strictly after the local allocation committed, and
	// per-unit failures are tolerated: a unit left without a remote id is
	// recorded for the reconciler rather than failing the booking.
	guestsPerUnit := int(math.Ceil(float64(b.GuestCount) / float64(len(bus))))
	perUnitPrice := pricing.PerUnitPrice(b.Price.Total, len(bus))
	contact := b.Guest.Contact()
	for i := range bus {
		if bus[i].RemoteSynced() {
			continue
		}
		remoteID, cerr := s.channel.CreateReservation(ctx, domain.RemoteReservation{
			UnitRemoteID: bus[i].UnitRemoteID,
			CheckIn:      b.CheckIn,
			CheckOut:     b.CheckOut,
			Guest:        contact,
			GuestCount:   guestsPerUnit,
			Price:        perUnitPrice,
		})
		if cerr != nil {
			observability.ObserveUnsyncedUnit(1)
			log.Warn().Err(cerr).Str("booking", b.ID).Int64("unit", bus[i].UnitID).
				Msg("remote reservation failed, unit left for reconciliation")
			continue
		}
		if serr := s.repo.SetBookingUnitRemote(ctx, bus[i].ID, remoteID); serr != nil {
			log.Error().Err(serr).Str("booking", b.ID).Int64("unit", bus[i].UnitID).
				Str("remote", remoteID).Msg("recording remote reservation id failed")
			continue
		}
		bus[i].RemoteReservationID = &remoteID
	}

	confirmedAt := s.now().UTC()
	if err := s.repo.SetBookingStatus(ctx, b.ID, domain.BookingConfirmed, confirmedAt); err != nil {
		return domain.Booking{}, nil, err
	}
	b.Status = domain.BookingConfirmed
	b.ConfirmedAt = &confirmedAt
	observability.ObserveBooking(string(b.Status))

	if b.AffiliateLinkID != nil {
		if _, cerr := s.commission.RecordBookingCommission(ctx, b); cerr != nil {
			log.Error().Err(cerr).Str("booking", b.ID).Msg("commission recording failed")
		}
	}
	if nerr := s.notifier.BookingConfirmed(ctx, b); nerr != nil {
		log.Warn().Err(nerr).Str("booking", b.ID).Msg("confirmation notification failed")
	}
	return b, bus, nil
}

// allocate selects units and writes BookingUnit rows transactionally. A lost
// allocation race is retried once; a second loss surfaces as an availability
// error.
func (s *FulfillmentService) allocate(ctx context.Context, b domain.Booking) ([]domain.BookingUnit, error) {
	guestsPerUnit := int(math.Ceil(float64(b.GuestCount) / float64(b.UnitsRequired)))
	perUnitPrice := pricing.PerUnitPrice(b.Price.Total, b.UnitsRequired)

	for attempt := 0; ; attempt++ {
		selected, err := s.avail.Select(ctx, b.CollectionID, b.CheckIn, b.CheckOut, b.UnitsRequired)
		if err != nil {
			return nil, err
		}
		bus, err := s.repo.AllocateUnits(ctx, b.ID, selected, b.CheckIn, b.CheckOut, guestsPerUnit, perUnitPrice)
		if errors.Is(err, domain.ErrAllocationRace) {
			if attempt == 0 {
				log.Info().Str("booking", b.ID).Msg("allocation lost race, retrying")
				continue
			}
			return nil, fmt.Errorf("%w: %s", domain.ErrInsufficientAvailability, "allocation lost race twice")
		}
		if err != nil {
			return nil, err
		}
		return bus, nil
	}
}

// Cancel cancels a booking: remote reservations are cancelled best-effort
// per unit, then the booking is marked CANCELLED. Cancelling an already
// cancelled booking is a no-op success.
func (s *FulfillmentService) Cancel(ctx context.Context, bookingID, actor, reason string) (domain.Booking, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if b.Status == domain.BookingCancelled {
		return b, nil
	}
	if b.Status == domain.BookingCompleted {
		return domain.Booking{}, domain.Validationf("booking %s is completed and can no longer be cancelled", b.ID)
	}

	bus, err := s.repo.ListBookingUnits(ctx, b.ID)
	if err != nil {
		return domain.Booking{}, err
	}
	for _, bu := range bus {
		if bu.RemoteReservationID == nil || bu.RemoteCancelledAt != nil {
			continue
		}
		if cerr := s.channel.CancelReservation(ctx, *bu.RemoteReservationID); cerr != nil {
			log.Warn().Err(cerr).Str("booking", b.ID).Str("remote", *bu.RemoteReservationID).
				Msg("remote cancellation failed, continuing")
			continue
		}
		if serr := s.repo.SetBookingUnitRemoteCancelled(ctx, bu.ID, s.now().UTC()); serr != nil {
			log.Error().Err(serr).Str("booking", b.ID).Msg("recording remote cancellation failed")
		}
	}

	cancelledAt := s.now().UTC()
	if err := s.repo.SetBookingCancelled(ctx, b.ID, cancelledAt, actor, reason); err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingCancelled
	b.CancelledAt = &cancelledAt
	b.CancelActor = &actor
	b.CancelReason = &reason
	observability.ObserveBooking(string(b.Status))

	if nerr := s.notifier.BookingCancelled(ctx, b); nerr != nil {
		log.Warn().Err(nerr).Str("booking", b.ID).Msg("cancellation notification failed")
	}
	return b, nil
}

// Complete marks a confirmed booking COMPLETED after checkout.
func (s *FulfillmentService) Complete(ctx context.Context, bookingID string) (domain.Booking, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, err
	}
	if b.Status == domain.BookingCompleted {
		return b, nil
	}
	if b.Status != domain.BookingConfirmed {
		return domain.Booking{}, domain.Validationf("booking %s is %s, only confirmed bookings complete", b.ID, b.Status)
	}
	if err := s.repo.SetBookingStatus(ctx, b.ID, domain.BookingCompleted, s.now().UTC()); err != nil {
		return domain.Booking{}, err
	}
	b.Status = domain.BookingCompleted
	observability.ObserveBooking(string(b.Status))
	return b, nil
}

// GetBooking exposes the read path for the API layer.
func (s *FulfillmentService) GetBooking(ctx context.Context, bookingID string) (domain.Booking, []domain.BookingUnit, error) {
	b, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, nil, err
	}
	bus, err := s.repo.ListBookingUnits(ctx, b.ID)
	if err != nil {
		return domain.Booking{}, nil, err
	}
	return b, bus, nil
}
