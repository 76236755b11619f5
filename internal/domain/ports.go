package domain

import (
	"context"
	"time"
)

// Repository is the transactional relational store behind the core.
type Repository interface {
	// Catalog reads (admin flows own the writes)
	GetCollection(ctx context.Context, id int64) (Collection, error)
	ListUnits(ctx context.Context, collectionID int64) ([]Unit, error)
	ListActiveDiscounts(ctx context.Context, collectionID int64) ([]Discount, error)
	GetAffiliateLink(ctx context.Context, id int64) (AffiliateLink, error)
	GetAffiliateLinkByCode(ctx context.Context, code string) (AffiliateLink, error)

	// Bookings
	CreateBooking(ctx context.Context, b Booking) error
	GetBooking(ctx context.Context, id string) (Booking, error)
	SetBookingStatus(ctx context.Context, id string, status BookingStatus, at time.Time) error
	SetBookingCancelled(ctx context.Context, id string, at time.Time, actor, reason string) error

	// ListBookedUnitIDs returns unit ids of the collection that have a
	// CONFIRMED or COMPLETED booking overlapping [from, to).
	ListBookedUnitIDs(ctx context.Context, collectionID int64, from, to time.Time) ([]int64, error)

	// AllocateUnits re-checks the units for overlap and inserts BookingUnit
	// rows in a single transaction with row locks on the unit rows. It
	// returns ErrAllocationRace when a concurrent allocation took any of the
	// units first. Remote reservation ids are filled in later by
	// SetBookingUnitRemote, outside the transaction.
	AllocateUnits(ctx context.Context, bookingID string, units []Unit, from, to time.Time, guestsPerUnit int, pricePerUnit float64) ([]BookingUnit, error)

	ListBookingUnits(ctx context.Context, bookingID string) ([]BookingUnit, error)
	SetBookingUnitRemote(ctx context.Context, bookingUnitID int64, remoteReservationID string) error
	SetBookingUnitRemoteCancelled(ctx context.Context, bookingUnitID int64, at time.Time) error
	ListUnsyncedBookingUnits(ctx context.Context, limit int) ([]BookingUnit, error)

	// Commission: at most one transaction per booking; the unique key on
	// booking_id is the storage-level guard behind the application check.
	GetAffiliateTransactionByBooking(ctx context.Context, bookingID string) (AffiliateTransaction, error)
	CreateAffiliateTransaction(ctx context.Context, t AffiliateTransaction) error

	// Attribution click log (fire-and-forget callers)
	RecordAttributionClick(ctx context.Context, code string, at time.Time) error
}

// DayRate is one unit-day as reported by the channel manager.
type DayRate struct {
	Date      time.Time
	Price     float64
	MinStay   int
	Available bool
}

// RemoteReservation is the channel-side create request for one unit.
type RemoteReservation struct {
	UnitRemoteID string
	CheckIn      time.Time
	CheckOut     time.Time
	Guest        GuestContact
	GuestCount   int
	Price        float64
}

// ChannelClient is the channel-manager boundary. All calls may fail with
// transport or remote-validation errors; callers must not assume success.
type ChannelClient interface {
	ListUnitDayRates(ctx context.Context, unitRemoteIDs []string, from, to time.Time) (map[string][]DayRate, error)
	CreateReservation(ctx context.Context, r RemoteReservation) (string, error)
	CancelReservation(ctx context.Context, remoteReservationID string) error
}

// Notifier delivers guest/affiliate mail. Failures are logged by callers and
// never roll back the state that triggered them.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b Booking) error
	BookingCancelled(ctx context.Context, b Booking) error
	CommissionEarned(ctx context.Context, email string, amount float64, bookingID string) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
