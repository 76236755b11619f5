package domain

import (
	"math"
	"time"
)

type BookingStatus string

const (
	BookingPendingPayment  BookingStatus = "PENDING_PAYMENT"
	BookingPaymentReceived BookingStatus = "PAYMENT_RECEIVED"
	BookingConfirmed       BookingStatus = "CONFIRMED"
	BookingCompleted       BookingStatus = "COMPLETED"
	BookingCancelled       BookingStatus = "CANCELLED"
)

type BookingSource string

const (
	SourceDirect     BookingSource = "DIRECT"
	SourceAirbnb     BookingSource = "AIRBNB"
	SourceBookingCom BookingSource = "BOOKING_COM"
	SourceSmoobu     BookingSource = "SMOOBU"
	SourceOther      BookingSource = "OTHER"
)

type GuestContact struct {
	Name    string
	Email   string
	Phone   string
	Country string
}

// Guest is a tagged variant: either a reference to a registered user (with a
// contact snapshot taken at intake) or a pending guest known only by contact
// details. Constructors keep the two cases from being mixed.
type Guest struct {
	userID  *int64
	contact GuestContact
}

func IdentifiedGuest(userID int64, snapshot GuestContact) Guest {
	return Guest{userID: &userID, contact: snapshot}
}

func PendingGuest(c GuestContact) Guest {
	return Guest{contact: c}
}

// Identified reports the user reference when this guest is a registered user.
func (g Guest) Identified() (int64, bool) {
	if g.userID == nil {
		return 0, false
	}
	return *g.userID, true
}

func (g Guest) Contact() GuestContact { return g.contact }

// PriceBreakdown is the price snapshot locked in at intake.
// Subtotal, CleaningFee and ServiceFee sum to Total; ReferralDiscount is the
// affiliate amount already subtracted to reach TotalPayable. Commission is
// always computed on Total, never on TotalPayable.
type PriceBreakdown struct {
	NightlyRate      float64 // per night after discount
	Nights           int
	Units            int
	DiscountPercent  float64
	Subtotal         float64
	OriginalSubtotal float64
	CleaningFee      float64
	ServiceFee       float64
	Total            float64
	OriginalTotal    float64
	ReferralDiscount float64
	TotalPayable     float64
}

// Booking is one reservation request/contract. Never deleted, only cancelled.
type Booking struct {
	ID              string
	CollectionID    int64
	Guest           Guest
	CheckIn         time.Time // [CheckIn, CheckOut)
	CheckOut        time.Time
	GuestCount      int
	UnitsRequired   int
	Price           PriceBreakdown
	Status          BookingStatus
	Source          BookingSource
	AffiliateLinkID *int64
	CreatedAt       time.Time
	ConfirmedAt     *time.Time
	CancelledAt     *time.Time
	CancelActor     *string
	CancelReason    *string
}

// UnitsFor returns how many units a party needs given a collection's
// per-unit capacity.
func UnitsFor(guests, maxGuestsPerUnit int) int {
	if maxGuestsPerUnit <= 0 {
		return 0
	}
	return int(math.Ceil(float64(guests) / float64(maxGuestsPerUnit)))
}

// BookingUnit records one physical unit allocated to a booking and the
// remote reservation created for it. A nil RemoteReservationID marks a unit
// whose remote creation failed and is awaiting reconciliation.
type BookingUnit struct {
	ID                  int64
	BookingID           string
	UnitID              int64
	UnitRemoteID        string
	RemoteReservationID *string
	GuestCount          int
	Price               float64
	CreatedAt           time.Time
	RemoteCancelledAt   *time.Time
}

func (bu BookingUnit) RemoteSynced() bool { return bu.RemoteReservationID != nil }

// Overlaps is the half-open interval overlap test shared by availability and
// discount date-range checks.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
