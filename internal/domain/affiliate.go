package domain

import "time"

// AffiliateLink is a referral code. BookingCommissionPercent, when set,
// overrides the general CommissionPercent for stay bookings.
type AffiliateLink struct {
	ID                       int64
	Code                     string
	OwnerName                string
	OwnerEmail               string
	CommissionPercent        float64
	BookingCommissionPercent *float64
	TotalEarned              float64
	Conversions              int64
	Active                   bool
}

// BookingRate returns the percent applied to confirmed stay bookings.
func (l AffiliateLink) BookingRate() float64 {
	if l.BookingCommissionPercent != nil {
		return *l.BookingCommissionPercent
	}
	return l.CommissionPercent
}

// AffiliateTransaction is a commission record tied to exactly one booking.
// At most one exists per booking; the storage layer backs this with a unique
// key on BookingID.
type AffiliateTransaction struct {
	ID              string
	AffiliateLinkID int64
	BookingID       string
	Base            float64
	RatePercent     float64
	Amount          float64
	CreatedAt       time.Time
}
