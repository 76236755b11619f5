package domain

import "time"

type UnitStatus string

const (
	UnitAvailable UnitStatus = "AVAILABLE"
	UnitSoldOut   UnitStatus = "SOLD_OUT"
	UnitDraft     UnitStatus = "DRAFT"
)

// Collection is a property group sharing pricing configuration.
// Read-only to this core; admin flows mutate it elsewhere.
type Collection struct {
	ID                int64
	Name              string
	NightlyRate       float64
	CleaningFee       float64
	ServiceFeePercent float64
	MinNights         int
	MaxGuestsPerUnit  int
}

// Unit is one physical, independently bookable property. A unit without a
// remote channel id is excluded from remote sync and from fulfillment.
type Unit struct {
	ID           int64
	CollectionID int64
	Name         string
	RemoteID     *string
	Status       UnitStatus
}

func (u Unit) Bookable() bool {
	return u.Status == UnitAvailable && u.RemoteID != nil && *u.RemoteID != ""
}

type DiscountType string

const (
	DiscountAlways    DiscountType = "ALWAYS"
	DiscountMinNights DiscountType = "MIN_NIGHTS"
	DiscountDateRange DiscountType = "DATE_RANGE"
	DiscountWeekend   DiscountType = "WEEKEND"
)

// Discount is a conditional price-reduction rule owned by a Collection.
// Condition payload is type-specific: MinNights for MIN_NIGHTS, the
// [StartDate, EndDate) interval for DATE_RANGE.
type Discount struct {
	ID           int64
	CollectionID int64
	Label        string
	Percent      float64
	Type         DiscountType
	MinNights    *int
	StartDate    *time.Time
	EndDate      *time.Time
	Active       bool
}
