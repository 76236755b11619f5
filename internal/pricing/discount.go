package pricing

import (
	"time"

	"resort_booking/internal/domain"
)

// DiscountResult carries the winning rules and their combined percent.
type DiscountResult struct {
	Winners []domain.Discount
	Percent float64
}

// EvaluateDiscounts applies a collection's active rules to a stay.
//
// Matching: ALWAYS always matches; MIN_NIGHTS when the stay is at least the
// rule's threshold; DATE_RANGE when the stay overlaps the rule's half-open
// [start, end); WEEKEND when check-in falls on Friday or Saturday.
//
// Stacking is asymmetric on purpose: within one condition type only the
// highest percent wins, while winners of distinct types are summed.
func EvaluateDiscounts(rules []domain.Discount, checkIn, checkOut time.Time) DiscountResult {
	nights := int(checkOut.Sub(checkIn).Hours() / 24)

	best := make(map[domain.DiscountType]domain.Discount)
	for _, r := range rules {
		if !r.Active || !matches(r, checkIn, checkOut, nights) {
			continue
		}
		if cur, ok := best[r.Type]; !ok || r.Percent > cur.Percent {
			best[r.Type] = r
		}
	}

	var out DiscountResult
	// stable order over types so the winners list is deterministic
	for _, t := range []domain.DiscountType{
		domain.DiscountAlways,
		domain.DiscountMinNights,
		domain.DiscountDateRange,
		domain.DiscountWeekend,
	} {
		if w, ok := best[t]; ok {
			out.Winners = append(out.Winners, w)
			out.Percent += w.Percent
		}
	}
	return out
}

func matches(r domain.Discount, checkIn, checkOut time.Time, nights int) bool {
	switch r.Type {
	case domain.DiscountAlways:
		return true
	case domain.DiscountMinNights:
		return r.MinNights != nil && nights >= *r.MinNights
	case domain.DiscountDateRange:
		return r.StartDate != nil && r.EndDate != nil &&
			domain.Overlaps(checkIn, checkOut, *r.StartDate, *r.EndDate)
	case domain.DiscountWeekend:
		wd := checkIn.Weekday()
		return wd == time.Friday || wd == time.Saturday
	}
	return false
}
