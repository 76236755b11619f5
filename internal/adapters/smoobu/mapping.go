package smoobu

import (
	"fmt"
	"strconv"
	"time"

	"resort_booking/internal/domain"
)

const dateLayout = "2006-01-02"

// The channel API speaks ad hoc kebab-case string-keyed JSON. Everything in
// this file translates between that shape and the typed contract; the rest of
// the codebase never sees a kebab-case key.

// ratesResponse: {"data": {"<apartment-id>": {"<date>": {day fields}}}}
type ratesResponse struct {
	Data map[string]map[string]map[string]any `json:"data"`
}

/********** alias registries (single source of truth) **********/

var dayAliases = map[string][]string{
	"price":     {"price", "daily-price", "base-price"},
	"min_stay":  {"min-length-of-stay", "min-stay", "minimum-length-of-stay"},
	"available": {"available", "is-available"},
}

var reservationIDAliases = []string{"id", "reservation-id", "booking-id"}

/********** helpers **********/

func firstNumeric(m map[string]any, key string) (float64, bool) {
	for _, k := range dayAliases[key] {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case bool:
			if v {
				return 1, true
			}
			return 0, true
		case string:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func mapDayRates(raw ratesResponse) (map[string][]domain.DayRate, error) {
	out := make(map[string][]domain.DayRate, len(raw.Data))
	for unitID, days := range raw.Data {
		rates := make([]domain.DayRate, 0, len(days))
		for ds, fields := range days {
			d, err := time.Parse(dateLayout, ds)
			if err != nil {
				return nil, fmt.Errorf("bad date %q for unit %s: %w", ds, unitID, err)
			}
			dr := domain.DayRate{Date: d}
			if p, ok := firstNumeric(fields, "price"); ok {
				dr.Price = p
			}
			if ms, ok := firstNumeric(fields, "min_stay"); ok {
				dr.MinStay = int(ms)
			}
			if av, ok := firstNumeric(fields, "available"); ok {
				dr.Available = av != 0
			}
			rates = append(rates, dr)
		}
		out[unitID] = rates
	}
	return out, nil
}

func reservationPayload(r domain.RemoteReservation) map[string]any {
	return map[string]any{
		"apartment-id":   r.UnitRemoteID,
		"arrival-date":   r.CheckIn.Format(dateLayout),
		"departure-date": r.CheckOut.Format(dateLayout),
		"guest-name":     r.Guest.Name,
		"guest-email":    r.Guest.Email,
		"guest-phone":    r.Guest.Phone,
		"adults":         r.GuestCount,
		"price":          r.Price,
		"channel":        "direct",
	}
}

func reservationID(out map[string]any) string {
	for _, k := range reservationIDAliases {
		switch v := out[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatInt(int64(v), 10)
		}
	}
	return ""
}
