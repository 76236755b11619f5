// internal/adapters/http_server/handlers.go
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"resort_booking/internal/app"
	"resort_booking/internal/domain"
)

type Handlers struct {
	Avail       *app.AvailabilityService
	Quotes      *app.QuoteService
	Fulfillment *app.FulfillmentService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/collections/{id}/availability", h.availability)
	s.mux.Post("/v1/collections/{id}/quote", h.quote)
	s.mux.Post("/v1/bookings", h.intake)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Post("/v1/bookings/{id}/payment", h.confirmPayment)
	s.mux.Post("/v1/bookings/{id}/cancel", h.cancel)
}

const dateLayout = "2006-01-02"

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeErr maps core errors to the response taxonomy: validation 400,
// availability 409, unknown ids 404, everything else 500.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeProblem(w, http.StatusBadRequest, "Invalid booking request", err.Error())
	case errors.Is(err, domain.ErrInsufficientAvailability):
		writeProblem(w, http.StatusConflict, "Insufficient availability", err.Error())
	case errors.Is(err, domain.ErrBelowMinStay):
		writeProblem(w, http.StatusConflict, "Below minimum stay", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		log.Error().Err(err).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal error", "")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

func parseDateRange(q map[string][]string, fromKey, toKey string) (time.Time, time.Time, error) {
	get := func(k string) string {
		if v, ok := q[k]; ok && len(v) > 0 {
			return v[0]
		}
		return ""
	}
	from, err := time.Parse(dateLayout, get(fromKey))
	if err != nil {
		return time.Time{}, time.Time{}, domain.Validationf("%s must be YYYY-MM-DD", fromKey)
	}
	to, err := time.Parse(dateLayout, get(toKey))
	if err != nil {
		return time.Time{}, time.Time{}, domain.Validationf("%s must be YYYY-MM-DD", toKey)
	}
	return from, to, nil
}

// ---- availability & quote ----

func (h *Handlers) availability(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	from, to, err := parseDateRange(r.URL.Query(), "from", "to")
	if err != nil {
		writeErr(w, err)
		return
	}
	if !to.After(from) {
		writeErr(w, domain.Validationf("to must be after from"))
		return
	}
	n, err := h.Avail.FreeUnits(r.Context(), id, from, to)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"collection_id": id,
		"from":          from.Format(dateLayout),
		"to":            to.Format(dateLayout),
		"free_units":    n,
	})
}

type quoteRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Guests   int    `json:"guests"`
}

func (h *Handlers) quote(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	checkIn, checkOut, err := parseDates(req.CheckIn, req.CheckOut)
	if err != nil {
		writeErr(w, err)
		return
	}
	pb, res, err := h.Quotes.Quote(r.Context(), id, checkIn, checkOut, req.Guests)
	if err != nil {
		writeErr(w, err)
		return
	}
	discounts := make([]map[string]any, 0, len(res.Winners))
	for _, d := range res.Winners {
		discounts = append(discounts, map[string]any{"label": d.Label, "type": d.Type, "percent": d.Percent})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"price":     priceJSON(pb),
		"discounts": discounts,
	})
}

func parseDates(in, out string) (time.Time, time.Time, error) {
	checkIn, err := time.Parse(dateLayout, in)
	if err != nil {
		return time.Time{}, time.Time{}, domain.Validationf("check_in must be YYYY-MM-DD")
	}
	checkOut, err := time.Parse(dateLayout, out)
	if err != nil {
		return time.Time{}, time.Time{}, domain.Validationf("check_out must be YYYY-MM-DD")
	}
	return checkIn, checkOut, nil
}

// ---- bookings ----

type guestPayload struct {
	UserID  *int64 `json:"user_id,omitempty"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Country string `json:"country"`
}

type intakeRequest struct {
	CollectionID     int64        `json:"collection_id"`
	Guest            guestPayload `json:"guest"`
	CheckIn          string       `json:"check_in"`
	CheckOut         string       `json:"check_out"`
	Guests           int          `json:"guests"`
	Source           string       `json:"source,omitempty"`
	AffiliateCode    string       `json:"affiliate_code,omitempty"`
	ReferralDiscount float64      `json:"referral_discount,omitempty"`
}

func (h *Handlers) intake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", err.Error())
		return
	}
	checkIn, checkOut, err := parseDates(req.CheckIn, req.CheckOut)
	if err != nil {
		writeErr(w, err)
		return
	}
	if req.Guest.Email == "" {
		writeErr(w, domain.Validationf("guest email is required"))
		return
	}

	contact := domain.GuestContact{Name: req.Guest.Name, Email: req.Guest.Email, Phone: req.Guest.Phone, Country: req.Guest.Country}
	guest := domain.PendingGuest(contact)
	if req.Guest.UserID != nil {
		guest = domain.IdentifiedGuest(*req.Guest.UserID, contact)
	}

	source := domain.SourceDirect
	if req.Source != "" {
		source = domain.BookingSource(req.Source)
	}

	b, err := h.Fulfillment.Intake(r.Context(), app.IntakeRequest{
		CollectionID:     req.CollectionID,
		Guest:            guest,
		CheckIn:          checkIn,
		CheckOut:         checkOut,
		Guests:           req.Guests,
		Source:           source,
		AffiliateCode:    req.AffiliateCode,
		ReferralDiscount: req.ReferralDiscount,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bookingJSON(b, nil))
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	b, units, err := h.Fulfillment.GetBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingJSON(b, units))
}

func (h *Handlers) confirmPayment(w http.ResponseWriter, r *http.Request) {
	b, units, err := h.Fulfillment.ConfirmPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingJSON(b, units))
}

type cancelRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

func (h *Handlers) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Actor == "" {
		req.Actor = "guest"
	}
	b, err := h.Fulfillment.Cancel(r.Context(), chi.URLParam(r, "id"), req.Actor, req.Reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bookingJSON(b, nil))
}

// ---- response shapes ----

func priceJSON(pb domain.PriceBreakdown) map[string]any {
	return map[string]any{
		"nightly_rate":      pb.NightlyRate,
		"nights":            pb.Nights,
		"units":             pb.Units,
		"discount_percent":  pb.DiscountPercent,
		"subtotal":          pb.Subtotal,
		"original_subtotal": pb.OriginalSubtotal,
		"cleaning_fee":      pb.CleaningFee,
		"service_fee":       pb.ServiceFee,
		"total":             pb.Total,
		"original_total":    pb.OriginalTotal,
		"referral_discount": pb.ReferralDiscount,
		"total_payable":     pb.TotalPayable,
	}
}

func bookingJSON(b domain.Booking, units []domain.BookingUnit) map[string]any {
	out := map[string]any{
		"id":             b.ID,
		"collection_id":  b.CollectionID,
		"check_in":       b.CheckIn.Format(dateLayout),
		"check_out":      b.CheckOut.Format(dateLayout),
		"guests":         b.GuestCount,
		"units_required": b.UnitsRequired,
		"status":         b.Status,
		"source":         b.Source,
		"price":          priceJSON(b.Price),
	}
	if units != nil {
		us := make([]map[string]any, 0, len(units))
		for _, u := range units {
			m := map[string]any{
				"unit_id":     u.UnitID,
				"guest_count": u.GuestCount,
				"price":       u.Price,
				"synced":      u.RemoteSynced(),
			}
			if u.RemoteReservationID != nil {
				m["remote_reservation_id"] = *u.RemoteReservationID
			}
			us = append(us, m)
		}
		out["units"] = us
	}
	return out
}
