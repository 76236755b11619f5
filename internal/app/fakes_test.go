package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"resort_booking/internal/domain"
)

// ---- fakes ----

type fakeRepo struct {
	mu           sync.Mutex
	collections  map[int64]domain.Collection
	units        map[int64][]domain.Unit
	discounts    map[int64][]domain.Discount
	links        map[int64]domain.AffiliateLink
	bookings     map[string]domain.Booking
	bookingUnits map[string][]domain.BookingUnit
	transactions map[string]domain.AffiliateTransaction
	clicks       []string
	nextBUID     int64

	// raceFailures makes the next N AllocateUnits calls lose the race.
	raceFailures int
	allocCalls   int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		collections:  map[int64]domain.Collection{},
		units:        map[int64][]domain.Unit{},
		discounts:    map[int64][]domain.Discount{},
		links:        map[int64]domain.AffiliateLink{},
		bookings:     map[string]domain.Booking{},
		bookingUnits: map[string][]domain.BookingUnit{},
		transactions: map[string]domain.AffiliateTransaction{},
	}
}

func (f *fakeRepo) GetCollection(ctx context.Context, id int64) (domain.Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.collections[id]
	if !ok {
		return domain.Collection{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeRepo) ListUnits(ctx context.Context, collectionID int64) ([]domain.Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Unit(nil), f.units[collectionID]...), nil
}

func (f *fakeRepo) ListActiveDiscounts(ctx context.Context, collectionID int64) ([]domain.Discount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Discount
	for _, d := range f.discounts[collectionID] {
		if d.Active {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAffiliateLink(ctx context.Context, id int64) (domain.AffiliateLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return domain.AffiliateLink{}, domain.ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) GetAffiliateLinkByCode(ctx context.Context, code string) (domain.AffiliateLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.links {
		if l.Code == code {
			return l, nil
		}
	}
	return domain.AffiliateLink{}, domain.ErrNotFound
}

func (f *fakeRepo) CreateBooking(ctx context.Context, b domain.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[b.ID] = b
	return nil
}

func (f *fakeRepo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return domain.Booking{}, domain.ErrNotFound
	}
	return b, nil
}

func (f *fakeRepo) SetBookingStatus(ctx context.Context, id string, status domain.BookingStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	if status == domain.BookingConfirmed {
		b.ConfirmedAt = &at
	}
	f.bookings[id] = b
	return nil
}

func (f *fakeRepo) SetBookingCancelled(ctx context.Context, id string, at time.Time, actor, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = domain.BookingCancelled
	b.CancelledAt = &at
	b.CancelActor = &actor
	b.CancelReason = &reason
	f.bookings[id] = b
	return nil
}

func (f *fakeRepo) ListBookedUnitIDs(ctx context.Context, collectionID int64, from, to time.Time) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int64
	for _, b := range f.bookings {
		if b.CollectionID != collectionID {
			continue
		}
		if b.Status != domain.BookingConfirmed && b.Status != domain.BookingCompleted {
			continue
		}
		if !domain.Overlaps(b.CheckIn, b.CheckOut, from, to) {
			continue
		}
		for _, bu := range f.bookingUnits[b.ID] {
			out = append(out, bu.UnitID)
		}
	}
	return out, nil
}

func (f *fakeRepo) AllocateUnits(ctx context.Context, bookingID string, units []domain.Unit, from, to time.Time, guestsPerUnit int, pricePerUnit float64) ([]domain.BookingUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allocCalls++
	if f.raceFailures > 0 {
		f.raceFailures--
		return nil, domain.ErrAllocationRace
	}
	// like the storage layer, a retried allocation finds the prior rows
	if existing := f.bookingUnits[bookingID]; len(existing) > 0 {
		return append([]domain.BookingUnit(nil), existing...), nil
	}
	// re-check against every non-cancelled competing hold
	taken := map[int64]bool{}
	for _, b := range f.bookings {
		if b.ID == bookingID || b.Status == domain.BookingCancelled {
			continue
		}
		if !domain.Overlaps(b.CheckIn, b.CheckOut, from, to) {
			continue
		}
		for _, bu := range f.bookingUnits[b.ID] {
			taken[bu.UnitID] = true
		}
	}
	for _, u := range units {
		if taken[u.ID] {
			return nil, domain.ErrAllocationRace
		}
	}
	var out []domain.BookingUnit
	for _, u := range units {
		f.nextBUID++
		out = append(out, domain.BookingUnit{
			ID:           f.nextBUID,
			BookingID:    bookingID,
			UnitID:       u.ID,
			UnitRemoteID: *u.RemoteID,
			GuestCount:   guestsPerUnit,
			Price:        pricePerUnit,
			CreatedAt:    time.Now().UTC(),
		})
	}
	f.bookingUnits[bookingID] = append(f.bookingUnits[bookingID], out...)
	return append([]domain.BookingUnit(nil), out...), nil
}

func (f *fakeRepo) ListBookingUnits(ctx context.Context, bookingID string) ([]domain.BookingUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.BookingUnit(nil), f.bookingUnits[bookingID]...), nil
}

func (f *fakeRepo) SetBookingUnitRemote(ctx context.Context, bookingUnitID int64, remoteReservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, bus := range f.bookingUnits {
		for i := range bus {
			if bus[i].ID == bookingUnitID {
				bus[i].RemoteReservationID = &remoteReservationID
				f.bookingUnits[id] = bus
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (f *fakeRepo) SetBookingUnitRemoteCancelled(ctx context.Context, bookingUnitID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, bus := range f.bookingUnits {
		for i := range bus {
			if bus[i].ID == bookingUnitID {
				bus[i].RemoteCancelledAt = &at
				f.bookingUnits[id] = bus
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (f *fakeRepo) ListUnsyncedBookingUnits(ctx context.Context, limit int) ([]domain.BookingUnit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.BookingUnit
	for id, bus := range f.bookingUnits {
		if f.bookings[id].Status != domain.BookingConfirmed {
			continue
		}
		for _, bu := range bus {
			if bu.RemoteReservationID == nil && bu.RemoteCancelledAt == nil && len(out) < limit {
				out = append(out, bu)
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) GetAffiliateTransactionByBooking(ctx context.Context, bookingID string) (domain.AffiliateTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.transactions[bookingID]
	if !ok {
		return domain.AffiliateTransaction{}, domain.ErrNotFound
	}
	return t, nil
}

func (f *fakeRepo) CreateAffiliateTransaction(ctx context.Context, t domain.AffiliateTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.transactions[t.BookingID]; ok {
		return fmt.Errorf("duplicate affiliate transaction for booking %s", t.BookingID)
	}
	f.transactions[t.BookingID] = t
	l := f.links[t.AffiliateLinkID]
	l.TotalEarned += t.Amount
	l.Conversions++
	f.links[t.AffiliateLinkID] = l
	return nil
}

func (f *fakeRepo) RecordAttributionClick(ctx context.Context, code string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicks = append(f.clicks, code)
	return nil
}

type fakeChannel struct {
	mu        sync.Mutex
	rates     map[string][]domain.DayRate
	ratesErr  error
	createErr map[string]error
	created   []domain.RemoteReservation
	cancelled []string
	cancelErr error
	nextID    int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{rates: map[string][]domain.DayRate{}, createErr: map[string]error{}}
}

func (c *fakeChannel) ListUnitDayRates(ctx context.Context, unitRemoteIDs []string, from, to time.Time) (map[string][]domain.DayRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ratesErr != nil {
		return nil, c.ratesErr
	}
	out := map[string][]domain.DayRate{}
	for _, id := range unitRemoteIDs {
		out[id] = c.rates[id]
	}
	return out, nil
}

func (c *fakeChannel) CreateReservation(ctx context.Context, r domain.RemoteReservation) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.createErr[r.UnitRemoteID]; err != nil {
		return "", err
	}
	c.created = append(c.created, r)
	c.nextID++
	return fmt.Sprintf("rr-%d", c.nextID), nil
}

func (c *fakeChannel) CancelReservation(ctx context.Context, remoteReservationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelErr != nil {
		return c.cancelErr
	}
	c.cancelled = append(c.cancelled, remoteReservationID)
	return nil
}

func (c *fakeChannel) createdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.created)
}

func (c *fakeChannel) cancelledCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancelled)
}

type fakeNotifier struct {
	mu          sync.Mutex
	confirmed   []string
	cancelled   []string
	commissions []float64
	fail        bool
}

func (n *fakeNotifier) BookingConfirmed(ctx context.Context, b domain.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp down")
	}
	n.confirmed = append(n.confirmed, b.ID)
	return nil
}

func (n *fakeNotifier) BookingCancelled(ctx context.Context, b domain.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp down")
	}
	n.cancelled = append(n.cancelled, b.ID)
	return nil
}

func (n *fakeNotifier) CommissionEarned(ctx context.Context, email string, amount float64, bookingID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("smtp down")
	}
	n.commissions = append(n.commissions, amount)
	return nil
}

type fakeCache struct {
	store map[string]any
}

func (c *fakeCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	if c.store == nil {
		return false, nil
	}
	v, ok := c.store[key]
	if !ok {
		return false, nil
	}
	if d, ok2 := dst.(*int); ok2 {
		*d = v.(int)
	}
	return true, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	if c.store == nil {
		c.store = map[string]any{}
	}
	c.store[key] = v
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error { return nil }

// ---- shared fixture helpers ----

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pstr(s string) *string { return &s }

// seedCollection installs a collection with n remote-linked AVAILABLE units.
func seedCollection(r *fakeRepo, id int64, n int) domain.Collection {
	c := domain.Collection{
		ID: id, Name: "Palm Grove",
		NightlyRate: 100, CleaningFee: 50, ServiceFeePercent: 10,
		MinNights: 1, MaxGuestsPerUnit: 6,
	}
	r.collections[id] = c
	for i := 1; i <= n; i++ {
		r.units[id] = append(r.units[id], domain.Unit{
			ID: int64(i), CollectionID: id,
			Name:     fmt.Sprintf("Villa %d", i),
			RemoteID: pstr(fmt.Sprintf("ap-%d", i)),
			Status:   domain.UnitAvailable,
		})
	}
	return c
}

func contact() domain.GuestContact {
	return domain.GuestContact{Name: "Ana Silva", Email: "ana@example.com", Phone: "+351", Country: "PT"}
}
