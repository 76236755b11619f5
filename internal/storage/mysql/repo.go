package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	drv "github.com/go-sql-driver/mysql"

	"resort_booking/internal/domain"
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return *p
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

// ---- catalog ----

func (r *Repo) GetCollection(ctx context.Context, id int64) (domain.Collection, error) {
	var c domain.Collection
	err := r.db.QueryRowContext(ctx, getCollectionSQL, id).Scan(
		&c.ID, &c.Name, &c.NightlyRate, &c.CleaningFee, &c.ServiceFeePercent,
		&c.MinNights, &c.MaxGuestsPerUnit,
	)
	if err == sql.ErrNoRows {
		return domain.Collection{}, domain.ErrNotFound
	}
	return c, err
}

func (r *Repo) ListUnits(ctx context.Context, collectionID int64) ([]domain.Unit, error) {
	rows, err := r.db.QueryContext(ctx, listUnitsSQL, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Unit
	for rows.Next() {
		var u domain.Unit
		var name, remoteID sql.NullString
		if err := rows.Scan(&u.ID, &u.CollectionID, &name, &remoteID, &u.Status); err != nil {
			return nil, err
		}
		if name.Valid {
			u.Name = name.String
		}
		if remoteID.Valid {
			s := remoteID.String
			u.RemoteID = &s
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *Repo) ListActiveDiscounts(ctx context.Context, collectionID int64) ([]domain.Discount, error) {
	rows, err := r.db.QueryContext(ctx, listActiveDiscountsSQL, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Discount
	for rows.Next() {
		var d domain.Discount
		var minNights sql.NullInt64
		var start, end sql.NullTime
		if err := rows.Scan(&d.ID, &d.CollectionID, &d.Label, &d.Percent, &d.Type, &minNights, &start, &end, &d.Active); err != nil {
			return nil, err
		}
		if minNights.Valid {
			n := int(minNights.Int64)
			d.MinNights = &n
		}
		if start.Valid {
			t := start.Time
			d.StartDate = &t
		}
		if end.Valid {
			t := end.Time
			d.EndDate = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repo) GetAffiliateLink(ctx context.Context, id int64) (domain.AffiliateLink, error) {
	return r.scanAffiliateLink(r.db.QueryRowContext(ctx, getAffiliateLinkSQL, id))
}

func (r *Repo) GetAffiliateLinkByCode(ctx context.Context, code string) (domain.AffiliateLink, error) {
	return r.scanAffiliateLink(r.db.QueryRowContext(ctx, getAffiliateLinkByCodeSQL, code))
}

func (r *Repo) scanAffiliateLink(row *sql.Row) (domain.AffiliateLink, error) {
	var l domain.AffiliateLink
	var bookingPct sql.NullFloat64
	err := row.Scan(&l.ID, &l.Code, &l.OwnerName, &l.OwnerEmail, &l.CommissionPercent,
		&bookingPct, &l.TotalEarned, &l.Conversions, &l.Active)
	if err == sql.ErrNoRows {
		return domain.AffiliateLink{}, domain.ErrNotFound
	}
	if bookingPct.Valid {
		f := bookingPct.Float64
		l.BookingCommissionPercent = &f
	}
	return l, err
}

// ---- bookings ----

func (r *Repo) CreateBooking(ctx context.Context, b domain.Booking) error {
	var userID any
	if id, ok := b.Guest.Identified(); ok {
		userID = id
	}
	c := b.Guest.Contact()
	p := b.Price
	_, err := r.db.ExecContext(ctx, insertBookingSQL,
		b.ID, b.CollectionID, userID, c.Name, c.Email, c.Phone, c.Country,
		b.CheckIn, b.CheckOut, b.GuestCount, b.UnitsRequired,
		p.NightlyRate, p.Nights, p.Units, p.DiscountPercent, p.Subtotal, p.OriginalSubtotal,
		p.CleaningFee, p.ServiceFee, p.Total, p.OriginalTotal, p.ReferralDiscount, p.TotalPayable,
		string(b.Status), string(b.Source), valInt64(b.AffiliateLinkID), b.CreatedAt,
	)
	return err
}

func (r *Repo) GetBooking(ctx context.Context, id string) (domain.Booking, error) {
	row := r.db.QueryRowContext(ctx, getBookingSQL, id)

	var b domain.Booking
	var userID sql.NullInt64
	var c domain.GuestContact
	var affiliateID sql.NullInt64
	var confirmedAt, cancelledAt sql.NullTime
	var cancelActor, cancelReason sql.NullString
	p := &b.Price

	err := row.Scan(
		&b.ID, &b.CollectionID, &userID, &c.Name, &c.Email, &c.Phone, &c.Country,
		&b.CheckIn, &b.CheckOut, &b.GuestCount, &b.UnitsRequired,
		&p.NightlyRate, &p.Nights, &p.Units, &p.DiscountPercent, &p.Subtotal, &p.OriginalSubtotal,
		&p.CleaningFee, &p.ServiceFee, &p.Total, &p.OriginalTotal, &p.ReferralDiscount, &p.TotalPayable,
		&b.Status, &b.Source, &affiliateID, &b.CreatedAt, &confirmedAt, &cancelledAt,
		&cancelActor, &cancelReason,
	)
	if err == sql.ErrNoRows {
		return domain.Booking{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}

	if userID.Valid {
		b.Guest = domain.IdentifiedGuest(userID.Int64, c)
	} else {
		b.Guest = domain.PendingGuest(c)
	}
	if affiliateID.Valid {
		v := affiliateID.Int64
		b.AffiliateLinkID = &v
	}
	if confirmedAt.Valid {
		t := confirmedAt.Time
		b.ConfirmedAt = &t
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	if cancelActor.Valid {
		s := cancelActor.String
		b.CancelActor = &s
	}
	if cancelReason.Valid {
		s := cancelReason.String
		b.CancelReason = &s
	}
	return b, nil
}

func (r *Repo) SetBookingStatus(ctx context.Context, id string, status domain.BookingStatus, at time.Time) error {
	_, err := r.db.ExecContext(ctx, setBookingStatusSQL, string(status), string(status), at, id)
	return err
}

func (r *Repo) SetBookingCancelled(ctx context.Context, id string, at time.Time, actor, reason string) error {
	_, err := r.db.ExecContext(ctx, setBookingCancelledSQL, at, actor, reason, id)
	return err
}

func (r *Repo) ListBookedUnitIDs(ctx context.Context, collectionID int64, from, to time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, listBookedUnitIDsSQL, collectionID, to, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ---- allocation ----

// AllocateUnits locks the candidate unit rows, re-checks for competing holds
// and inserts the BookingUnit rows, all in one transaction. The remote
// channel is never called while this transaction is open.
func (r *Repo) AllocateUnits(ctx context.Context, bookingID string, units []domain.Unit, from, to time.Time, guestsPerUnit int, pricePerUnit float64) ([]domain.BookingUnit, error) {
	if len(units) == 0 {
		return nil, domain.ErrInsufficientAvailability
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	ids := make([]any, 0, len(units))
	for _, u := range units {
		ids = append(ids, u.ID)
	}
	ph := placeholders(len(ids))

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(lockUnitsPrefix, ph), ids...)
	if err != nil {
		return nil, err
	}
	if err := drain(rows); err != nil {
		return nil, err
	}

	args := append(append([]any{}, ids...), bookingID, to, from)
	var competing int
	if err := tx.QueryRowContext(ctx, fmt.Sprintf(recheckOverlapPrefix, ph), args...).Scan(&competing); err != nil {
		return nil, err
	}
	if competing > 0 {
		return nil, domain.ErrAllocationRace
	}

	now := time.Now().UTC()
	out := make([]domain.BookingUnit, 0, len(units))
	for _, u := range units {
		res, err := tx.ExecContext(ctx, insertBookingUnitSQL,
			bookingID, u.ID, *u.RemoteID, guestsPerUnit, pricePerUnit, now)
		if err != nil {
			// uq_booking_unit hit: a prior fulfillment attempt committed this
			// allocation before dying, so hand the caller the existing rows
			if isDuplicateKey(err) {
				_ = tx.Rollback()
				return r.ListBookingUnits(ctx, bookingID)
			}
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		out = append(out, domain.BookingUnit{
			ID:           id,
			BookingID:    bookingID,
			UnitID:       u.ID,
			UnitRemoteID: *u.RemoteID,
			GuestCount:   guestsPerUnit,
			Price:        pricePerUnit,
			CreatedAt:    now,
		})
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

func isDuplicateKey(err error) bool {
	var me *drv.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func drain(rows *sql.Rows) error {
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}

func (r *Repo) ListBookingUnits(ctx context.Context, bookingID string) ([]domain.BookingUnit, error) {
	return r.queryBookingUnits(ctx, listBookingUnitsSQL, bookingID)
}

func (r *Repo) ListUnsyncedBookingUnits(ctx context.Context, limit int) ([]domain.BookingUnit, error) {
	return r.queryBookingUnits(ctx, listUnsyncedBookingUnitsSQL, limit)
}

func (r *Repo) queryBookingUnits(ctx context.Context, query string, arg any) ([]domain.BookingUnit, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BookingUnit
	for rows.Next() {
		var bu domain.BookingUnit
		var remoteID sql.NullString
		var remoteCancelled sql.NullTime
		if err := rows.Scan(&bu.ID, &bu.BookingID, &bu.UnitID, &bu.UnitRemoteID,
			&remoteID, &bu.GuestCount, &bu.Price, &bu.CreatedAt, &remoteCancelled); err != nil {
			return nil, err
		}
		if remoteID.Valid {
			s := remoteID.String
			bu.RemoteReservationID = &s
		}
		if remoteCancelled.Valid {
			t := remoteCancelled.Time
			bu.RemoteCancelledAt = &t
		}
		out = append(out, bu)
	}
	return out, rows.Err()
}

func (r *Repo) SetBookingUnitRemote(ctx context.Context, bookingUnitID int64, remoteReservationID string) error {
	_, err := r.db.ExecContext(ctx, setBookingUnitRemoteSQL, remoteReservationID, bookingUnitID)
	return err
}

func (r *Repo) SetBookingUnitRemoteCancelled(ctx context.Context, bookingUnitID int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, setBookingUnitRemoteCancelledSQL, at, bookingUnitID)
	return err
}

// ---- commission ----

func (r *Repo) GetAffiliateTransactionByBooking(ctx context.Context, bookingID string) (domain.AffiliateTransaction, error) {
	var t domain.AffiliateTransaction
	err := r.db.QueryRowContext(ctx, getAffiliateTransactionByBookingSQL, bookingID).Scan(
		&t.ID, &t.AffiliateLinkID, &t.BookingID, &t.Base, &t.RatePercent, &t.Amount, &t.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return domain.AffiliateTransaction{}, domain.ErrNotFound
	}
	return t, err
}

// CreateAffiliateTransaction writes the commission record and bumps the
// link's earned/conversion counters in the same transaction.
func (r *Repo) CreateAffiliateTransaction(ctx context.Context, t domain.AffiliateTransaction) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, insertAffiliateTransactionSQL,
		t.ID, t.AffiliateLinkID, t.BookingID, t.Base, t.RatePercent, t.Amount, t.CreatedAt); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bumpAffiliateCountersSQL, t.Amount, t.AffiliateLinkID); err != nil {
		return err
	}
	return tx.Commit()
}

// ---- attribution ----

func (r *Repo) RecordAttributionClick(ctx context.Context, code string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, insertAttributionClickSQL, code, at)
	return err
}
