package mysql

// -----------------------------------------------------------------------------
// CATALOG READS
// -----------------------------------------------------------------------------

const getCollectionSQL = `
SELECT id, name, nightly_rate, cleaning_fee, service_fee_percent, min_nights, max_guests_per_unit
FROM collections
WHERE id = ?
`

const listUnitsSQL = `
SELECT id, collection_id, name, remote_id, status
FROM units
WHERE collection_id = ?
ORDER BY id
`

const listActiveDiscountsSQL = `
SELECT id, collection_id, label, percent, cond_type, min_nights, start_date, end_date, active
FROM discounts
WHERE collection_id = ? AND active = 1
ORDER BY id
`

const getAffiliateLinkSQL = `
SELECT id, code, owner_name, owner_email, commission_percent, booking_commission_percent,
       total_earned, conversions, active
FROM affiliate_links
WHERE id = ?
`

const getAffiliateLinkByCodeSQL = `
SELECT id, code, owner_name, owner_email, commission_percent, booking_commission_percent,
       total_earned, conversions, active
FROM affiliate_links
WHERE code = ?
`

// -----------------------------------------------------------------------------
// BOOKINGS
// -----------------------------------------------------------------------------

const insertBookingSQL = `
INSERT INTO bookings
  (id, collection_id, user_id, guest_name, guest_email, guest_phone, guest_country,
   check_in, check_out, guest_count, units_required,
   nightly_rate, nights, units, discount_percent, subtotal, original_subtotal,
   cleaning_fee, service_fee, total, original_total, referral_discount, total_payable,
   status, source, affiliate_link_id, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const getBookingSQL = `
SELECT id, collection_id, user_id, guest_name, guest_email, guest_phone, guest_country,
       check_in, check_out, guest_count, units_required,
       nightly_rate, nights, units, discount_percent, subtotal, original_subtotal,
       cleaning_fee, service_fee, total, original_total, referral_discount, total_payable,
       status, source, affiliate_link_id, created_at, confirmed_at, cancelled_at,
       cancel_actor, cancel_reason
FROM bookings
WHERE id = ?
`

// confirmed_at is only stamped when the transition lands on CONFIRMED.
const setBookingStatusSQL = `
UPDATE bookings
SET status = ?,
    confirmed_at = IF(? = 'CONFIRMED', ?, confirmed_at)
WHERE id = ?
`

const setBookingCancelledSQL = `
UPDATE bookings
SET status = 'CANCELLED', cancelled_at = ?, cancel_actor = ?, cancel_reason = ?
WHERE id = ?
`

// Local-ledger exclusion: units of the collection held by a CONFIRMED or
// COMPLETED booking overlapping [from, to), half-open on both sides.
const listBookedUnitIDsSQL = `
SELECT DISTINCT bu.unit_id
FROM booking_units bu
JOIN bookings b ON b.id = bu.booking_id
WHERE b.collection_id = ?
  AND b.status IN ('CONFIRMED', 'COMPLETED')
  AND b.check_in < ? AND b.check_out > ?
`

// -----------------------------------------------------------------------------
// ALLOCATION (run inside the allocation transaction)
// -----------------------------------------------------------------------------

// lockUnitsPrefix locks the candidate unit rows so two concurrent
// allocations for overlapping dates serialize on them.
const lockUnitsPrefix = `SELECT id FROM units WHERE id IN (%s) FOR UPDATE`

// recheckOverlapPrefix counts competing holds under the lock. Any booking
// that is not CANCELLED blocks: a PAYMENT_RECEIVED competitor may confirm a
// moment later, so it must count as taken here even though the display path
// only excludes CONFIRMED/COMPLETED.
const recheckOverlapPrefix = `
SELECT COUNT(*)
FROM booking_units bu
JOIN bookings b ON b.id = bu.booking_id
WHERE bu.unit_id IN (%s)
  AND b.id <> ?
  AND b.status <> 'CANCELLED'
  AND b.check_in < ? AND b.check_out > ?
`

const insertBookingUnitSQL = `
INSERT INTO booking_units (booking_id, unit_id, unit_remote_id, guest_count, price, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`

const listBookingUnitsSQL = `
SELECT bu.id, bu.booking_id, bu.unit_id, bu.unit_remote_id, bu.remote_reservation_id,
       bu.guest_count, bu.price, bu.created_at, bu.remote_cancelled_at
FROM booking_units bu
WHERE bu.booking_id = ?
ORDER BY bu.unit_id
`

const setBookingUnitRemoteSQL = `
UPDATE booking_units SET remote_reservation_id = ? WHERE id = ?
`

const setBookingUnitRemoteCancelledSQL = `
UPDATE booking_units SET remote_cancelled_at = ? WHERE id = ?
`

// Unsynced rows of confirmed bookings: the reconciler's work queue.
const listUnsyncedBookingUnitsSQL = `
SELECT bu.id, bu.booking_id, bu.unit_id, bu.unit_remote_id, bu.remote_reservation_id,
       bu.guest_count, bu.price, bu.created_at, bu.remote_cancelled_at
FROM booking_units bu
JOIN bookings b ON b.id = bu.booking_id
WHERE bu.remote_reservation_id IS NULL
  AND bu.remote_cancelled_at IS NULL
  AND b.status = 'CONFIRMED'
ORDER BY bu.created_at
LIMIT ?
`

// -----------------------------------------------------------------------------
// COMMISSION
// -----------------------------------------------------------------------------

const getAffiliateTransactionByBookingSQL = `
SELECT id, affiliate_link_id, booking_id, base, rate_percent, amount, created_at
FROM affiliate_transactions
WHERE booking_id = ?
`

// booking_id carries a UNIQUE key: the last-resort exactly-once guard.
const insertAffiliateTransactionSQL = `
INSERT INTO affiliate_transactions (id, affiliate_link_id, booking_id, base, rate_percent, amount, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

const bumpAffiliateCountersSQL = `
UPDATE affiliate_links
SET total_earned = total_earned + ?, conversions = conversions + 1
WHERE id = ?
`

// -----------------------------------------------------------------------------
// ATTRIBUTION
// -----------------------------------------------------------------------------

const insertAttributionClickSQL = `
INSERT INTO attribution_clicks (code, clicked_at) VALUES (?, ?)
`
