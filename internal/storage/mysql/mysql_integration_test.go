//go:build integration || !unit

package mysql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	"resort_booking/internal/domain"
	mysqlrepo "resort_booking/internal/storage/mysql"
)

// ---------- small helpers ----------

func mustEnv(t *testing.T, k string) string {
	t.Helper()
	v := os.Getenv(k)
	if v == "" {
		t.Fatalf("%s not set; export it (e.g. MIGRATIONS_DIR=/path/to/sql)", k)
	}
	return v
}

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := mustEnv(t, "MIGRATIONS_DIR")

	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		t.Fatalf("MIGRATIONS_DIR=%s is not a directory or missing", dir)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)

	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func seedCatalog(t *testing.T, db *sql.DB) (collectionID, unit1, unit2, linkID int64) {
	t.Helper()
	res, err := db.Exec(`INSERT INTO collections (name, nightly_rate, cleaning_fee, service_fee_percent, min_nights, max_guests_per_unit)
		VALUES ('Palm Grove', 100, 50, 10, 1, 6)`)
	if err != nil {
		t.Fatalf("seed collection: %v", err)
	}
	collectionID, _ = res.LastInsertId()

	res, err = db.Exec(`INSERT INTO units (collection_id, name, remote_id, status) VALUES (?, 'Villa 1', 'ap-1', 'AVAILABLE')`, collectionID)
	if err != nil {
		t.Fatalf("seed unit 1: %v", err)
	}
	unit1, _ = res.LastInsertId()

	res, err = db.Exec(`INSERT INTO units (collection_id, name, remote_id, status) VALUES (?, 'Villa 2', 'ap-2', 'AVAILABLE')`, collectionID)
	if err != nil {
		t.Fatalf("seed unit 2: %v", err)
	}
	unit2, _ = res.LastInsertId()

	res, err = db.Exec(`INSERT INTO affiliate_links (code, owner_name, owner_email, commission_percent, active)
		VALUES ('SUMMER', 'Aff', 'aff@example.com', 5, 1)`)
	if err != nil {
		t.Fatalf("seed affiliate link: %v", err)
	}
	linkID, _ = res.LastInsertId()
	return
}

func newBooking(collectionID int64, affiliateLinkID *int64, checkIn, checkOut time.Time) domain.Booking {
	return domain.Booking{
		ID:            uuid.NewString(),
		CollectionID:  collectionID,
		Guest:         domain.PendingGuest(domain.GuestContact{Name: "Ana Silva", Email: "ana@example.com", Phone: "+351", Country: "PT"}),
		CheckIn:       checkIn,
		CheckOut:      checkOut,
		GuestCount:    2,
		UnitsRequired: 1,
		Price: domain.PriceBreakdown{
			NightlyRate: 100, Nights: 3, Units: 1,
			Subtotal: 300, OriginalSubtotal: 300,
			CleaningFee: 50, ServiceFee: 30,
			Total: 380, OriginalTotal: 380, TotalPayable: 380,
		},
		Status:          domain.BookingPendingPayment,
		Source:          domain.SourceDirect,
		AffiliateLinkID: affiliateLinkID,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
}

// ---------- the test ----------

func TestRepo_MySQL_BookingLifecycle(t *testing.T) {
	// Start isolated MySQL; let Docker pick a free host port.
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}

	runOpts := &dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env: []string{
			"MYSQL_ROOT_PASSWORD=root",
			"MYSQL_DATABASE=resort",
		},
	}
	resource, err := pool.RunWithOptions(runOpts, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	hostPort := resource.GetPort("3306/tcp")
	dsn := fmt.Sprintf("root:%s@tcp(127.0.0.1:%s)/%s?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		"root", hostPort, "resort")

	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	applyMigrations(t, db)

	repo := mysqlrepo.New(db)
	ctx := context.Background()
	collectionID, unit1, unit2, linkID := seedCatalog(t, db)
	checkIn := time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 7, 13, 0, 0, 0, 0, time.UTC)

	// catalog reads
	col, err := repo.GetCollection(ctx, collectionID)
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if col.NightlyRate != 100 || col.MaxGuestsPerUnit != 6 {
		t.Fatalf("unexpected collection: %+v", col)
	}
	units, err := repo.ListUnits(ctx, collectionID)
	if err != nil || len(units) != 2 {
		t.Fatalf("ListUnits: %v, %d units", err, len(units))
	}
	link, err := repo.GetAffiliateLinkByCode(ctx, "SUMMER")
	if err != nil || link.ID != linkID {
		t.Fatalf("GetAffiliateLinkByCode: %v, %+v", err, link)
	}

	// booking round trip
	bA := newBooking(collectionID, &linkID, checkIn, checkOut)
	if err := repo.CreateBooking(ctx, bA); err != nil {
		t.Fatalf("CreateBooking A: %v", err)
	}
	got, err := repo.GetBooking(ctx, bA.ID)
	if err != nil {
		t.Fatalf("GetBooking A: %v", err)
	}
	if got.Guest.Contact().Email != "ana@example.com" || got.Price.Total != 380 || got.Status != domain.BookingPendingPayment {
		t.Fatalf("unexpected booking: %+v", got)
	}
	if !got.CheckIn.Equal(checkIn) || !got.CheckOut.Equal(checkOut) {
		t.Fatalf("dates drifted: %v / %v", got.CheckIn, got.CheckOut)
	}
	if got.AffiliateLinkID == nil || *got.AffiliateLinkID != linkID {
		t.Fatalf("affiliate link lost in round trip")
	}

	// allocation for A on unit 1
	uA := []domain.Unit{units[0]}
	busA, err := repo.AllocateUnits(ctx, bA.ID, uA, checkIn, checkOut, 2, 380)
	if err != nil {
		t.Fatalf("AllocateUnits A: %v", err)
	}
	if len(busA) != 1 || busA[0].UnitID != unit1 {
		t.Fatalf("unexpected allocation: %+v", busA)
	}

	// a fulfillment retry that re-runs the allocation must get the prior rows
	// back, not a unique-key failure
	again, err := repo.AllocateUnits(ctx, bA.ID, uA, checkIn, checkOut, 2, 380)
	if err != nil {
		t.Fatalf("re-running the allocation: %v", err)
	}
	if len(again) != 1 || again[0].ID != busA[0].ID {
		t.Fatalf("retried allocation = %+v, want the original row", again)
	}

	confirmedAt := time.Now().UTC().Truncate(time.Second)
	if err := repo.SetBookingStatus(ctx, bA.ID, domain.BookingConfirmed, confirmedAt); err != nil {
		t.Fatalf("SetBookingStatus A: %v", err)
	}
	got, _ = repo.GetBooking(ctx, bA.ID)
	if got.Status != domain.BookingConfirmed || got.ConfirmedAt == nil {
		t.Fatalf("confirmation not recorded: %+v", got)
	}

	// overlapping booking B loses the race for unit 1 but gets unit 2
	bB := newBooking(collectionID, nil, checkIn.AddDate(0, 0, 1), checkOut.AddDate(0, 0, 1))
	if err := repo.CreateBooking(ctx, bB); err != nil {
		t.Fatalf("CreateBooking B: %v", err)
	}
	if _, err := repo.AllocateUnits(ctx, bB.ID, uA, bB.CheckIn, bB.CheckOut, 2, 380); !errors.Is(err, domain.ErrAllocationRace) {
		t.Fatalf("competing allocation: got %v, want ErrAllocationRace", err)
	}
	busB, err := repo.AllocateUnits(ctx, bB.ID, []domain.Unit{units[1]}, bB.CheckIn, bB.CheckOut, 2, 380)
	if err != nil {
		t.Fatalf("AllocateUnits B on free unit: %v", err)
	}
	if busB[0].UnitID != unit2 {
		t.Fatalf("unexpected unit for B: %+v", busB)
	}
	if err := repo.SetBookingStatus(ctx, bB.ID, domain.BookingConfirmed, time.Now().UTC()); err != nil {
		t.Fatalf("SetBookingStatus B: %v", err)
	}

	// ledger exclusion sees both confirmed holds
	bookedIDs, err := repo.ListBookedUnitIDs(ctx, collectionID, checkIn, checkOut)
	if err != nil {
		t.Fatalf("ListBookedUnitIDs: %v", err)
	}
	sort.Slice(bookedIDs, func(i, j int) bool { return bookedIDs[i] < bookedIDs[j] })
	if len(bookedIDs) != 2 || bookedIDs[0] != unit1 || bookedIDs[1] != unit2 {
		t.Fatalf("booked unit ids = %v, want [%d %d]", bookedIDs, unit1, unit2)
	}
	// a disjoint range sees nothing
	if ids, _ := repo.ListBookedUnitIDs(ctx, collectionID, checkOut.AddDate(0, 0, 5), checkOut.AddDate(0, 0, 8)); len(ids) != 0 {
		t.Fatalf("disjoint range reported holds: %v", ids)
	}

	// remote sync bookkeeping: A synced, B pending
	if err := repo.SetBookingUnitRemote(ctx, busA[0].ID, "rr-100"); err != nil {
		t.Fatalf("SetBookingUnitRemote: %v", err)
	}
	pending, err := repo.ListUnsyncedBookingUnits(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnsyncedBookingUnits: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != busB[0].ID {
		t.Fatalf("unsynced backlog = %+v, want only B's unit", pending)
	}

	// commission: unique per booking, counters bumped once
	tr := domain.AffiliateTransaction{
		ID: uuid.NewString(), AffiliateLinkID: linkID, BookingID: bA.ID,
		Base: 380, RatePercent: 5, Amount: 19, CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := repo.CreateAffiliateTransaction(ctx, tr); err != nil {
		t.Fatalf("CreateAffiliateTransaction: %v", err)
	}
	dup := tr
	dup.ID = uuid.NewString()
	if err := repo.CreateAffiliateTransaction(ctx, dup); err == nil {
		t.Fatalf("duplicate commission insert succeeded")
	}
	gotTr, err := repo.GetAffiliateTransactionByBooking(ctx, bA.ID)
	if err != nil || gotTr.ID != tr.ID || gotTr.Amount != 19 {
		t.Fatalf("GetAffiliateTransactionByBooking: %v, %+v", err, gotTr)
	}
	link, _ = repo.GetAffiliateLink(ctx, linkID)
	if link.TotalEarned != 19 || link.Conversions != 1 {
		t.Fatalf("link counters earned=%v conversions=%d, want 19/1", link.TotalEarned, link.Conversions)
	}

	// cancellation frees B's unit for new allocations
	if err := repo.SetBookingUnitRemoteCancelled(ctx, busB[0].ID, time.Now().UTC()); err != nil {
		t.Fatalf("SetBookingUnitRemoteCancelled: %v", err)
	}
	if err := repo.SetBookingCancelled(ctx, bB.ID, time.Now().UTC(), "guest", "changed plans"); err != nil {
		t.Fatalf("SetBookingCancelled: %v", err)
	}
	gotB, _ := repo.GetBooking(ctx, bB.ID)
	if gotB.Status != domain.BookingCancelled || gotB.CancelActor == nil || *gotB.CancelActor != "guest" {
		t.Fatalf("cancellation not recorded: %+v", gotB)
	}
	bC := newBooking(collectionID, nil, bB.CheckIn, bB.CheckOut)
	if err := repo.CreateBooking(ctx, bC); err != nil {
		t.Fatalf("CreateBooking C: %v", err)
	}
	if _, err := repo.AllocateUnits(ctx, bC.ID, []domain.Unit{units[1]}, bC.CheckIn, bC.CheckOut, 2, 380); err != nil {
		t.Fatalf("allocation after cancellation must succeed: %v", err)
	}

	// attribution click log
	if err := repo.RecordAttributionClick(ctx, "SUMMER", time.Now().UTC()); err != nil {
		t.Fatalf("RecordAttributionClick: %v", err)
	}
	var clicks int
	if err := db.QueryRow(`SELECT COUNT(*) FROM attribution_clicks WHERE code = 'SUMMER'`).Scan(&clicks); err != nil || clicks != 1 {
		t.Fatalf("click count: %v, %d", err, clicks)
	}
}
