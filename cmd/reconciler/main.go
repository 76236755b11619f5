// The reconciler repairs booking units whose remote reservation was never
// created: fulfillment tolerates per-unit channel failures and leaves such
// rows with a null remote id for this sweep to retry.
package main

import (
	"context"
	"database/sql"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"resort_booking/internal/adapters/observability"
	"resort_booking/internal/adapters/smoobu"
	"resort_booking/internal/domain"
	"resort_booking/internal/shared"
	mysqlrepo "resort_booking/internal/storage/mysql"
)

func main() {
	ctx := context.Background()
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)
	observability.Serve()

	log.Info().
		Str("base", cfg.SmoobuBase).
		Int("workers", cfg.ReconcileWorkers).
		Int("batch", cfg.ReconcileBatch).
		Msg("reconciler starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	channel, err := smoobu.New(cfg.SmoobuBase, cfg.SmoobuKey, cfg.SmoobuRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize channel client")
	}

	units, err := repo.ListUnsyncedBookingUnits(ctx, cfg.ReconcileBatch)
	if err != nil {
		log.Fatal().Err(err).Msg("listing unsynced booking units failed")
	}
	observability.SetUnsyncedBacklog(len(units))
	if len(units) == 0 {
		log.Info().Msg("nothing to reconcile")
		return
	}

	sem := semaphore.NewWeighted(int64(cfg.ReconcileWorkers))
	var wg sync.WaitGroup
	var repaired, failed int64
	var mu sync.Mutex

	for _, bu := range units {
		bu := bu

		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Fatal().Err(err).Msg("semaphore acquire failed")
		}

		wg.Add(1)
		go func(bu domain.BookingUnit) {
			defer wg.Done()
			defer sem.Release(1)

			if err := reconcile(ctx, repo, channel, bu); err != nil {
				log.Warn().Err(err).Str("booking", bu.BookingID).Int64("unit", bu.UnitID).Msg("reconcile failed")
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}
			log.Info().Str("booking", bu.BookingID).Int64("unit", bu.UnitID).Msg("reconcile ok")
			mu.Lock()
			repaired++
			mu.Unlock()
		}(bu)
	}

	wg.Wait()
	observability.SetUnsyncedBacklog(len(units) - int(repaired))
	log.Info().Int64("repaired", repaired).Int64("failed", failed).Msg("reconciliation completed")
}

func reconcile(ctx context.Context, repo *mysqlrepo.Repo, channel domain.ChannelClient, bu domain.BookingUnit) error {
	b, err := repo.GetBooking(ctx, bu.BookingID)
	if err != nil {
		return err
	}
	remoteID, err := channel.CreateReservation(ctx, domain.RemoteReservation{
		UnitRemoteID: bu.UnitRemoteID,
		CheckIn:      b.CheckIn,
		CheckOut:     b.CheckOut,
		Guest:        b.Guest.Contact(),
		GuestCount:   bu.GuestCount,
		Price:        bu.Price,
	})
	if err != nil {
		return err
	}
	return repo.SetBookingUnitRemote(ctx, bu.ID, remoteID)
}
