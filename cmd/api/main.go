package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	server "resort_booking/internal/adapters/http_server"
	"resort_booking/internal/adapters/notify"
	"resort_booking/internal/adapters/observability"
	redisad "resort_booking/internal/adapters/redis"
	"resort_booking/internal/adapters/smoobu"
	"resort_booking/internal/app"
	"resort_booking/internal/shared"
	mysqlrepo "resort_booking/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	channel, err := smoobu.New(cfg.SmoobuBase, cfg.SmoobuKey, cfg.SmoobuRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize channel client")
	}
	notifier := notify.NewLogger(log.Logger)

	avail := app.NewAvailabilityService(repo, channel, cache, cfg.CacheTTL)
	quotes := app.NewQuoteService(repo)
	commission := app.NewCommissionService(repo, notifier)
	fulfillment := app.NewFulfillmentService(repo, channel, avail, commission, notifier)

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Avail: avail, Quotes: quotes, Fulfillment: fulfillment})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
