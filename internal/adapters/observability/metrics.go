package observability

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "resort", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resort", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ExternalRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "resort", Name: "external_requests_total", Help: "Outbound channel-manager requests."},
		[]string{"service", "endpoint", "status"},
	)
	ExternalLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "resort", Name: "external_request_duration_seconds",
			Help:    "Outbound request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "endpoint"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "resort", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	BookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "resort", Name: "booking_transitions_total", Help: "Booking status transitions."},
		[]string{"status"},
	)
	// Booking units whose remote reservation failed and await reconciliation.
	// Incremented when a remote create fails; the reconciler sets the
	// absolute backlog after each scan.
	UnsyncedBookingUnits = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "resort", Name: "unsynced_booking_units", Help: "Booking units with no remote reservation id."},
	)
	CommissionsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "resort", Name: "commissions_recorded_total", Help: "Affiliate commissions recorded."},
	)
	CommissionAmount = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "resort", Name: "commission_amount_total", Help: "Sum of recorded commission amounts."},
	)
)

func Serve() {
	addr := os.Getenv("METRICS_ADDR")
	if addr == "" {
		return // disabled
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ExternalRequests, ExternalLatency,
		CacheEvents, BookingTransitions, UnsyncedBookingUnits, CommissionsRecorded, CommissionAmount)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveExternal(service, endpoint string, status int, dur time.Duration) {
	ExternalRequests.WithLabelValues(service, endpoint, strconv.Itoa(status)).Inc()
	ExternalLatency.WithLabelValues(service, endpoint).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveBooking(status string) {
	BookingTransitions.WithLabelValues(status).Inc()
}

func ObserveUnsyncedUnit(delta float64) {
	UnsyncedBookingUnits.Add(delta)
}

func SetUnsyncedBacklog(n int) {
	UnsyncedBookingUnits.Set(float64(n))
}

func ObserveCommission(amount float64) {
	CommissionsRecorded.Inc()
	CommissionAmount.Add(amount)
}

func LabelErr(err error) string {
	if err == nil {
		return "none"
	}
	return fmt.Sprintf("%T", err)
}
