// Package telemetry exposes Prometheus metrics for the process runner:
// tick duration, station phase distribution, alarm trips, pH doses, and
// ramp outcomes. Grounded on the teacher's churn package (prom_counters.go):
// package-level metrics registered once in init, a one-line Enable to
// start the /metrics endpoint, and small Observe* helpers that always
// record; hot-path callers check Enabled before calling them.
package telemetry

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled atomic.Bool

	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fluidctl_tick_duration_seconds",
		Help:    "Wall time spent in one runner tick (channel ticks + station advance).",
		Buckets: prometheus.DefBuckets,
	})
	stationsByPhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fluidctl_stations_by_phase",
		Help: "Number of stations currently in each phase status.",
	}, []string{"status"})
	alarmTripsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluidctl_alarm_trips_total",
		Help: "Total number of times an alarm transitioned from inactive to active.",
	}, []string{"alarm"})
	phDosesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluidctl_ph_doses_total",
		Help: "Total number of pH dosing boluses commanded.",
	}, []string{"station"})
	phDoseVolumeMl = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fluidctl_ph_dose_volume_ml",
		Help:    "Distribution of pH dosing bolus sizes.",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5},
	})
	rampOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluidctl_ramp_outcomes_total",
		Help: "Total number of pump ramps/lock-ins by terminal outcome.",
	}, []string{"outcome"})
	deviceErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fluidctl_device_errors_total",
		Help: "Total number of bus errors observed per device.",
	}, []string{"device", "kind"})
)

func init() {
	prometheus.MustRegister(tickDuration, stationsByPhase, alarmTripsTotal, phDosesTotal, phDoseVolumeMl, rampOutcomesTotal, deviceErrorsTotal)
}

// Enable starts serving /metrics on addr and marks the package active.
// Call once at process startup; safe to skip in tests.
func Enable(addr string) {
	enabled.Store(true)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = server.ListenAndServe()
	}()
}

// Enabled reports whether Enable has been called.
func Enabled() bool { return enabled.Load() }

// ObserveTick records one runner tick's wall-clock duration.
func ObserveTick(d time.Duration) {
	tickDuration.Observe(d.Seconds())
}

// SetStationsByPhase replaces the phase-status gauge snapshot.
func SetStationsByPhase(counts map[string]int) {
	for status, n := range counts {
		stationsByPhase.WithLabelValues(status).Set(float64(n))
	}
}

// ObserveAlarmTrip records one inactive->active alarm transition.
func ObserveAlarmTrip(alarmName string) {
	alarmTripsTotal.WithLabelValues(alarmName).Inc()
}

// ObservePhDose records one pH dosing bolus.
func ObservePhDose(station string, volumeMl float64) {
	phDosesTotal.WithLabelValues(station).Inc()
	phDoseVolumeMl.Observe(volumeMl)
}

// ObserveRampOutcome records one ramp/lock-in's terminal outcome.
func ObserveRampOutcome(outcome string) {
	rampOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDeviceError records one bus error by device name and kind.
func ObserveDeviceError(device, kind string) {
	deviceErrorsTotal.WithLabelValues(device, kind).Inc()
}
