package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Offer metrics
	OffersReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_mesos_offers_received_total",
			Help: "Total number of resource offers received from the master",
		},
	)

	OffersDeclined = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_mesos_offers_declined_total",
			Help: "Total number of offers declined, by reason",
		},
		[]string{"reason"},
	)

	// Task metrics
	TasksLaunched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_mesos_tasks_launched_total",
			Help: "Total number of tasks launched, by kind (warmer or cooler)",
		},
		[]string{"kind"},
	)

	StatusUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_mesos_status_updates_total",
			Help: "Total number of task status updates received, by state",
		},
		[]string{"state"},
	)

	// Control metrics
	DesiredDelta = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_mesos_desired_delta",
			Help: "Signed task count the controller currently wants",
		},
	)

	FailureCounter = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_mesos_failure_counter",
			Help: "Current value of the task failure counter",
		},
	)

	ControllerTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_mesos_controller_ticks_total",
			Help: "Total number of controller loop ticks",
		},
	)
)

func init() {
	prometheus.MustRegister(OffersReceived)
	prometheus.MustRegister(OffersDeclined)
	prometheus.MustRegister(TasksLaunched)
	prometheus.MustRegister(StatusUpdates)
	prometheus.MustRegister(DesiredDelta)
	prometheus.MustRegister(FailureCounter)
	prometheus.MustRegister(ControllerTicks)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr. Blocks; run in a goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	return http.ListenAndServe(addr, mux)
}
