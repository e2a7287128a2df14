package control

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_events_published_total",
			Help: "Total number of events published to the bus, by source",
		},
		[]string{"source"},
	)

	EventsRouted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_events_routed_total",
			Help: "Total number of events matched to a route, by route and result",
		},
		[]string{"route", "result"},
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_deliveries_total",
			Help: "Total number of actor delivery attempts, by actor and result",
		},
		[]string{"actor", "result"},
	)

	DeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayd_delivery_duration_seconds",
			Help:    "Actor delivery latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"actor"},
	)

	SourcePollDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayd_source_poll_duration_seconds",
			Help:    "Source poll latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	LoggerDropsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayd_logger_drops_total",
			Help: "Total number of log records dropped because a sink's queue was full",
		},
		[]string{"sink"},
	)

	ModulesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "relayd_modules_active",
			Help: "Number of modules currently in the active state",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsRouted)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(DeliveryDuration)
	prometheus.MustRegister(SourcePollDuration)
	prometheus.MustRegister(LoggerDropsTotal)
	prometheus.MustRegister(ModulesActive)
}

// Handler returns the HTTP handler serving metrics in Prometheus exposition
// format, for registration on the control API's mux.
func Handler() http.Handler {
	return promhttp.Handler()
}
