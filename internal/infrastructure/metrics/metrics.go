package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hilthontt/bingo/internal/domain"
)

const namespace = "bingo"

// Intent outcomes.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// RoomCounter reports live rooms by status at scrape time.
type RoomCounter interface {
	CountByStatus() map[domain.Status]int
}

type Metrics struct {
	Connections      prometheus.Gauge
	Intents          *prometheus.CounterVec
	BroadcastDropped prometheus.Counter
	RequestDuration  *prometheus.HistogramVec

	registry *prometheus.Registry
}

func New(rooms RoomCounter) *Metrics {
	m := &Metrics{
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		Intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Client intents handled, by intent and outcome.",
		}, []string{"intent", "result"}),
		BroadcastDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_dropped_total",
			Help:      "Outbound messages dropped because a client buffer was full.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.Connections,
		m.Intents,
		m.BroadcastDropped,
		m.RequestDuration,
		newRoomCollector(rooms),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveIntent(intent, result string) {
	m.Intents.WithLabelValues(intent, result).Inc()
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

type roomCollector struct {
	rooms RoomCounter
	desc  *prometheus.Desc
}

func newRoomCollector(rooms RoomCounter) *roomCollector {
	return &roomCollector{
		rooms: rooms,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "rooms"),
			"Live rooms by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *roomCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *roomCollector) Collect(ch chan<- prometheus.Metric) {
	counts := c.rooms.CountByStatus()
	for _, status := range domain.Statuses {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[status]), string(status))
	}
}
