// Package metrics exports query outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/energizer-project/sourcequery/internal/events"
)

// Collector turns bus events into gauges and counters on its own registry.
type Collector struct {
	registry *prometheus.Registry

	players    *prometheus.GaugeVec
	maxPlayers *prometheus.GaugeVec
	rtt        *prometheus.GaugeVec
	online     *prometheus.GaugeVec
	queries    *prometheus.CounterVec
}

// NewCollector creates a Collector with Go runtime and process metrics registered.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	labels := []string{"target", "address"}
	return &Collector{
		registry: reg,
		players: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sourcequery_players",
			Help: "Players reported by the last successful query",
		}, labels),
		maxPlayers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sourcequery_max_players",
			Help: "Player slots reported by the last successful query",
		}, labels),
		rtt: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sourcequery_rtt_seconds",
			Help: "Round-trip time of the last successful query",
		}, labels),
		online: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sourcequery_online",
			Help: "1 if the last query of the target succeeded, 0 otherwise",
		}, labels),
		queries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcequery_queries_total",
			Help: "The total number of queries per target and result",
		}, []string{"target", "address", "result"}),
	}
}

// Subscribe attaches the collector to the query events on bus.
func (c *Collector) Subscribe(bus *events.EventBus) {
	bus.Subscribe("metrics", c.HandleEvent,
		events.EventQueryCompleted,
		events.EventQueryFailed,
		events.EventServerOnline,
		events.EventServerOffline,
	)
}

// HandleEvent updates the metrics for one event.
func (c *Collector) HandleEvent(_ context.Context, e events.Event) error {
	switch p := e.Payload.(type) {
	case events.QueryCompletedPayload:
		l := prometheus.Labels{"target": p.Target, "address": p.Address}
		c.players.With(l).Set(float64(p.Info.Players))
		c.maxPlayers.With(l).Set(float64(p.Info.MaxPlayers))
		c.rtt.With(l).Set(p.Info.RTT.Seconds())
		c.online.With(l).Set(1)
		c.queries.WithLabelValues(p.Target, p.Address, "success").Inc()

	case events.QueryFailedPayload:
		c.online.WithLabelValues(p.Target, p.Address).Set(0)
		c.queries.WithLabelValues(p.Target, p.Address, "failure").Inc()

	case events.ServerStatePayload:
		value := 0.0
		if p.Current == events.TargetStatusOnline {
			value = 1
		}
		c.online.WithLabelValues(p.Target, p.Address).Set(value)
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
