package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "messaging_ws_active_connections",
		Help: "Websocket connections currently registered with the hub",
	})

	MessagesPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_messages_persisted_total",
		Help: "Messages appended to the store",
	})

	SendsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messaging_sends_rejected_total",
		Help: "Send attempts that were not persisted, by reason",
	}, []string{"reason"})

	BroadcastDeliveries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_broadcast_deliveries_total",
		Help: "Broadcast frames queued to local connections",
	})

	BroadcastDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "messaging_broadcast_dropped_total",
		Help: "Broadcast frames dropped because a connection's buffer was full",
	})
)

// Handler exposes the default registry for Prometheus scraping.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
