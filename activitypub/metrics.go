package activitypub

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "federation",
		Name:      "deliveries_total",
		Help:      "Outbound activity deliveries by result.",
	}, []string{"result"}) // ok, retry, gave_up

	metricInbound = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "federation",
		Name:      "inbound_total",
		Help:      "Inbound activities by outcome.",
	}, []string{"outcome"}) // applied, duplicate, ignored, rejected, deferred, failed

	metricInboundByType = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "federation",
		Name:      "inbound_by_type_total",
		Help:      "Inbound activities by activity type.",
	}, []string{"type"})

	metricActorFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grove",
		Subsystem: "federation",
		Name:      "actor_fetches_total",
		Help:      "Remote actor document fetches by result.",
	}, []string{"result"}) // ok, error
)
