package metrics

import (
	"github.com/matheus3301/rentchat/internal/bus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Realtime channel metrics
	FramesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentchat_frames_dispatched_total",
			Help: "Inbound frames handed to a handler",
		},
		[]string{"channel", "kind"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentchat_frames_dropped_total",
			Help: "Inbound frames discarded",
		},
		[]string{"channel", "reason"}, // "malformed", "unknown", "panic"
	)

	ReconnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentchat_reconnect_attempts_total",
			Help: "Reconnect dials after an abnormal close",
		},
		[]string{"channel"},
	)

	HeartbeatTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentchat_heartbeat_timeouts_total",
			Help: "Connections dropped because the server went silent",
		},
		[]string{"channel"},
	)

	ConnectionOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rentchat_connection_open",
			Help: "1 while the channel is OPEN",
		},
		[]string{"channel"},
	)

	// Messaging metrics
	Sends = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentchat_sends_total",
			Help: "Optimistic sends by outcome",
		},
		[]string{"outcome"}, // "rejected", "submitted", "confirmed", "failed", "retried"
	)

	TypingExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rentchat_typing_expired_total",
			Help: "Remote typing entries removed by forced expiry",
		},
	)

	BusEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentchat_bus_events_total",
			Help: "Domain events observed on the bus",
		},
		[]string{"kind"},
	)

	BusDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rentchat_bus_dropped_total",
			Help: "Events a full subscriber missed, by subscription prefix",
		},
		[]string{"subscriber"},
	)
)

// ObserveBusDrop is a bus drop hook.
func ObserveBusDrop(namespace string, _ bus.Event) {
	if namespace == "" {
		namespace = "*"
	}
	BusDropped.WithLabelValues(namespace).Inc()
}
