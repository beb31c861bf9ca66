// Package metrics exposes Prometheus instrumentation for the send
// pipeline, inbound pipeline, and refresh driver. Counters/histograms
// are registered against a private registry so multiple SDK instances
// in one process (e.g. in tests) don't collide on global registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles the engine's Prometheus instruments.
type Collector struct {
	Registry *prometheus.Registry

	MessagesSent      prometheus.Counter
	MessagesReceived  prometheus.Counter
	MessagesDeduped   prometheus.Counter
	SendRetries       prometheus.Counter
	AnnouncementsSent prometheus.Counter
	KeepAlivesSent    prometheus.Counter
	RefreshDuration   prometheus.Histogram
	ActiveSeekers     prometheus.Gauge
}

// New builds a Collector and registers its instruments.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gossip",
			Subsystem: "messaging",
			Name:      "messages_sent_total",
			Help:      "Outbound messages that reached SENT status.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gossip",
			Subsystem: "messaging",
			Name:      "messages_received_total",
			Help:      "Inbound messages decrypted and stored.",
		}),
		MessagesDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gossip",
			Subsystem: "messaging",
			Name:      "messages_deduped_total",
			Help:      "Inbound messages discarded as duplicates.",
		}),
		SendRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gossip",
			Subsystem: "messaging",
			Name:      "send_retries_total",
			Help:      "Transport send failures that armed a retry.",
		}),
		AnnouncementsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gossip",
			Subsystem: "announce",
			Name:      "announcements_sent_total",
			Help:      "Announcements successfully published to the bulletin.",
		}),
		KeepAlivesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gossip",
			Subsystem: "refresh",
			Name:      "keepalives_sent_total",
			Help:      "Keep-alive messages enqueued by the refresh driver.",
		}),
		RefreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gossip",
			Subsystem: "refresh",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one refresh driver cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
		ActiveSeekers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gossip",
			Subsystem: "messaging",
			Name:      "active_seekers",
			Help:      "Size of the most recent active-seeker snapshot.",
		}),
	}

	reg.MustRegister(
		c.MessagesSent, c.MessagesReceived, c.MessagesDeduped, c.SendRetries,
		c.AnnouncementsSent, c.KeepAlivesSent, c.RefreshDuration, c.ActiveSeekers,
	)
	return c
}
