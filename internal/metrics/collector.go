// Package metrics exposes nyat64 translation and ARP-resolution counters
// as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	xlateNamespace = "nyat64"
	xlateSubsystem = "xlate"
	arpSubsystem   = "arp"

	labelDirection  = "direction"
	labelProtocol   = "protocol"
	labelDropReason = "reason"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Translation/ARP Metrics
// -------------------------------------------------------------------------

// Collector holds all nyat64 Prometheus metrics. It implements
// xlate.Metrics and xlate.ARPMetrics directly, so it can be handed to
// both translator directions and the ARP cache without an adapter.
type Collector struct {
	// PacketsTranslated counts successfully emitted frames/datagrams,
	// labeled by direction and L4 protocol.
	PacketsTranslated *prometheus.CounterVec

	// PacketsDropped counts per-packet translation failures, labeled by
	// direction and a short stable drop reason.
	PacketsDropped *prometheus.CounterVec

	// ARPCacheSize reports the current number of live (non-expired) ARP
	// cache entries.
	ARPCacheSize prometheus.Gauge

	// ARPRequestsSent counts ARP requests broadcast by Request on a
	// cache miss.
	ARPRequestsSent prometheus.Counter

	// ARPRepliesLearned counts ARP replies ingested via ParseARP that
	// populated or refreshed a cache entry.
	ARPRepliesLearned prometheus.Counter

	// ARPRepliesServed counts ARP replies this process sent in answer
	// to a request for an address it owns.
	ARPRepliesServed prometheus.Counter

	// ARPTimeouts counts Request calls that exhausted their poll budget
	// without resolving a MAC address.
	ARPTimeouts prometheus.Counter
}

// NewCollector creates a Collector with all metrics registered against
// reg. If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PacketsTranslated,
		c.PacketsDropped,
		c.ARPCacheSize,
		c.ARPRequestsSent,
		c.ARPRepliesLearned,
		c.ARPRepliesServed,
		c.ARPTimeouts,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		PacketsTranslated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: xlateNamespace,
			Subsystem: xlateSubsystem,
			Name:      "packets_translated_total",
			Help:      "Total packets successfully translated and forwarded.",
		}, []string{labelDirection, labelProtocol}),

		PacketsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: xlateNamespace,
			Subsystem: xlateSubsystem,
			Name:      "packets_dropped_total",
			Help:      "Total packets dropped during translation, by reason.",
		}, []string{labelDirection, labelDropReason}),

		ARPCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: xlateNamespace,
			Subsystem: arpSubsystem,
			Name:      "cache_size",
			Help:      "Current number of live entries in the ARP cache.",
		}),

		ARPRequestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: xlateNamespace,
			Subsystem: arpSubsystem,
			Name:      "requests_sent_total",
			Help:      "Total ARP requests broadcast on a cache miss.",
		}),

		ARPRepliesLearned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: xlateNamespace,
			Subsystem: arpSubsystem,
			Name:      "replies_learned_total",
			Help:      "Total ARP replies ingested that populated or refreshed a cache entry.",
		}),

		ARPRepliesServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: xlateNamespace,
			Subsystem: arpSubsystem,
			Name:      "replies_served_total",
			Help:      "Total ARP replies sent in answer to a request for an owned address.",
		}),

		ARPTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: xlateNamespace,
			Subsystem: arpSubsystem,
			Name:      "timeouts_total",
			Help:      "Total ARP Request calls that exhausted their poll budget unresolved.",
		}),
	}
}

// -------------------------------------------------------------------------
// xlate.Metrics
// -------------------------------------------------------------------------

// Translated increments the translated-packets counter for direction/protocol.
func (c *Collector) Translated(direction, protocol string) {
	c.PacketsTranslated.WithLabelValues(direction, protocol).Inc()
}

// Dropped increments the dropped-packets counter for direction/reason.
func (c *Collector) Dropped(direction, reason string) {
	c.PacketsDropped.WithLabelValues(direction, reason).Inc()
}

// -------------------------------------------------------------------------
// xlate.ARPMetrics
// -------------------------------------------------------------------------

// RequestSent increments the ARP requests-sent counter.
func (c *Collector) RequestSent() {
	c.ARPRequestsSent.Inc()
}

// ReplyLearned increments the ARP replies-learned counter.
func (c *Collector) ReplyLearned() {
	c.ARPRepliesLearned.Inc()
}

// ReplyServed increments the ARP replies-served counter.
func (c *Collector) ReplyServed() {
	c.ARPRepliesServed.Inc()
}

// Timeout increments the ARP timeouts counter.
func (c *Collector) Timeout() {
	c.ARPTimeouts.Inc()
}

// SetCacheSize sets the ARP cache size gauge to n. Callers sample this
// periodically (the ARPCache itself does not push metrics on every
// mutation, to avoid a gauge write per packet).
func (c *Collector) SetCacheSize(n int) {
	c.ARPCacheSize.Set(float64(n))
}
