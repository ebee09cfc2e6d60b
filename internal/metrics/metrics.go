// Package metrics defines the Prometheus metrics for ip4router.
// All metrics use the "ip4router_" namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ip4router"

var (
	packetsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_dropped_total",
		Help:      "Total frames dropped by the pipeline, by reason.",
	}, []string{"reason"})

	packetsForwarded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "packets_forwarded_total",
		Help:      "Total IPv4 datagrams successfully forwarded.",
	})

	icmpSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "icmp_sent_total",
		Help:      "Total ICMP messages originated by the router, by kind.",
	}, []string{"kind"})

	arpProbesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "arp_probes_sent_total",
		Help:      "Total ARP request probes transmitted, both immediate probes on a forwarding miss and sweeper retries.",
	})

	arpGivenUp = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "arp_given_up_total",
		Help:      "Total ARP resolutions abandoned after exhausting retries.",
	})

	arpCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "arp_cache_hits_total",
		Help:      "Total forwarding lookups resolved from the ARP cache.",
	})

	arpCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "arp_cache_misses_total",
		Help:      "Total forwarding lookups that required queueing for ARP resolution.",
	})
)

// Recorder implements router.Instrumentation on top of the package's
// Prometheus collectors. Its zero value is ready to use; every method call
// updates the process-global registry.
type Recorder struct{}

func (Recorder) PacketDropped(reason string) { packetsDropped.WithLabelValues(reason).Inc() }
func (Recorder) PacketForwarded()            { packetsForwarded.Inc() }
func (Recorder) ICMPSent(kind string)        { icmpSent.WithLabelValues(kind).Inc() }
func (Recorder) ArpProbeSent()               { arpProbesSent.Inc() }
func (Recorder) ArpGivenUp()                 { arpGivenUp.Inc() }
func (Recorder) ArpCacheHit()                { arpCacheHits.Inc() }
func (Recorder) ArpCacheMiss()               { arpCacheMisses.Inc() }
