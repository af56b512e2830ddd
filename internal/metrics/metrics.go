// Package metrics holds the agent's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PacketsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clerk_packets_processed_total",
			Help: "Packets metered, by tap worker.",
		},
		[]string{"worker"},
	)
	BlocksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clerk_tap_blocks_total",
			Help: "Packet blocks received from the tap, by worker.",
		},
		[]string{"worker"},
	)
	FlowsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clerk_flows_exported_total",
			Help: "Flow records handed to an exporter, by exporter.",
		},
		[]string{"exporter"},
	)
	ExportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clerk_export_errors_total",
			Help: "Errors while exporting, by exporter.",
		},
		[]string{"exporter"},
	)
	DatagramsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clerk_ipfix_datagrams_sent_total",
			Help: "IPFIX datagrams emitted.",
		},
	)
	ASNReloads = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clerk_asn_reloads_total",
			Help: "Completed reloads of the ASN CSV.",
		},
	)
	GatheredFlows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "clerk_gathered_flows",
			Help: "Flows in the reduced table at the last gather.",
		},
	)
)
