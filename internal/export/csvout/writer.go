// Package csvout writes one-row-per-flow debug snapshots.
package csvout

import (
	"bufio"
	"fmt"
	"io"
	"net"

	"github.com/google/clerk/internal/flow"
	"github.com/google/clerk/internal/meter"
	"github.com/google/clerk/internal/metrics"
)

const header = "FlowStart,FlowEnd,SrcIP,DstIP,SrcPort,DstPort,VLAN,TOS," +
	"Protocol,ICMPType,ICMPCode,Bytes,Packets,FlowEndReason\n"

// Writer renders a flow table as CSV. It implements model.Exporter.
type Writer struct {
	w       io.Writer
	factory *meter.Factory
}

func NewWriter(w io.Writer, factory *meter.Factory) *Writer {
	return &Writer{w: w, factory: factory}
}

// Send writes the header line and one row per flow that saw traffic this
// cycle or ended. Timestamps are rendered as seconds with nanosecond
// precision.
func (s *Writer) Send(flows flow.Table) error {
	bw := bufio.NewWriter(s.w)
	if _, err := bw.WriteString(header); err != nil {
		return err
	}
	count := 0
	for key, stats := range flows {
		endReason := s.factory.EndReason(&stats)
		if stats.Packets == 0 && endReason == flow.EndActiveTimeout {
			continue
		}
		count++
		_, err := fmt.Fprintf(bw, "%d.%09d,%d.%09d,%s,%s,%d,%d,%d,%d,%d,%d,%d,%d,%d,%d\n",
			stats.FirstNS/1e9, stats.FirstNS%1e9,
			stats.LastNS/1e9, stats.LastNS%1e9,
			ipString(key.SrcIP, key.Network), ipString(key.DstIP, key.Network),
			key.SrcPort, key.DstPort, key.VLAN, key.TOS, key.Proto,
			key.ICMPType, key.ICMPCode, stats.Bytes, stats.Packets, endReason)
		if err != nil {
			return err
		}
	}
	metrics.FlowsExported.WithLabelValues("csv").Add(float64(count))
	return bw.Flush()
}

// ipString renders an address: dotted quad from the low 4 bytes for v4,
// standard colon-hex groups for v6.
func ipString(ip [16]byte, network uint8) string {
	if network == flow.NetworkIPv4 {
		return fmt.Sprintf("%d.%d.%d.%d", ip[12], ip[13], ip[14], ip[15])
	}
	return net.IP(ip[:]).String()
}
