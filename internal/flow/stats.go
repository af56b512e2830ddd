package flow

// Flow end reasons, from the IANA IPFIX registry
// (http://www.iana.org/assignments/ipfix/ipfix.xhtml, flowEndReason).
const (
	// EndIdleTimeout: the flow was terminated because it was considered idle.
	EndIdleTimeout uint8 = 1
	// EndActiveTimeout: the flow was reported while still active.
	EndActiveTimeout uint8 = 2
	// EndDetected: the metering process saw signals indicating the end of the
	// flow, for example the TCP FIN flag.
	EndDetected uint8 = 3
	// EndForced: the flow was terminated by an external event, for example a
	// shutdown of the metering process.
	EndForced uint8 = 4
	// EndLackOfResources: the flow was terminated for lack of resources.
	EndLackOfResources uint8 = 5
)

const (
	tcpFlagFIN = 0x01
	tcpFlagRST = 0x04
)

// Stats holds the counters accumulated for one flow. SrcASN and DstASN are
// zero until export-time enrichment.
type Stats struct {
	Bytes    uint64
	Packets  uint64
	TCPFlags uint8
	FirstNS  uint64 // nanos since epoch; zero means no data yet
	LastNS   uint64
	SrcASN   uint32
	DstASN   uint32
}

// NewStats returns stats for a single packet observation.
func NewStats(bytes, packets, tsNS uint64) Stats {
	return Stats{Bytes: bytes, Packets: packets, FirstNS: tsNS, LastNS: tsNS}
}

// Merge folds another stats value into this one. The operation is commutative
// and associative: counters sum, TCP flags OR, and the timestamp range widens
// to the min/max of the non-zero inputs.
func (s *Stats) Merge(o Stats) {
	s.Bytes += o.Bytes
	s.Packets += o.Packets
	s.TCPFlags |= o.TCPFlags
	if s.FirstNS == 0 || (o.FirstNS != 0 && o.FirstNS < s.FirstNS) {
		s.FirstNS = o.FirstNS
	}
	if s.LastNS == 0 || o.LastNS > s.LastNS {
		s.LastNS = o.LastNS
	}
}

// Finished classifies the flow's end reason at the given idle cutoff.
func (s *Stats) Finished(cutoffNS uint64) uint8 {
	if s.LastNS < cutoffNS {
		return EndIdleTimeout
	}
	if s.TCPFlags&(tcpFlagFIN|tcpFlagRST) != 0 {
		return EndDetected
	}
	return EndActiveTimeout
}
