package ipfix

import (
	"net"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/flow"
	"github.com/google/clerk/internal/meter"
	"github.com/google/clerk/internal/metrics"
	"github.com/google/clerk/internal/model"
)

// Sender exports a flow table as IPFIX datagrams: per address family, one
// template datagram followed by as many data datagrams as the flows need.
// Sequence numbers count data records and are monotone across exports.
//
// Datagram delivery is pluggable; emit errors are logged and the affected
// datagram dropped, never fatal.
type Sender struct {
	name    string
	factory *meter.Factory
	clock   model.Clock
	seq     uint32
	emit    func([]byte) error
}

// NewUDPSender exports over a connected UDP socket.
func NewUDPSender(conn *net.UDPConn, factory *meter.Factory, clock model.Clock) *Sender {
	return &Sender{
		name:    "ipfix-udp",
		factory: factory,
		clock:   clock,
		emit: func(data []byte) error {
			_, err := conn.Write(data)
			return err
		},
	}
}

// NewNATSSender publishes each datagram to a NATS subject.
func NewNATSSender(nc *nats.Conn, subject string, factory *meter.Factory, clock model.Clock) *Sender {
	return &Sender{
		name:    "ipfix-nats",
		factory: factory,
		clock:   clock,
		emit: func(data []byte) error {
			return nc.Publish(subject, data)
		},
	}
}

// newFuncSender is the test seam: datagrams go to fn.
func newFuncSender(fn func([]byte) error, factory *meter.Factory, clock model.Clock) *Sender {
	return &Sender{name: "ipfix-func", factory: factory, clock: clock, emit: fn}
}

// Send implements model.Exporter.
func (s *Sender) Send(flows flow.Table) error {
	unixSecs := uint32(s.clock.NowNanos() / int64(1e9))
	log.Infof("Flushing %d flows over %s", len(flows), s.name)
	pkt := NewPacket(unixSecs)

	s.sendFamily(pkt, flows, flow.NetworkIPv4, PTV4)
	s.sendFamily(pkt, flows, flow.NetworkIPv6, PTV6)
	return nil
}

func (s *Sender) sendFamily(pkt *Packet, flows flow.Table, network uint8, pt PacketType) {
	// Template first, as its own datagram.
	pkt.Reset(PTTemplate, s.seq)
	pkt.WriteTemplate(network == flow.NetworkIPv4)
	s.sendTo(pkt)

	pkt.Reset(pt, s.seq)
	count := 0
	for key, stats := range flows {
		if key.Network != network {
			continue
		}
		endReason := s.factory.EndReason(&stats)
		if stats.Packets == 0 && endReason == flow.EndActiveTimeout {
			// Pure carry-over with no new traffic this cycle.
			continue
		}
		count++
		s.seq++
		if pkt.AddRecord(&key, &stats, endReason) {
			s.sendTo(pkt)
			pkt.Reset(pt, s.seq)
		}
	}
	if pkt.Count() > 0 {
		s.sendTo(pkt)
	}
	metrics.FlowsExported.WithLabelValues(s.name).Add(float64(count))
	log.Infof("Wrote %d records for network %d", count, network)
}

func (s *Sender) sendTo(pkt *Packet) {
	if err := s.emit(pkt.Data()); err != nil {
		metrics.ExportErrors.WithLabelValues(s.name).Inc()
		log.Errorf("Sending IPFIX datagram failed: %v", err)
		return
	}
	metrics.DatagramsSent.Inc()
}
