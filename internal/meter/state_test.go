package meter

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/clerk/internal/flow"
	"github.com/google/clerk/internal/model"
)

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func tcpPacket(t *testing.T, syn, ack, fin bool) []byte {
	t.Helper()
	return serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)},
		&layers.TCP{SrcPort: 1234, DstPort: 80, SYN: syn, ACK: ack, FIN: fin},
	)
}

func singleEntry(t *testing.T, table flow.Table) (flow.Key, flow.Stats) {
	t.Helper()
	require.Len(t, table, 1)
	for k, s := range table {
		return k, s
	}
	panic("unreachable")
}

func TestProcessSingleTCPPacket(t *testing.T) {
	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: tcpPacket(t, true, false, false), Length: 60, Nanos: 1_000_000_000})

	key, stats := singleEntry(t, s.Table())
	assert.Equal(t, flow.NetworkIPv4, key.Network)
	assert.Equal(t, uint32(0x0a000001), key.SrcIP4())
	assert.Equal(t, uint32(0x0a000002), key.DstIP4())
	assert.Equal(t, uint16(1234), key.SrcPort)
	assert.Equal(t, uint16(80), key.DstPort)
	assert.Equal(t, uint8(6), key.Proto)
	assert.Equal(t, uint64(60), stats.Bytes)
	assert.Equal(t, uint64(1), stats.Packets)
	assert.Equal(t, uint8(0x02), stats.TCPFlags)
	assert.Equal(t, uint64(1_000_000_000), stats.FirstNS)
	assert.Equal(t, uint64(1_000_000_000), stats.LastNS)
}

func TestProcessAggregatesFlow(t *testing.T) {
	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: tcpPacket(t, true, true, false), Length: 60, Nanos: 1_000_000_000})
	s.Process(&model.Packet{Data: tcpPacket(t, false, false, true), Length: 52, Nanos: 2_000_000_000})

	key, stats := singleEntry(t, s.Table())
	assert.Equal(t, uint16(1234), key.SrcPort)
	assert.Equal(t, uint64(112), stats.Bytes)
	assert.Equal(t, uint64(2), stats.Packets)
	assert.Equal(t, uint8(0x13), stats.TCPFlags)
	assert.Equal(t, uint64(1_000_000_000), stats.FirstNS)
	assert.Equal(t, uint64(2_000_000_000), stats.LastNS)
	assert.Equal(t, flow.EndDetected, stats.Finished(0))
}

func TestProcessVLANFromTapMetadata(t *testing.T) {
	src := net.ParseIP("2001:db8::1")
	dst := net.ParseIP("2001:db8::2")
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 42, Type: layers.EthernetTypeIPv6},
		&layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP, SrcIP: src, DstIP: dst},
		&layers.UDP{SrcPort: 1000, DstPort: 2000},
	)

	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: pkt, Length: len(pkt), Nanos: 1, VLANValid: true, VLANTCI: 42})

	key, _ := singleEntry(t, s.Table())
	assert.Equal(t, flow.NetworkIPv6, key.Network)
	assert.Equal(t, uint16(42), key.VLAN)
	assert.Equal(t, []byte(src.To16()), key.SrcIP[:])
	assert.Equal(t, []byte(dst.To16()), key.DstIP[:])
	assert.Equal(t, uint16(1000), key.SrcPort)
	assert.Equal(t, uint16(2000), key.DstPort)
}

func TestProcessEncapsulated(t *testing.T) {
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetType(0x88A8)},
		&layers.Dot1Q{VLANIdentifier: 7, Type: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 42, Type: layers.EthernetType(0x8847)},
		&layers.MPLS{Label: 12345, TTL: 64, StackBottom: true},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
			SrcIP: net.IPv4(192, 0, 2, 1), DstIP: net.IPv4(192, 0, 2, 2)},
		&layers.TCP{SrcPort: 4444, DstPort: 443, ACK: true},
	)

	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: pkt, Length: len(pkt), Nanos: 1})

	key, _ := singleEntry(t, s.Table())
	assert.Equal(t, uint32(0xc0000201), key.SrcIP4())
	assert.Equal(t, uint32(0xc0000202), key.DstIP4())
	assert.Equal(t, uint16(4444), key.SrcPort)
	assert.Equal(t, uint16(443), key.DstPort)
}

func TestProcessTOS(t *testing.T) {
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, TOS: 0xb8, Protocol: layers.IPProtocolUDP,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)},
		&layers.UDP{SrcPort: 1, DstPort: 2},
	)

	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: pkt, Length: len(pkt), Nanos: 1})

	key, _ := singleEntry(t, s.Table())
	assert.Equal(t, uint8(0xb8>>2), key.TOS)
}

func TestProcessUnparseablePacket(t *testing.T) {
	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: []byte{1, 2, 3}, Length: 3, Nanos: 1})

	// The packet still counts, under the zero key.
	key, stats := singleEntry(t, s.Table())
	assert.Equal(t, flow.Key{}, key)
	assert.Equal(t, uint64(1), stats.Packets)
}

func TestRotateKeepsActiveFlows(t *testing.T) {
	s := NewState(nil, 0)
	// Active flow with recent traffic.
	s.Process(&model.Packet{Data: tcpPacket(t, true, false, false), Length: 60, Nanos: 200_000_000_000})

	rotated := NewState(s, 100_000_000_000)
	key, stats := singleEntry(t, rotated.Table())
	assert.Equal(t, uint16(1234), key.SrcPort)
	// Counters reset so the next cycle reports only new activity.
	assert.Zero(t, stats.Bytes)
	assert.Zero(t, stats.Packets)
	assert.Zero(t, stats.TCPFlags)
	// Timestamps survive for cross-cycle first/last accounting.
	assert.Equal(t, uint64(200_000_000_000), stats.FirstNS)
	assert.Equal(t, uint64(200_000_000_000), stats.LastNS)
}

func TestRotateDropsIdleFlows(t *testing.T) {
	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: tcpPacket(t, true, false, false), Length: 60, Nanos: 0})

	// Cutoff of 100s with last activity at t=0: idle, dropped.
	rotated := NewState(s, 100_000_000_000)
	assert.Empty(t, rotated.Table())
}

func TestRotateDropsFinishedFlows(t *testing.T) {
	s := NewState(nil, 0)
	s.Process(&model.Packet{Data: tcpPacket(t, true, true, false), Length: 60, Nanos: 200_000_000_000})
	s.Process(&model.Packet{Data: tcpPacket(t, false, false, true), Length: 52, Nanos: 201_000_000_000})

	rotated := NewState(s, 100_000_000_000)
	assert.Empty(t, rotated.Table())
}

func TestMerge(t *testing.T) {
	a := NewState(nil, 0)
	b := NewState(nil, 0)
	pkt := tcpPacket(t, true, false, false)
	a.Process(&model.Packet{Data: pkt, Length: 60, Nanos: 1_000_000_000})
	b.Process(&model.Packet{Data: pkt, Length: 60, Nanos: 3_000_000_000})

	a.Merge(b)
	_, stats := singleEntry(t, a.Table())
	assert.Equal(t, uint64(120), stats.Bytes)
	assert.Equal(t, uint64(2), stats.Packets)
	assert.Equal(t, uint64(1_000_000_000), stats.FirstNS)
	assert.Equal(t, uint64(3_000_000_000), stats.LastNS)
}

func TestFactoryEndReason(t *testing.T) {
	f := &Factory{}
	f.SetCutoffNanos(100)

	idle := flow.Stats{LastNS: 50}
	active := flow.Stats{LastNS: 200, Packets: 1}
	assert.Equal(t, flow.EndIdleTimeout, f.EndReason(&idle))
	assert.Equal(t, flow.EndActiveTimeout, f.EndReason(&active))

	f.SetForcedEnd(true)
	assert.Equal(t, flow.EndForced, f.EndReason(&active))
	// Already-classified ends keep their reason.
	assert.Equal(t, flow.EndIdleTimeout, f.EndReason(&idle))
}

func TestFactoryRotatesThroughNew(t *testing.T) {
	f := &Factory{}
	f.SetCutoffNanos(100_000_000_000)

	s := f.New(nil).(*State)
	s.Process(&model.Packet{Data: tcpPacket(t, true, false, false), Length: 60, Nanos: 200_000_000_000})

	rotated := f.New(s).(*State)
	assert.Len(t, rotated.Table(), 1)
}
