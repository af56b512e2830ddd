package headers

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func TestParseEthernetIPv4TCP(t *testing.T) {
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, TOS: 0xb8, Protocol: layers.IPProtocolTCP,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)},
		&layers.TCP{SrcPort: 1234, DstPort: 80, SYN: true},
	)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.Eth)
	require.NotNil(t, h.IP4)
	require.NotNil(t, h.TCP)
	assert.Nil(t, h.IP6)
	assert.Nil(t, h.UDP)

	assert.Equal(t, uint32(0x0a000001), h.IP4.SrcAddr())
	assert.Equal(t, uint32(0x0a000002), h.IP4.DstAddr())
	assert.Equal(t, uint8(6), h.IP4.Protocol())
	assert.Equal(t, uint8(0xb8), h.IP4.TOS())
	assert.Equal(t, uint16(1234), h.TCP.SrcPort())
	assert.Equal(t, uint16(80), h.TCP.DstPort())
	assert.Equal(t, uint8(0x02), h.TCP.Flags())
}

func TestParseIPv4WithOptions(t *testing.T) {
	// Hand-crafted: IHL 6 (one 4-byte option word of NOPs) followed by UDP.
	eth := make([]byte, 14)
	copy(eth[0:6], dstMAC)
	copy(eth[6:12], srcMAC)
	eth[12], eth[13] = 0x08, 0x00

	ip4 := make([]byte, 24)
	ip4[0] = (4 << 4) | 6
	ip4[8] = 64
	ip4[9] = 17
	copy(ip4[12:16], []byte{1, 2, 3, 4})
	copy(ip4[16:20], []byte{5, 6, 7, 8})
	copy(ip4[20:24], []byte{1, 1, 1, 1})

	udp := []byte{0x00, 0x35, 0x14, 0xe9, 0x00, 0x08, 0x00, 0x00}
	pkt := append(append(eth, ip4...), udp...)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.IP4)
	require.NotNil(t, h.UDP)
	assert.Equal(t, 6, h.IP4.IHL())
	assert.Equal(t, uint16(53), h.UDP.SrcPort())
	assert.Equal(t, uint16(5353), h.UDP.DstPort())
}

func TestParseVLANIPv6UDP(t *testing.T) {
	src := net.ParseIP("2001:db8::1")
	dst := net.ParseIP("2001:db8::2")
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 42, Type: layers.EthernetTypeIPv6},
		&layers.IPv6{Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP,
			TrafficClass: 0xb8, SrcIP: src, DstIP: dst},
		&layers.UDP{SrcPort: 1000, DstPort: 2000},
	)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.IP6)
	require.NotNil(t, h.UDP)
	assert.Nil(t, h.IP4)
	assert.Equal(t, []byte(src.To16()), h.IP6.SrcIP())
	assert.Equal(t, []byte(dst.To16()), h.IP6.DstIP())
	assert.Equal(t, uint8(17), h.IP6.NextHeader())
	// DSCP part of the traffic class.
	assert.Equal(t, uint8(0xb8>>2), h.IP6.TrafficClass())
}

func TestParseQinQMPLSIPv4(t *testing.T) {
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetType(0x88A8)},
		&layers.Dot1Q{VLANIdentifier: 7, Type: layers.EthernetTypeDot1Q},
		&layers.Dot1Q{VLANIdentifier: 42, Type: layers.EthernetType(0x8847)},
		&layers.MPLS{Label: 12345, TTL: 64, StackBottom: true},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
			SrcIP: net.IPv4(192, 0, 2, 1), DstIP: net.IPv4(192, 0, 2, 2)},
		&layers.TCP{SrcPort: 4444, DstPort: 443, ACK: true},
	)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.IP4)
	require.NotNil(t, h.TCP)
	assert.Equal(t, uint32(0xc0000201), h.IP4.SrcAddr())
	assert.Equal(t, uint32(0xc0000202), h.IP4.DstAddr())
	assert.Equal(t, uint16(4444), h.TCP.SrcPort())
	assert.Equal(t, uint16(443), h.TCP.DstPort())
}

func TestParseMPLSStack(t *testing.T) {
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetType(0x8847)},
		&layers.MPLS{Label: 100, TTL: 64},
		&layers.MPLS{Label: 200, TTL: 64, StackBottom: true},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolUDP,
			SrcIP: net.IPv4(198, 51, 100, 1), DstIP: net.IPv4(198, 51, 100, 2)},
		&layers.UDP{SrcPort: 9, DstPort: 9},
	)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.IP4)
	require.NotNil(t, h.UDP)
	assert.Equal(t, uint32(0xc6336401), h.IP4.SrcAddr())
}

func TestParseICMPv4(t *testing.T) {
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolICMPv4,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)},
		&layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(8, 0)},
	)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.ICMP4)
	assert.Equal(t, uint8(8), h.ICMP4.Type())
	assert.Equal(t, uint8(0), h.ICMP4.Code())
	assert.Nil(t, h.TCP)
	assert.Nil(t, h.UDP)
}

// buildIPv6 hand-crafts an IPv6 header so extension chains and fragments can
// be laid out exactly.
func buildIPv6(next uint8, payload []byte) []byte {
	eth := make([]byte, 14)
	copy(eth[0:6], dstMAC)
	copy(eth[6:12], srcMAC)
	eth[12], eth[13] = 0x86, 0xDD

	ip6 := make([]byte, 40)
	ip6[0] = 6 << 4
	ip6[4] = byte(len(payload) >> 8)
	ip6[5] = byte(len(payload))
	ip6[6] = next
	ip6[7] = 64
	ip6[23] = 1 // src ::1
	ip6[39] = 2 // dst ::2

	out := append(eth, ip6...)
	return append(out, payload...)
}

func TestParseIPv6ExtensionChain(t *testing.T) {
	// Hop-by-hop -> destination options -> TCP.
	tcp := make([]byte, 20)
	tcp[0], tcp[1] = 0x30, 0x39 // src port 12345
	tcp[2], tcp[3] = 0x00, 0x50 // dst port 80
	tcp[13] = 0x02

	dstOpts := append([]byte{6, 0, 0, 0, 0, 0, 0, 0}, tcp...)
	hopByHop := append([]byte{60, 0, 0, 0, 0, 0, 0, 0}, dstOpts...)
	pkt := buildIPv6(0, hopByHop)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.IP6)
	require.NotNil(t, h.TCP)
	assert.Equal(t, uint16(12345), h.TCP.SrcPort())
	assert.Equal(t, uint16(80), h.TCP.DstPort())
}

func TestParseIPv6FirstFragment(t *testing.T) {
	udp := []byte{0x00, 0x35, 0x10, 0x92, 0x00, 0x08, 0x00, 0x00}
	frag := append([]byte{17, 0, 0x00, 0x01, 0, 0, 0, 1}, udp...) // offset 0, more-fragments
	pkt := buildIPv6(44, frag)

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.IP6Frag)
	require.NotNil(t, h.UDP)
	assert.Equal(t, uint16(0x0035), h.UDP.SrcPort())
}

func TestParseIPv6NonFirstFragment(t *testing.T) {
	frag := []byte{17, 0, 0x00, 0xa8, 0, 0, 0, 1} // nonzero offset
	pkt := buildIPv6(44, append(frag, make([]byte, 32)...))

	var h Headers
	h.Parse(pkt)
	require.NotNil(t, h.IP6)
	require.NotNil(t, h.IP6Frag)
	// No L4 for a non-first fragment, even with enough trailing bytes.
	assert.Nil(t, h.UDP)
	assert.Nil(t, h.TCP)
}

func TestParseTruncated(t *testing.T) {
	full := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4},
		&layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: layers.IPProtocolTCP,
			SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)},
		&layers.TCP{SrcPort: 1, DstPort: 2},
	)

	var h Headers

	// Too short for Ethernet.
	h.Parse(full[:10])
	assert.Nil(t, h.Eth)

	// Ethernet but truncated IP.
	h.Parse(full[:20])
	assert.NotNil(t, h.Eth)
	assert.Nil(t, h.IP4)

	// IP intact, truncated TCP: the L3 view must survive.
	h.Parse(full[:40])
	assert.NotNil(t, h.IP4)
	assert.Nil(t, h.TCP)
}

func TestParseUnknownEtherType(t *testing.T) {
	pkt := serialize(t,
		&layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeARP},
		gopacket.Payload(make([]byte, 28)),
	)
	var h Headers
	h.Parse(pkt)
	assert.NotNil(t, h.Eth)
	assert.Nil(t, h.IP4)
	assert.Nil(t, h.IP6)
}
