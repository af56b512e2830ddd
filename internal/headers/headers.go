// Package headers decodes the layered headers of a raw packet without
// copying or allocating: the decoder peels L2 encapsulations, then parses the
// IP and transport headers, leaving byte-slice views into the input buffer.
package headers

import "encoding/binary"

// EtherTypes and encapsulation markers handled by the pre-IP peel loop.
const (
	// typeEthernet is not a valid EtherType; it marks that the next layer to
	// decode is an Ethernet header.
	typeEthernet uint16 = 0

	etherTypeIPv4     uint16 = 0x0800
	etherType8021Q    uint16 = 0x8100
	etherTypeIPv6     uint16 = 0x86DD
	etherTypeMPLSUni  uint16 = 0x8847
	etherTypeMPLSMul  uint16 = 0x8848
	etherType8021AD   uint16 = 0x88A8
	etherTypeQinQOld1 uint16 = 0x9100
	etherTypeQinQOld2 uint16 = 0x9200
	etherTypeQinQOld3 uint16 = 0x9300

	mplsBottomOfStack uint32 = 1 << 8
)

// IP protocol numbers the decoder inspects.
const (
	protoHopByHop uint8 = 0
	protoICMP     uint8 = 1
	protoTCP      uint8 = 6
	protoUDP      uint8 = 17
	protoRouting  uint8 = 43
	protoFragment uint8 = 44
	protoICMPv6   uint8 = 58
	protoDstOpts  uint8 = 60
	protoMH       uint8 = 135

	protoUnknown uint8 = 0
)

// Headers holds the decoded layers of one packet. Every view is nil until
// Parse finds the corresponding header; on a truncated or unrecognized
// packet, the views set before the failure point remain set.
type Headers struct {
	// Layer 2
	Eth Ethernet

	// Layer 3
	IP4 IPv4
	IP6 IPv6

	// Layer 4
	TCP   TCP
	UDP   UDP
	ICMP4 ICMPv4
	ICMP6 ICMPv6

	// Other metadata
	IP6Frag IPv6Frag
}

// Reset clears all views.
func (h *Headers) Reset() {
	*h = Headers{}
}

// Parse decodes data, setting the views for each header found. The input is
// expected to start with an Ethernet header. Views borrow from data and are
// valid only as long as it is.
func (h *Headers) Parse(data []byte) {
	h.Reset()
	rest := data
	typ := typeEthernet

	// Strip all pre-IP-header layers.
peel:
	for {
		switch typ {
		case typeEthernet:
			if len(rest) < ethernetSize {
				return
			}
			h.Eth = Ethernet(rest[:ethernetSize])
			typ = h.Eth.NextType()
			rest = rest[ethernetSize:]

		case etherType8021Q, etherType8021AD, etherTypeQinQOld1, etherTypeQinQOld2, etherTypeQinQOld3:
			// VLAN tag: 2 bytes TCI, 2 bytes inner EtherType.
			if len(rest) < 4 {
				return
			}
			typ = binary.BigEndian.Uint16(rest[2:4])
			rest = rest[4:]

		case etherTypeMPLSUni, etherTypeMPLSMul:
			for {
				// 5 bytes: the label itself plus the first nibble after the
				// stack, needed to classify the payload.
				if len(rest) < 5 {
					return
				}
				label := binary.BigEndian.Uint32(rest[0:4])
				rest = rest[4:]
				if label&mplsBottomOfStack != 0 {
					break
				}
			}
			switch rest[0] >> 4 {
			case 0: // RFC 4385 pseudowire: control word, then Ethernet.
				if len(rest) < 4 {
					return
				}
				rest = rest[4:]
				typ = typeEthernet
			case 4:
				typ = etherTypeIPv4
			case 6:
				typ = etherTypeIPv6
			default:
				return
			}

		default:
			break peel
		}
	}

	protocol := protoUnknown
	switch typ {
	case etherTypeIPv4:
		if len(rest) < ipv4MinSize {
			return
		}
		h.IP4 = IPv4(rest[:ipv4MinSize])
		hdrLen := h.IP4.IHL() * 4
		if hdrLen < ipv4MinSize || len(rest) < hdrLen {
			return
		}
		protocol = h.IP4.Protocol()
		rest = rest[hdrLen:]

	case etherTypeIPv6:
		if len(rest) < ipv6Size {
			return
		}
		h.IP6 = IPv6(rest[:ipv6Size])
		protocol = h.IP6.NextHeader()
		rest = rest[ipv6Size:]

		// Strip IPv6 extension headers.
	extensions:
		for {
			switch protocol {
			case protoFragment:
				if len(rest) < ipv6FragSize {
					return
				}
				h.IP6Frag = IPv6Frag(rest[:ipv6FragSize])
				if h.IP6Frag.OffsetFlags()&0xfff8 != 0 {
					// Not the first fragment: keep the IPs we have, but there
					// is no L4 header to find.
					break extensions
				}
				protocol = h.IP6Frag.NextHeader()
				rest = rest[ipv6FragSize:]

			case protoHopByHop, protoRouting, protoDstOpts, protoMH:
				if len(rest) < 2 {
					return
				}
				extLen := (int(rest[1]) + 1) * 8
				if len(rest) < extLen {
					return
				}
				protocol = rest[0]
				rest = rest[extLen:]

			default:
				break extensions
			}
		}

	default:
		return
	}

	switch protocol {
	case protoTCP:
		if len(rest) < tcpSize {
			return
		}
		h.TCP = TCP(rest[:tcpSize])
	case protoUDP:
		if len(rest) < udpSize {
			return
		}
		h.UDP = UDP(rest[:udpSize])
	case protoICMP:
		if len(rest) < icmpv4Size {
			return
		}
		h.ICMP4 = ICMPv4(rest[:icmpv4Size])
	case protoICMPv6:
		if len(rest) < icmpv6Size {
			return
		}
		h.ICMP6 = ICMPv6(rest[:icmpv6Size])
	}
}
