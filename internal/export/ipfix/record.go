package ipfix

import (
	"fmt"

	"github.com/google/clerk/internal/flow"
)

// recordSize returns the fixed data-record size for the packet's type.
func (p *Packet) recordSize() int {
	if p.typ == PTV4 {
		return recordSizeV4
	}
	return recordSizeV6
}

// AddRecord appends one data record, in the exact field order advertised by
// the template. The packet type must be PTV4 or PTV6 and must match the
// key's address family. Returns true when the packet cannot take another
// record and must be sent and Reset.
func (p *Packet) AddRecord(k *flow.Key, s *flow.Stats, endReason uint8) bool {
	p.count++
	switch p.typ {
	case PTV4:
		if k.Network != flow.NetworkIPv4 {
			panic(fmt.Sprintf("ipfix: network %d record in IPv4 packet", k.Network))
		}
		p.putUint32(k.SrcIP4())
		p.putUint32(k.DstIP4())
	case PTV6:
		if k.Network != flow.NetworkIPv6 {
			panic(fmt.Sprintf("ipfix: network %d record in IPv6 packet", k.Network))
		}
		p.putBytes(k.SrcIP[:])
		p.putBytes(k.DstIP[:])
	default:
		panic(fmt.Sprintf("ipfix: adding record to packet type %d", p.typ))
	}
	p.putUint16(k.SrcPort)
	p.putUint16(k.DstPort)
	p.buf[p.cur] = k.Proto
	p.buf[p.cur+1] = s.TCPFlags
	// ICMP type and code pack into the 2-byte ICMP_TYPE element.
	p.buf[p.cur+2] = k.ICMPType
	p.buf[p.cur+3] = k.ICMPCode
	p.cur += 4
	p.putUint32(s.SrcASN)
	p.putUint32(s.DstASN)
	p.putUint64(s.Bytes)
	p.putUint64(s.Packets)
	p.putUint64(s.FirstNS)
	p.putUint64(s.LastNS)
	p.buf[p.cur] = k.TOS
	p.buf[p.cur+1] = endReason
	p.cur += 2
	p.putUint16(k.VLAN)
	return p.cur+p.recordSize() > maxPacketSize
}
