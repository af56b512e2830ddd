// Package ipfix builds and sends IPFIX (netflow v10) export packets.
package ipfix

import (
	"encoding/binary"
	"fmt"
)

// Information element IDs, from the IANA IPFIX registry
// (http://www.iana.org/assignments/ipfix/ipfix.xhtml).
const (
	fieldInBytes            uint16 = 1
	fieldInPkts             uint16 = 2
	fieldProtocol           uint16 = 4
	fieldIPClassOfService   uint16 = 5
	fieldTCPFlags           uint16 = 6
	fieldL4SrcPort          uint16 = 7
	fieldIPv4SrcAddr        uint16 = 8
	fieldL4DstPort          uint16 = 11
	fieldIPv4DstAddr        uint16 = 12
	fieldBGPSourceASNumber  uint16 = 16
	fieldBGPDestASNumber    uint16 = 17
	fieldIPv6SrcAddr        uint16 = 27
	fieldIPv6DstAddr        uint16 = 28
	fieldICMPType           uint16 = 32
	fieldVLANID             uint16 = 58
	fieldFlowEndReason      uint16 = 136
	fieldFlowStartNanosecs  uint16 = 156
	fieldFlowEndNanosecs    uint16 = 157
)

// PacketType selects what a packet carries: the template set, or data sets
// for one address family. Data set IDs double as the template IDs they were
// described by.
type PacketType uint16

const (
	PTTemplate PacketType = 2
	PTV4       PacketType = 256
	PTV6       PacketType = 257
)

const (
	// maxPacketSize keeps every datagram under a 1500-byte MTU.
	maxPacketSize = 1400

	// headerSize covers the 16-byte message header plus the 4-byte set
	// header.
	headerSize = 20

	// fieldCount is the number of field descriptors in a template record,
	// equal to the number of values in each data record.
	fieldCount = 16

	// templateSize is one template record: ID, field count, and the
	// descriptors.
	templateSize = 2 + 2 + fieldCount*4

	// Fixed data-record sizes per address family: two addresses plus
	// ports(4), protocol(1), TCP flags(1), ICMP type+code(2), two ASNs(8),
	// bytes(8), packets(8), first(8), last(8), TOS(1), end reason(1),
	// VLAN(2).
	recordTailSize = 4 + 1 + 1 + 2 + 8 + 8 + 8 + 8 + 8 + 1 + 1 + 2
	recordSizeV4   = 4 + 4 + recordTailSize
	recordSizeV6   = 16 + 16 + recordTailSize

	observationDomainID = 12345
)

// Packet builds one IPFIX datagram in a fixed buffer. Reset it to a type,
// fill it (WriteTemplate or AddRecord), and read it out with Data; the
// length fields are patched at read-out.
type Packet struct {
	buf      [maxPacketSize]byte
	cur      int
	count    int
	typ      PacketType
	unixSecs uint32
}

// NewPacket creates a builder stamping the given export time into every
// message header.
func NewPacket(unixSecs uint32) *Packet {
	return &Packet{unixSecs: unixSecs}
}

// Reset rewinds the buffer and writes the message header and set header for
// a packet of type t with the given sequence number. Both length fields are
// placeholders until Data.
func (p *Packet) Reset(t PacketType, seq uint32) {
	p.buf = [maxPacketSize]byte{}
	p.cur = 0
	p.count = 0
	p.typ = t
	p.putUint16(0xffff) // version, patched in Data
	p.putUint16(0xffff) // message length, patched in Data
	p.putUint32(p.unixSecs)
	p.putUint32(seq)
	p.putUint32(observationDomainID)
	p.putUint16(0xffff) // set ID, patched in Data
	p.putUint16(0xffff) // set length, patched in Data
	if p.cur != headerSize {
		panic(fmt.Sprintf("ipfix: header is %d bytes, want %d", p.cur, headerSize))
	}
}

// Count returns the number of records added since the last Reset.
func (p *Packet) Count() int { return p.count }

// Data patches the set and message lengths and returns the wire bytes. The
// returned slice aliases the builder and is valid until the next Reset.
func (p *Packet) Data() []byte {
	binary.BigEndian.PutUint16(p.buf[0:2], 10) // version
	binary.BigEndian.PutUint16(p.buf[2:4], uint16(p.cur))
	binary.BigEndian.PutUint16(p.buf[16:18], uint16(p.typ))
	binary.BigEndian.PutUint16(p.buf[18:20], uint16(p.cur-(headerSize-4)))
	return p.buf[:p.cur]
}

// WriteTemplate writes the template record for one address family. The
// packet type must be PTTemplate.
func (p *Packet) WriteTemplate(v4 bool) {
	if p.typ != PTTemplate {
		panic(fmt.Sprintf("ipfix: writing template into packet type %d", p.typ))
	}
	want := p.cur + templateSize
	p.count++
	if v4 {
		p.putUint16(uint16(PTV4))
	} else {
		p.putUint16(uint16(PTV6))
	}
	p.putUint16(fieldCount)
	if v4 {
		p.putField(fieldIPv4SrcAddr, 4)
		p.putField(fieldIPv4DstAddr, 4)
	} else {
		p.putField(fieldIPv6SrcAddr, 16)
		p.putField(fieldIPv6DstAddr, 16)
	}
	p.putField(fieldL4SrcPort, 2)
	p.putField(fieldL4DstPort, 2)
	p.putField(fieldProtocol, 1)
	p.putField(fieldTCPFlags, 1)
	p.putField(fieldICMPType, 2)
	p.putField(fieldBGPSourceASNumber, 4)
	p.putField(fieldBGPDestASNumber, 4)
	p.putField(fieldInBytes, 8)
	p.putField(fieldInPkts, 8)
	p.putField(fieldFlowStartNanosecs, 8)
	p.putField(fieldFlowEndNanosecs, 8)
	p.putField(fieldIPClassOfService, 1)
	p.putField(fieldFlowEndReason, 1)
	p.putField(fieldVLANID, 2)
	if p.cur != want {
		panic(fmt.Sprintf("ipfix: template is %d bytes, want %d", p.cur-(want-templateSize), templateSize))
	}
}

func (p *Packet) putField(id, length uint16) {
	p.putUint16(id)
	p.putUint16(length)
}

func (p *Packet) putUint16(v uint16) {
	binary.BigEndian.PutUint16(p.buf[p.cur:], v)
	p.cur += 2
}

func (p *Packet) putUint32(v uint32) {
	binary.BigEndian.PutUint32(p.buf[p.cur:], v)
	p.cur += 4
}

func (p *Packet) putUint64(v uint64) {
	binary.BigEndian.PutUint64(p.buf[p.cur:], v)
	p.cur += 8
}

func (p *Packet) putBytes(b []byte) {
	copy(p.buf[p.cur:], b)
	p.cur += len(b)
}
