package headers

import "encoding/binary"

// The view types below are windows into a borrowed packet buffer. They copy
// nothing; accessors read big-endian fields in place.

// Ethernet is a 14-byte Ethernet II header.
type Ethernet []byte

const ethernetSize = 14

func (h Ethernet) DstMAC() []byte   { return h[0:6] }
func (h Ethernet) SrcMAC() []byte   { return h[6:12] }
func (h Ethernet) NextType() uint16 { return binary.BigEndian.Uint16(h[12:14]) }

// IPv4 is the fixed 20-byte part of an IPv4 header.
type IPv4 []byte

const ipv4MinSize = 20

func (h IPv4) IHL() int        { return int(h[0] & 0x0f) }
func (h IPv4) TOS() uint8      { return h[1] }
func (h IPv4) Protocol() uint8 { return h[9] }
func (h IPv4) SrcAddr() uint32 { return binary.BigEndian.Uint32(h[12:16]) }
func (h IPv4) DstAddr() uint32 { return binary.BigEndian.Uint32(h[16:20]) }

// IPv6 is the fixed 40-byte IPv6 header.
type IPv6 []byte

const ipv6Size = 40

// FlowWord is the first 32-bit word: version, traffic class, flow label.
func (h IPv6) FlowWord() uint32  { return binary.BigEndian.Uint32(h[0:4]) }
func (h IPv6) NextHeader() uint8 { return h[6] }
func (h IPv6) SrcIP() []byte     { return h[8:24] }
func (h IPv6) DstIP() []byte     { return h[24:40] }

// TrafficClass returns the 6-bit DSCP portion of the traffic class.
func (h IPv6) TrafficClass() uint8 { return uint8((h.FlowWord() & 0x0FC00000) >> 22) }

// IPv6Frag is an 8-byte IPv6 fragment extension header.
type IPv6Frag []byte

const ipv6FragSize = 8

func (h IPv6Frag) NextHeader() uint8   { return h[0] }
func (h IPv6Frag) OffsetFlags() uint16 { return binary.BigEndian.Uint16(h[2:4]) }

// TCP is the fixed 20-byte part of a TCP header.
type TCP []byte

const tcpSize = 20

func (h TCP) SrcPort() uint16 { return binary.BigEndian.Uint16(h[0:2]) }
func (h TCP) DstPort() uint16 { return binary.BigEndian.Uint16(h[2:4]) }
func (h TCP) Flags() uint8    { return h[13] }

// UDP is an 8-byte UDP header.
type UDP []byte

const udpSize = 8

func (h UDP) SrcPort() uint16 { return binary.BigEndian.Uint16(h[0:2]) }
func (h UDP) DstPort() uint16 { return binary.BigEndian.Uint16(h[2:4]) }

// ICMPv4 is the fixed 8-byte part of an ICMPv4 header.
type ICMPv4 []byte

const icmpv4Size = 8

func (h ICMPv4) Type() uint8 { return h[0] }
func (h ICMPv4) Code() uint8 { return h[1] }

// ICMPv6 is the fixed 8-byte part of an ICMPv6 header.
type ICMPv6 []byte

const icmpv6Size = 8

func (h ICMPv6) Type() uint8 { return h[0] }
func (h ICMPv6) Code() uint8 { return h[1] }
