// Package flow holds the normalized flow key, per-flow counters, and the
// table they aggregate into.
package flow

import (
	"encoding/binary"

	"github.com/go-faster/city"
)

// Network values for Key.Network.
const (
	NetworkUnknown uint8 = 0
	NetworkIPv4    uint8 = 4
	NetworkIPv6    uint8 = 6
)

// Key identifies a flow. All fields are part of the identity; Go struct
// equality over the logical fields is the equality relation, so there is no
// dependency on memory layout or padding.
//
// IPv4 addresses are stored IPv4-mapped in the low 4 bytes of the 16-byte
// address fields, with the high 12 bytes zero.
type Key struct {
	SrcIP    [16]byte
	DstIP    [16]byte
	SrcPort  uint16
	DstPort  uint16
	VLAN     uint16
	ICMPType uint8
	ICMPCode uint8
	Network  uint8
	Proto    uint8
	TOS      uint8 // DSCP / IPv6 traffic class, right-aligned 6 bits
}

// keyWireSize is the packed byte image of a Key: 16+16 addresses, 3 uint16s,
// 5 uint8s.
const keyWireSize = 16 + 16 + 2 + 2 + 2 + 1 + 1 + 1 + 1 + 1

// SetNetwork records the address family. Switching from v6 to v4 clears both
// address fields first, so a key is identity-stable regardless of the order
// in which its fields were written.
func (k *Key) SetNetwork(net uint8) {
	if k.Network == NetworkIPv6 && net == NetworkIPv4 {
		k.SrcIP = [16]byte{}
		k.DstIP = [16]byte{}
	}
	k.Network = net
}

// SetSrcIP4 stores an IPv4 source address, given in host order.
func (k *Key) SetSrcIP4(ip4 uint32) {
	k.SetNetwork(NetworkIPv4)
	binary.BigEndian.PutUint32(k.SrcIP[12:16], ip4)
}

// SetDstIP4 stores an IPv4 destination address, given in host order.
func (k *Key) SetDstIP4(ip4 uint32) {
	k.SetNetwork(NetworkIPv4)
	binary.BigEndian.PutUint32(k.DstIP[12:16], ip4)
}

// SrcIP4 returns the IPv4-mapped source address in host order.
func (k *Key) SrcIP4() uint32 {
	return binary.BigEndian.Uint32(k.SrcIP[12:16])
}

// DstIP4 returns the IPv4-mapped destination address in host order.
func (k *Key) DstIP4() uint32 {
	return binary.BigEndian.Uint32(k.DstIP[12:16])
}

// SetSrcIP6 stores a 16-byte IPv6 source address.
func (k *Key) SetSrcIP6(ip6 []byte) {
	k.SetNetwork(NetworkIPv6)
	copy(k.SrcIP[:], ip6)
}

// SetDstIP6 stores a 16-byte IPv6 destination address.
func (k *Key) SetDstIP6(ip6 []byte) {
	k.SetNetwork(NetworkIPv6)
	copy(k.DstIP[:], ip6)
}

// AppendBytes appends the packed byte image of the key to dst. The image
// covers every identity field, in declaration order.
func (k *Key) AppendBytes(dst []byte) []byte {
	dst = append(dst, k.SrcIP[:]...)
	dst = append(dst, k.DstIP[:]...)
	dst = binary.BigEndian.AppendUint16(dst, k.SrcPort)
	dst = binary.BigEndian.AppendUint16(dst, k.DstPort)
	dst = binary.BigEndian.AppendUint16(dst, k.VLAN)
	return append(dst, k.ICMPType, k.ICMPCode, k.Network, k.Proto, k.TOS)
}

// Hash returns a 64-bit CityHash over the packed byte image. Two keys are
// equal iff their images are equal, so the hash is consistent with ==.
func (k *Key) Hash() uint64 {
	var buf [keyWireSize]byte
	return city.CH64(k.AppendBytes(buf[:0]))
}
