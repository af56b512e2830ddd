package model

import "github.com/google/clerk/internal/flow"

// Packet is a single captured packet as delivered by a tap. Data is borrowed
// from the tap and is only valid until the enclosing block is returned.
type Packet struct {
	// Data holds the wire bytes, possibly truncated to the tap's snaplen.
	Data []byte
	// Length is the original length of the packet on the wire.
	Length int
	// Nanos is the capture timestamp in nanoseconds since the epoch.
	Nanos int64
	// VLANValid reports whether the tap delivered out-of-band VLAN metadata.
	VLANValid bool
	// VLANTCI is the tag control information for the outermost VLAN tag.
	VLANTCI uint16
}

// State gathers state from a stream of packets. A state is owned by exactly
// one goroutine at a time: its worker while processing, or the coordinator
// after a swap. States are handled by pointer only and never copied.
type State interface {
	// Process updates the state with a single packet.
	Process(p *Packet)

	// Merge folds another state of the same concrete type into this one.
	Merge(other State)
}

// StateFactory builds fresh states. When old is non-nil, entries that are
// still live may be carried over into the new state.
type StateFactory interface {
	New(old State) State
}

// Exporter sends a finished flow table to a collector or store.
type Exporter interface {
	Send(flows flow.Table) error
}
