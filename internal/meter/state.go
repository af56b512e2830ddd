// Package meter turns packets into flow-table state, one state per tap
// worker, and carries still-active flows across export cycles.
package meter

import (
	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/flow"
	"github.com/google/clerk/internal/headers"
	"github.com/google/clerk/internal/model"
)

// State accumulates a private flow table from a stream of packets. A state
// must only ever be handled by pointer; the worker owning it serializes all
// access under its own lock.
type State struct {
	flows flow.Table
	hdrs  headers.Headers
}

// NewState builds a fresh state. If old is non-nil, its entries are carried
// over: entries whose end reason at cutoffNS is still "active timeout" are
// retained with their byte/packet/flag counters zeroed, so the next cycle
// reports only new activity while first/last timestamps stay comparable
// across cycles. All other entries are dropped.
func NewState(old *State, cutoffNS uint64) *State {
	s := &State{}
	if old == nil {
		s.flows = make(flow.Table)
		return s
	}
	// Size to the previous table so the retained set gets a chance to occupy
	// fewer buckets when most flows ended.
	s.flows = make(flow.Table, len(old.flows))
	for key, stats := range old.flows {
		if stats.Finished(cutoffNS) != flow.EndActiveTimeout {
			continue
		}
		stats.Bytes = 0
		stats.Packets = 0
		stats.TCPFlags = 0
		s.flows[key] = stats
	}
	log.Debugf("Retained %d of %d flows from previous state", len(s.flows), len(old.flows))
	return s
}

// Process implements model.State by updating the flow table with one packet.
func (s *State) Process(p *model.Packet) {
	var key flow.Key
	stats := flow.NewStats(uint64(p.Length), 1, uint64(p.Nanos))

	// Layer 2-ish: VLAN comes from tap metadata, not from the L2 parse.
	if p.VLANValid {
		key.VLAN = p.VLANTCI
	}

	h := &s.hdrs
	h.Parse(p.Data)

	// Layer 3
	if h.IP4 != nil {
		key.SetSrcIP4(h.IP4.SrcAddr())
		key.SetDstIP4(h.IP4.DstAddr())
		key.Proto = h.IP4.Protocol()
		key.TOS = h.IP4.TOS() >> 2
	} else if h.IP6 != nil {
		key.SetSrcIP6(h.IP6.SrcIP())
		key.SetDstIP6(h.IP6.DstIP())
		key.Proto = h.IP6.NextHeader()
		key.TOS = h.IP6.TrafficClass()
	}

	// Layer 4
	if h.TCP != nil {
		key.SrcPort = h.TCP.SrcPort()
		key.DstPort = h.TCP.DstPort()
		stats.TCPFlags = h.TCP.Flags()
	} else if h.UDP != nil {
		key.SrcPort = h.UDP.SrcPort()
		key.DstPort = h.UDP.DstPort()
	} else if h.ICMP4 != nil {
		key.ICMPType = h.ICMP4.Type()
		key.ICMPCode = h.ICMP4.Code()
	} else if h.ICMP6 != nil {
		key.ICMPType = h.ICMP6.Type()
		key.ICMPCode = h.ICMP6.Code()
	}

	flow.AddToTable(s.flows, key, stats)
}

// Merge implements model.State by combining another meter state's table into
// this one.
func (s *State) Merge(other model.State) {
	o := other.(*State)
	log.Debugf("Adding %d flows into %d", len(o.flows), len(s.flows))
	flow.CombineTable(s.flows, o.flows)
}

// Table exposes the accumulated flows. The caller must own the state.
func (s *State) Table() flow.Table { return s.flows }
