//go:build linux

// Package afpkt taps live traffic through AF_PACKET TPacket v3 ring buffers,
// with PACKET_FANOUT spreading flows across the worker slices.
package afpkt

import (
	"fmt"
	"time"

	"github.com/google/gopacket/afpacket"

	"github.com/google/clerk/internal/model"
	"github.com/google/clerk/internal/tap"
)

// Source opens one TPacket v3 handle per fan-out slice on a single
// interface. All handles join the same fan-out group, so each slice sees a
// disjoint, flow-consistent share of the traffic.
type Source struct {
	iface     string
	fanoutID  uint16
	workers   int
	batchSize int
}

func NewSource(iface string, workers int, fanoutID uint16, batchSize int) *Source {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Source{iface: iface, fanoutID: fanoutID, workers: workers, batchSize: batchSize}
}

const defaultBatchSize = 256

func (s *Source) FanoutSize() int { return s.workers }

func (s *Source) Open(index int) (tap.Conn, error) {
	h, err := afpacket.NewTPacket(
		afpacket.OptInterface(s.iface),
		afpacket.TPacketVersion3,
		afpacket.OptPollTimeout(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("afpkt: open %s: %w", s.iface, err)
	}
	if err := h.SetFanout(afpacket.FanoutHashWithDefrag, s.fanoutID); err != nil {
		h.Close()
		return nil, fmt.Errorf("afpkt: fanout group %d: %w", s.fanoutID, err)
	}
	return &conn{h: h, batchSize: s.batchSize}, nil
}

func (s *Source) Close() error { return nil }

type conn struct {
	h         *afpacket.TPacket
	batchSize int
}

// GetBlock drains up to batchSize packets from the ring. The poll timeout on
// the handle bounds the wait for the first packet.
func (c *conn) GetBlock(timeout time.Duration) (*tap.Block, error) {
	block := &tap.Block{Packets: make([]model.Packet, 0, c.batchSize)}
	for len(block.Packets) < c.batchSize {
		data, ci, err := c.h.ReadPacketData()
		if err == afpacket.ErrTimeout {
			break
		}
		if err != nil {
			return nil, err
		}
		pkt := model.Packet{
			Data:   data,
			Length: ci.Length,
			Nanos:  ci.Timestamp.UnixNano(),
		}
		for _, ancillary := range ci.AncillaryData {
			if vlan, ok := ancillary.(afpacket.AncillaryVLAN); ok {
				pkt.VLANValid = true
				pkt.VLANTCI = uint16(vlan.VLAN)
			}
		}
		block.Packets = append(block.Packets, pkt)
	}
	if len(block.Packets) == 0 {
		return nil, nil
	}
	return block, nil
}

func (c *conn) Close() error {
	c.h.Close()
	return nil
}
