// Package pcapf replays a pcap capture file as a single-slice tap, for
// debugging and offline metering.
package pcapf

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/google/clerk/internal/model"
	"github.com/google/clerk/internal/tap"
)

const batchSize = 256

// Source replays one pcap file. Fan-out size is always 1.
type Source struct {
	path string
}

func NewSource(path string) *Source {
	return &Source{path: path}
}

func (s *Source) FanoutSize() int { return 1 }

func (s *Source) Open(index int) (tap.Conn, error) {
	if index != 0 {
		return nil, fmt.Errorf("pcapf: slice %d out of range", index)
	}
	handle, err := pcap.OpenOffline(s.path)
	if err != nil {
		return nil, fmt.Errorf("pcapf: open %s: %w", s.path, err)
	}
	return &conn{handle: handle}, nil
}

func (s *Source) Close() error { return nil }

type conn struct {
	handle    *pcap.Handle
	exhausted bool
}

// GetBlock returns the next batch of packets. Once the file is exhausted it
// behaves like an idle live tap: it waits out the timeout and reports no
// block, so the worker keeps polling until the agent stops it.
func (c *conn) GetBlock(timeout time.Duration) (*tap.Block, error) {
	if c.exhausted {
		time.Sleep(timeout)
		return nil, nil
	}
	block := &tap.Block{Packets: make([]model.Packet, 0, batchSize)}
	for len(block.Packets) < batchSize {
		data, ci, err := c.handle.ReadPacketData()
		if errors.Is(err, io.EOF) || errors.Is(err, pcap.NextErrorNoMorePackets) {
			c.exhausted = true
			break
		}
		if err != nil {
			return nil, err
		}
		block.Packets = append(block.Packets, model.Packet{
			Data:   data,
			Length: ci.Length,
			Nanos:  ci.Timestamp.UnixNano(),
		})
	}
	if len(block.Packets) == 0 {
		return nil, nil
	}
	return block, nil
}

func (c *conn) Close() error {
	c.handle.Close()
	return nil
}
