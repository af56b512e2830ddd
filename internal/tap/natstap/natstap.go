// Package natstap moves raw packets over NATS: a remote probe publishes each
// captured packet as a message, and the agent side subscribes through a queue
// group so the subject fans out across its worker slices.
//
// The message payload is the raw packet; capture metadata rides in headers.
package natstap

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/google/clerk/internal/model"
	"github.com/google/clerk/internal/tap"
)

// Message headers carrying capture metadata.
const (
	HeaderNanos   = "Clerk-Nanos"
	HeaderLength  = "Clerk-Orig-Len"
	HeaderVLANTCI = "Clerk-Vlan-Tci"
)

const batchSize = 64

// Source subscribes to a packet subject through a queue group, one
// subscription per fan-out slice.
type Source struct {
	url     string
	subject string
	queue   string
	workers int
}

func NewSource(url, subject, queue string, workers int) *Source {
	if queue == "" {
		queue = "clerk"
	}
	return &Source{url: url, subject: subject, queue: queue, workers: workers}
}

func (s *Source) FanoutSize() int { return s.workers }

func (s *Source) Open(index int) (tap.Conn, error) {
	nc, err := nats.Connect(s.url)
	if err != nil {
		return nil, fmt.Errorf("natstap: connect %s: %w", s.url, err)
	}
	sub, err := nc.QueueSubscribeSync(s.subject, s.queue)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("natstap: subscribe %s: %w", s.subject, err)
	}
	return &conn{nc: nc, sub: sub}, nil
}

func (s *Source) Close() error { return nil }

type conn struct {
	nc  *nats.Conn
	sub *nats.Subscription
}

func (c *conn) GetBlock(timeout time.Duration) (*tap.Block, error) {
	block := &tap.Block{Packets: make([]model.Packet, 0, batchSize)}
	wait := timeout
	for len(block.Packets) < batchSize {
		msg, err := c.sub.NextMsg(wait)
		if err == nats.ErrTimeout {
			break
		}
		if err != nil {
			return nil, err
		}
		block.Packets = append(block.Packets, decode(msg))
		// Only the first packet is worth a long wait; afterwards just drain
		// what is already queued.
		wait = time.Millisecond
	}
	if len(block.Packets) == 0 {
		return nil, nil
	}
	return block, nil
}

func (c *conn) Close() error {
	if err := c.sub.Unsubscribe(); err != nil {
		return err
	}
	c.nc.Close()
	return nil
}

func decode(msg *nats.Msg) model.Packet {
	pkt := model.Packet{Data: msg.Data, Length: len(msg.Data)}
	if v := msg.Header.Get(HeaderNanos); v != "" {
		if nanos, err := strconv.ParseInt(v, 10, 64); err == nil {
			pkt.Nanos = nanos
		}
	}
	if v := msg.Header.Get(HeaderLength); v != "" {
		if length, err := strconv.Atoi(v); err == nil {
			pkt.Length = length
		}
	}
	if v := msg.Header.Get(HeaderVLANTCI); v != "" {
		if tci, err := strconv.ParseUint(v, 10, 16); err == nil {
			pkt.VLANValid = true
			pkt.VLANTCI = uint16(tci)
		}
	}
	return pkt
}

// Publisher is the probe-side counterpart: it frames captured packets into
// messages the Source understands.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

func NewPublisher(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("natstap: connect %s: %w", url, err)
	}
	return &Publisher{nc: nc, subject: subject}, nil
}

// Publish sends one captured packet.
func (p *Publisher) Publish(pkt *model.Packet) error {
	msg := nats.NewMsg(p.subject)
	msg.Data = pkt.Data
	msg.Header.Set(HeaderNanos, strconv.FormatInt(pkt.Nanos, 10))
	msg.Header.Set(HeaderLength, strconv.Itoa(pkt.Length))
	if pkt.VLANValid {
		msg.Header.Set(HeaderVLANTCI, strconv.FormatUint(uint64(pkt.VLANTCI), 10))
	}
	return p.nc.PublishMsg(msg)
}

// Close drains and closes the publisher connection.
func (p *Publisher) Close() {
	p.nc.Drain()
}
