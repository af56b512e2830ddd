// Package tap defines the packet-tap contract and the worker pool that
// meters each fan-out slice of a tap on its own goroutine.
package tap

import (
	"sync"
	"time"

	"github.com/google/clerk/internal/model"
)

// Block is a batch of captured packets delivered as one unit. Packet data is
// borrowed from the tap until Return is called.
type Block struct {
	Packets []model.Packet
	// Return hands the block back to the tap; nil when the tap does not
	// recycle blocks.
	Return func()
}

// Conn is one fan-out slice of a tap.
type Conn interface {
	// GetBlock blocks up to timeout for the next batch of packets. A nil
	// block with a nil error means the timeout expired. Errors are
	// unrecoverable.
	GetBlock(timeout time.Duration) (*Block, error)
	Close() error
}

// Source is a packet tap with load-balanced fan-out: each slice sees a
// disjoint packet stream.
type Source interface {
	// FanoutSize reports the number of slices.
	FanoutSize() int
	// Open connects to one slice, identified by its fan-out index.
	Open(index int) (Conn, error)
	Close() error
}

// Notification is a one-shot level-triggered signal, readable from many
// goroutines.
type Notification struct {
	mu   sync.Mutex
	done bool
}

func (n *Notification) Notify() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.done = true
}

func (n *Notification) HasBeenNotified() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}
