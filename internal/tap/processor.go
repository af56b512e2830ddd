package tap

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/metrics"
	"github.com/google/clerk/internal/model"
)

// blockTimeout bounds how long a worker waits for a tap block before
// re-checking for termination.
const blockTimeout = time.Second

// Processor owns one worker per tap fan-out slice and gathers their states.
//
// Usage contract: StartWorkers exactly once, then any number of
// Gather(false), then Gather(true) exactly once before the processor is
// discarded.
type Processor struct {
	source  Source
	factory model.StateFactory
	workers []*worker
	last    Notification
}

func NewProcessor(source Source, factory model.StateFactory) *Processor {
	return &Processor{source: source, factory: factory}
}

// StartWorkers connects to every fan-out slice of the source and starts its
// worker goroutine.
func (p *Processor) StartWorkers() error {
	if len(p.workers) != 0 {
		panic("tap: StartWorkers called twice")
	}
	n := p.source.FanoutSize()
	if n <= 0 {
		return fmt.Errorf("tap: source reports fan-out size %d", n)
	}
	for i := 0; i < n; i++ {
		log.Infof("Starting tap worker %d", i)
		conn, err := p.source.Open(i)
		if err != nil {
			return fmt.Errorf("tap: open slice %d: %w", i, err)
		}
		w := &worker{
			index: i,
			conn:  conn,
			state: p.factory.New(nil),
			done:  make(chan struct{}),
		}
		p.workers = append(p.workers, w)
		go w.run(&p.last)
	}
	return nil
}

// Gather swaps every worker's state for a fresh one and returns the old
// states. With last set, it first stops and joins all workers; that final
// gather must happen exactly once.
func (p *Processor) Gather(last bool) []model.State {
	if len(p.workers) == 0 {
		panic("tap: Gather before StartWorkers")
	}
	if p.last.HasBeenNotified() {
		panic("tap: Gather after final gather")
	}
	if last {
		log.Info("Final gather, stopping tap workers")
		p.last.Notify()
		for _, w := range p.workers {
			<-w.done
		}
	}
	log.Debugf("Gathering state from %d workers", len(p.workers))
	states := make([]model.State, len(p.workers))
	for i, w := range p.workers {
		states[i] = w.swapState(p.factory)
	}
	return states
}

// worker meters a single tap slice. Its mutex guards the state; the critical
// sections are per-packet Process calls and the coordinator's swap.
type worker struct {
	index int
	conn  Conn
	done  chan struct{}

	mu    sync.Mutex
	state model.State
}

func (w *worker) run(last *Notification) {
	defer close(w.done)
	label := strconv.Itoa(w.index)
	for !last.HasBeenNotified() {
		block, err := w.conn.GetBlock(blockTimeout)
		if err != nil {
			log.Fatalf("Tap worker %d: get block: %v", w.index, err)
		}
		if block == nil {
			continue
		}
		metrics.BlocksReceived.WithLabelValues(label).Inc()
		for i := range block.Packets {
			w.mu.Lock()
			w.state.Process(&block.Packets[i])
			w.mu.Unlock()
		}
		metrics.PacketsProcessed.WithLabelValues(label).Add(float64(len(block.Packets)))
		if block.Return != nil {
			block.Return()
		}
	}
	if err := w.conn.Close(); err != nil {
		log.Errorf("Tap worker %d: close: %v", w.index, err)
	}
}

// swapState atomically replaces the worker's state with a fresh one built
// from it, returning the old state to the caller, which owns it thereafter.
func (w *worker) swapState(factory model.StateFactory) model.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	old := w.state
	w.state = factory.New(old)
	return old
}
