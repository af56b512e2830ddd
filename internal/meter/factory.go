package meter

import (
	"sync/atomic"

	"github.com/google/clerk/internal/flow"
	"github.com/google/clerk/internal/model"
)

// Factory builds meter states and owns the export-cycle cutoff used both for
// carrying flows across rotations and for classifying end reasons at export.
type Factory struct {
	cutoffNS atomic.Uint64
	forced   atomic.Bool
}

// New implements model.StateFactory.
func (f *Factory) New(old model.State) model.State {
	var prev *State
	if old != nil {
		prev = old.(*State)
	}
	return NewState(prev, f.CutoffNanos())
}

// SetCutoffNanos records the idle cutoff for the current cycle.
func (f *Factory) SetCutoffNanos(ns uint64) { f.cutoffNS.Store(ns) }

// CutoffNanos returns the idle cutoff for the current cycle.
func (f *Factory) CutoffNanos() uint64 { return f.cutoffNS.Load() }

// SetForcedEnd makes EndReason report still-active flows as forcibly ended.
// Set before the final export at shutdown.
func (f *Factory) SetForcedEnd(forced bool) { f.forced.Store(forced) }

// EndReason classifies a flow's end reason under the current cutoff.
func (f *Factory) EndReason(s *flow.Stats) uint8 {
	reason := s.Finished(f.CutoffNanos())
	if reason == flow.EndActiveTimeout && f.forced.Load() {
		return flow.EndForced
	}
	return reason
}
