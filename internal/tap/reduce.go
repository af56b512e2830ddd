package tap

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/google/clerk/internal/model"
)

// Reduce combines gathered states into one by repeatedly merging the second
// half of the slice into the first half in parallel, halving the count each
// pass. Merging is commutative and associative, so the result is independent
// of scheduling.
func Reduce(states []model.State) model.State {
	for len(states) > 1 {
		// New size is half the old, rounded up.
		half := len(states)/2 + len(states)%2
		log.Debugf("Combining %d states into %d", len(states), half)
		var wg sync.WaitGroup
		for i := 0; i+half < len(states); i++ {
			wg.Add(1)
			go func(dst, src model.State) {
				defer wg.Done()
				dst.Merge(src)
			}(states[i], states[i+half])
		}
		wg.Wait()
		states = states[:half]
	}
	return states[0]
}
