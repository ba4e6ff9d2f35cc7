// package cell implements the two cell watchers (spec §4.B): one
// goroutine per optical barrier, sampling the hardware port at a fixed
// rate and publishing the latest 0/1 state. Watchers neither debounce
// nor interpret; that is passage's job.
package cell

import (
	"context"
	"sync/atomic"
	"time"

	"radport.dev/hwport"
)

// DefaultPeriod is the default sampling period (spec §4.B: ~50 Hz).
const DefaultPeriod = 20 * time.Millisecond

// Watchers holds the latest published state of both cells.
type Watchers struct {
	s1 atomic.Int32
	s2 atomic.Int32
}

// New returns Watchers with both cells initialized to 0 (free).
func New() *Watchers {
	return &Watchers{}
}

// Get returns the latest published state of cell c.
func (w *Watchers) Get(c hwport.Cell) int {
	if c == hwport.Cell1 {
		return int(w.s1.Load())
	}
	return int(w.s2.Load())
}

// Run starts both cell watchers against port, sampling every period,
// until ctx is cancelled. It blocks; call it in its own goroutine.
func (w *Watchers) Run(ctx context.Context, port hwport.Port, period time.Duration) {
	done := make(chan struct{}, 2)
	go w.watch(ctx, port, hwport.Cell1, &w.s1, period, done)
	go w.watch(ctx, port, hwport.Cell2, &w.s2, period, done)
	<-done
	<-done
}

func (w *Watchers) watch(ctx context.Context, port hwport.Port, c hwport.Cell, pub *atomic.Int32, period time.Duration, done chan<- struct{}) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			done <- struct{}{}
			return
		case <-t.C:
			pub.Store(int32(port.ReadCell(c)))
		}
	}
}
