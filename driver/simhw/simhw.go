// package simhw implements the simulated hardware backend: an explicit
// in-memory model of cell state, the acknowledge input, and a
// per-channel pulse rate, standing in for a physical EVOK gateway.
//
// This replaces the source system's Tk-global simulator state
// (core/simulation/simulateur.py's class-level variable1/variable2/
// acqui/multiplier) with a struct owned by one goroutine, matching
// spec §9's "explicit in-memory model... wired as the Simulator
// hardware backend".
package simhw

import (
	"context"
	"sync"
	"time"

	"radport.dev/hwport"
)

const Channels = 12

// Model is the Simulated hardware backend. Relay writes are no-ops
// (spec §4.A); reads come from the fields below.
type Model struct {
	mu sync.Mutex

	cells    [2]int // index 0 -> cell 1, index 1 -> cell 2
	ack      int
	inverted map[int]bool

	rateCPS  [Channels]float64
	pulses   [Channels]uint64
	residual [Channels]float64
}

// New returns a Model with both cells free and all channels quiescent.
// inverted lists digital line indices whose polarity is inverted, the
// same per-index configuration driver/evok.New applies (spec §4.A).
func New(inverted []int) *Model {
	inv := make(map[int]bool, len(inverted))
	for _, idx := range inverted {
		inv[idx] = true
	}
	return &Model{inverted: inv}
}

// ReadDigital implements hwport.Port. Only the fixed cell and ack lines
// are meaningful; anything else reads 0.
func (m *Model) ReadDigital(idx int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v int
	switch idx {
	case hwport.LineCell1:
		v = m.cells[0]
	case hwport.LineCell2:
		v = m.cells[1]
	case hwport.LineAck:
		v = m.ack
	default:
		return 0
	}
	if m.inverted[idx] {
		v ^= 1
	}
	return v
}

// WriteDigital is a no-op: the simulator has no relay hardware to
// energise.
func (m *Model) WriteDigital(idx int, value int) {}

// ReadCell implements hwport.Port.
func (m *Model) ReadCell(c hwport.Cell) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := hwport.LineCell1
	v := m.cells[0]
	if c != hwport.Cell1 {
		idx = hwport.LineCell2
		v = m.cells[1]
	}
	if m.inverted[idx] {
		v ^= 1
	}
	return v
}

// SetCell sets the logical state of cell c (0 or 1), driving a
// passage from a test or a development console.
func (m *Model) SetCell(c hwport.Cell, v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c == hwport.Cell1 {
		m.cells[0] = v
	} else {
		m.cells[1] = v
	}
}

// PressAck sets the ack input level; the caller is responsible for
// alternating 0/1 to generate edges, as a real operator's finger does.
func (m *Model) PressAck(v int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ack = v
}

// SetRateCPS sets the simulated pulse rate for channel ch (1..12), in
// counts per second. The background ticker started by Run integrates
// this into the channel's pulse counter.
func (m *Model) SetRateCPS(ch int, cps float64) {
	if ch < 1 || ch > Channels {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateCPS[ch-1] = cps
}

// ReadPulses returns the monotonic pulse counter for channel ch,
// mirroring the edge-counting register a real GPIO ISR would maintain.
func (m *Model) ReadPulses(ch int) uint64 {
	if ch < 1 || ch > Channels {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulses[ch-1]
}

// Run integrates rate_cps*dt into each channel's pulse counter every
// tick, as the Python simulator's _inject_counts_tick did, until ctx
// is cancelled.
func (m *Model) Run(ctx context.Context, tick time.Duration) {
	t := time.NewTicker(tick)
	defer t.Stop()
	dt := tick.Seconds()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.mu.Lock()
			for i := range m.rateCPS {
				add := m.rateCPS[i]*dt + m.residual[i]
				whole := float64(uint64(add))
				m.residual[i] = add - whole
				m.pulses[i] += uint64(whole)
			}
			m.mu.Unlock()
		}
	}
}

var _ hwport.Port = (*Model)(nil)
