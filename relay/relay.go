// package relay drives the output relays from alarm, fault, and cell
// state, grounded on original_source/.../hardware/relais.py's Relais:
// edge-triggered writes (only on state transitions, not every tick),
// with the N2 branch redundantly re-asserting the N1 relays exactly as
// the original does (see DESIGN.md's Open Question decision).
package relay

import (
	"context"
	"time"

	"radport.dev/hwport"
)

// Circuit numbers, matching relais.py's wiring.
const (
	CircuitFault    = 1
	CircuitCellA    = 2
	CircuitAlarmN1A = 3
	CircuitAlarmN2A = 4
	CircuitAlarmN1B = 5
	CircuitAlarmN1C = 6
	CircuitAlarmN2B = 7
	CircuitCellB    = 8
)

// Writer is the subset of hwport.Port relay depends on.
type Writer interface {
	WriteDigital(idx int, value int)
}

// AlarmSource reports each channel's current alarm state (alarm.OK/N1/N2).
type AlarmSource interface {
	State(ch int) int
}

// FaultSource reports each channel's current fault state (fault.OK/LOW/HIGH).
type FaultSource interface {
	State(ch int) int
}

// CellSource reports whether either cell is occupied.
type CellSource interface {
	Get(c hwport.Cell) int
}

// Driver owns the relay edge-state and writes only on transitions.
type Driver struct {
	w        Writer
	alarms   AlarmSource
	faults   FaultSource
	cells    CellSource
	channels int

	n1Latched   bool
	n2Latched   bool
	faultLatch  bool
	cellLatched bool
}

// New returns a Driver and drives the relays to their rest positions
// (fault relay energized, all others de-energized), matching
// relais.py's constructor.
func New(w Writer, alarms AlarmSource, faults FaultSource, cells CellSource, channels int) *Driver {
	d := &Driver{w: w, alarms: alarms, faults: faults, cells: cells, channels: channels}
	w.WriteDigital(CircuitAlarmN1A, 0)
	w.WriteDigital(CircuitAlarmN2A, 0)
	w.WriteDigital(CircuitAlarmN1C, 0)
	w.WriteDigital(CircuitFault, 1)
	w.WriteDigital(CircuitAlarmN1B, 0)
	w.WriteDigital(CircuitAlarmN2B, 0)
	w.WriteDigital(CircuitCellA, 0)
	w.WriteDigital(CircuitCellB, 0)
	return d
}

func (d *Driver) anyAlarmAtLeast(level int) bool {
	for ch := 1; ch <= d.channels; ch++ {
		if d.alarms.State(ch) >= level {
			return true
		}
	}
	return false
}

func (d *Driver) anyFault() bool {
	for ch := 1; ch <= d.channels; ch++ {
		if d.faults.State(ch) != 0 {
			return true
		}
	}
	return false
}

func (d *Driver) anyCellOccupied() bool {
	return d.cells.Get(hwport.Cell1) == 1 || d.cells.Get(hwport.Cell2) == 1
}

// Poll samples alarm/fault/cell state and writes relays on transition
// only, matching relais.py's flag-guarded sends.
func (d *Driver) Poll() {
	anyN1 := d.anyAlarmAtLeast(1)
	anyN2 := d.anyAlarmAtLeast(2)

	if anyN1 && !d.n1Latched {
		d.w.WriteDigital(CircuitAlarmN1A, 1)
		d.w.WriteDigital(CircuitAlarmN1C, 1)
		d.w.WriteDigital(CircuitAlarmN1B, 1)
		d.n1Latched = true
	} else if !anyN1 && (d.n1Latched || d.n2Latched) {
		d.w.WriteDigital(CircuitAlarmN1A, 0)
		d.w.WriteDigital(CircuitAlarmN1C, 0)
		d.w.WriteDigital(CircuitAlarmN1B, 0)
		d.n1Latched = false
	}

	if anyN2 && !d.n2Latched {
		// Re-asserts the N1 relays, matching the original's redundant
		// writes.
		d.w.WriteDigital(CircuitAlarmN2A, 1)
		d.w.WriteDigital(CircuitAlarmN2B, 1)
		d.w.WriteDigital(CircuitAlarmN1A, 1)
		d.w.WriteDigital(CircuitAlarmN1C, 1)
		d.w.WriteDigital(CircuitAlarmN1B, 1)
		d.n1Latched = true
		d.n2Latched = true
	} else if !anyN2 && d.n2Latched {
		// The N1 relays are released by the any_n1 branch above.
		d.w.WriteDigital(CircuitAlarmN2A, 0)
		d.w.WriteDigital(CircuitAlarmN2B, 0)
		d.n2Latched = false
	}

	anyFault := d.anyFault()
	if anyFault && !d.faultLatch {
		// Safety-positive: de-energized signals a fault.
		d.w.WriteDigital(CircuitFault, 0)
		d.faultLatch = true
	} else if !anyFault && d.faultLatch {
		d.w.WriteDigital(CircuitFault, 1)
		d.faultLatch = false
	}

	occupied := d.anyCellOccupied()
	if occupied && !d.cellLatched {
		d.w.WriteDigital(CircuitCellA, 1)
		d.w.WriteDigital(CircuitCellB, 1)
		d.cellLatched = true
	} else if !occupied && d.cellLatched {
		d.w.WriteDigital(CircuitCellA, 0)
		d.w.WriteDigital(CircuitCellB, 0)
		d.cellLatched = false
	}
}

// Run polls the driver every period until ctx is cancelled.
func (d *Driver) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Poll()
		}
	}
}
