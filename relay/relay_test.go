package relay

import (
	"testing"

	"radport.dev/hwport"
)

type fakeWriter struct {
	writes map[int]int
}

func newFakeWriter() *fakeWriter { return &fakeWriter{writes: map[int]int{}} }

func (f *fakeWriter) WriteDigital(idx, value int) { f.writes[idx] = value }

type fakeAlarms struct{ state [12]int }

func (f *fakeAlarms) State(ch int) int { return f.state[ch-1] }

type fakeFaults struct{ state [12]int }

func (f *fakeFaults) State(ch int) int { return f.state[ch-1] }

type fakeCells struct{ s1, s2 int }

func (f *fakeCells) Get(c hwport.Cell) int {
	if c == hwport.Cell1 {
		return f.s1
	}
	return f.s2
}

func TestNewDrivesRestPosition(t *testing.T) {
	w := newFakeWriter()
	alarms := &fakeAlarms{}
	faults := &fakeFaults{}
	cells := &fakeCells{}
	New(w, alarms, faults, cells, 12)

	if w.writes[CircuitFault] != 1 {
		t.Fatalf("fault relay = %d, want energized (1) at rest", w.writes[CircuitFault])
	}
	if w.writes[CircuitAlarmN1A] != 0 {
		t.Fatalf("N1 relay = %d, want de-energized at rest", w.writes[CircuitAlarmN1A])
	}
}

func TestN1AlarmEnergizesRelays(t *testing.T) {
	w := newFakeWriter()
	alarms := &fakeAlarms{}
	faults := &fakeFaults{}
	cells := &fakeCells{}
	d := New(w, alarms, faults, cells, 12)

	alarms.state[0] = 1
	d.Poll()

	if w.writes[CircuitAlarmN1A] != 1 || w.writes[CircuitAlarmN1B] != 1 || w.writes[CircuitAlarmN1C] != 1 {
		t.Fatalf("writes = %+v, want N1 relays energized", w.writes)
	}
}

func TestN2AlsoReassertsN1Relays(t *testing.T) {
	w := newFakeWriter()
	alarms := &fakeAlarms{}
	faults := &fakeFaults{}
	cells := &fakeCells{}
	d := New(w, alarms, faults, cells, 12)

	alarms.state[0] = 2
	d.Poll()

	if w.writes[CircuitAlarmN2A] != 1 || w.writes[CircuitAlarmN2B] != 1 {
		t.Fatalf("writes = %+v, want N2 relays energized", w.writes)
	}
	if w.writes[CircuitAlarmN1A] != 1 || w.writes[CircuitAlarmN1C] != 1 {
		t.Fatalf("writes = %+v, want N1 relays re-asserted alongside N2", w.writes)
	}
}

func TestAlarmClearDeEnergizes(t *testing.T) {
	w := newFakeWriter()
	alarms := &fakeAlarms{}
	faults := &fakeFaults{}
	cells := &fakeCells{}
	d := New(w, alarms, faults, cells, 12)

	alarms.state[0] = 1
	d.Poll()
	alarms.state[0] = 0
	d.Poll()

	if w.writes[CircuitAlarmN1A] != 0 {
		t.Fatalf("N1 relay = %d, want de-energized once alarm clears", w.writes[CircuitAlarmN1A])
	}
}

func TestFaultDeEnergizesSafetyRelay(t *testing.T) {
	w := newFakeWriter()
	alarms := &fakeAlarms{}
	faults := &fakeFaults{}
	cells := &fakeCells{}
	d := New(w, alarms, faults, cells, 12)

	faults.state[2] = 1
	d.Poll()

	if w.writes[CircuitFault] != 0 {
		t.Fatalf("fault relay = %d, want de-energized on a fault", w.writes[CircuitFault])
	}
}

func TestCellOccupiedEnergizesCellRelays(t *testing.T) {
	w := newFakeWriter()
	alarms := &fakeAlarms{}
	faults := &fakeFaults{}
	cells := &fakeCells{}
	d := New(w, alarms, faults, cells, 12)

	cells.s1 = 1
	d.Poll()

	if w.writes[CircuitCellA] != 1 || w.writes[CircuitCellB] != 1 {
		t.Fatalf("writes = %+v, want cell relays energized", w.writes)
	}
}
