package speed

import (
	"testing"
	"time"

	"radport.dev/hwport"
)

type fakeCells struct{ s1, s2 int }

func (f *fakeCells) Get(c hwport.Cell) int {
	if c == hwport.Cell1 {
		return f.s1
	}
	return f.s2
}

type fakeAlarms struct{ n2 bool }

func (f *fakeAlarms) AnyN2() bool { return f.n2 }

func testCfg() Config {
	return Config{
		DistanceCellules:  0.75,
		ReboundWindow:     30 * time.Millisecond,
		SingleEdgeWindow:  5 * time.Second,
		FaultThresholdKMH: 10,
	}
}

func TestModeSansCellulesReportsNA(t *testing.T) {
	cells := &fakeCells{}
	e := New(cells, &fakeAlarms{}, Config{ModeSansCellules: true})
	e.Poll()
	r := e.Reading()
	if r.Value != ValueNA || r.Direction != DirUnknown {
		t.Fatalf("reading = %+v, want NA/unknown", r)
	}
}

func TestDirectionAtoB(t *testing.T) {
	cells := &fakeCells{}
	alarms := &fakeAlarms{}
	cfg := testCfg()
	cfg.DistanceCellules = 0.05 // 0.05 m over >= 40 ms is at most 4.5 km/h
	e := New(cells, alarms, cfg)

	cells.s1 = 1
	e.Poll()
	time.Sleep(40 * time.Millisecond)
	cells.s2 = 1
	e.Poll()

	r := e.Reading()
	if r.Direction != DirAtoB {
		t.Fatalf("direction = %q, want %q", r.Direction, DirAtoB)
	}
	if !r.IsNumeric {
		t.Fatalf("reading = %+v, want a numeric speed", r)
	}
}

func TestReboundDiscarded(t *testing.T) {
	cells := &fakeCells{}
	alarms := &fakeAlarms{}
	e := New(cells, alarms, testCfg())

	cells.s1 = 1
	e.Poll()
	cells.s2 = 1
	e.Poll() // well under the 30ms rebound window

	r := e.Reading()
	if r.Value != ValueNA {
		t.Fatalf("reading = %+v, want still NA after rebound discard", r)
	}
}

func TestN2DiscardsMeasurement(t *testing.T) {
	cells := &fakeCells{}
	alarms := &fakeAlarms{n2: true}
	e := New(cells, alarms, testCfg())

	cells.s1 = 1
	e.Poll()
	time.Sleep(40 * time.Millisecond)
	cells.s2 = 1
	e.Poll()

	r := e.Reading()
	if r.Value != ValueNA {
		t.Fatalf("reading = %+v, want NA: N2 alarm must discard the measurement", r)
	}
}

func TestSingleEdgeTimesOutToNoMeasure(t *testing.T) {
	cells := &fakeCells{}
	alarms := &fakeAlarms{}
	e := New(cells, alarms, testCfg())
	e.cfg.SingleEdgeWindow = 5 * time.Millisecond

	cells.s1 = 1
	e.Poll()
	time.Sleep(10 * time.Millisecond)
	e.Poll()

	r := e.Reading()
	if r.Value != ValueNoMeasure {
		t.Fatalf("reading = %+v, want NO_MEASURE after single-edge timeout", r)
	}
}

func TestFastPassageReportsFault(t *testing.T) {
	cells := &fakeCells{}
	alarms := &fakeAlarms{}
	cfg := testCfg()
	cfg.DistanceCellules = 100 // guarantees an absurd km/h over a short delta
	e := New(cells, alarms, cfg)

	cells.s1 = 1
	e.Poll()
	time.Sleep(40 * time.Millisecond)
	cells.s2 = 1
	e.Poll()

	r := e.Reading()
	if r.Value != ValueFault {
		t.Fatalf("reading = %+v, want FAULT for an implausible speed", r)
	}
}
