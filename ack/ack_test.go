package ack

import (
	"testing"
	"time"
)

type fakeReader struct{ level int }

func (f *fakeReader) ReadDigital(idx int) int { return f.level }

type fakeAlarms struct {
	active    bool
	resetCall int
}

func (f *fakeAlarms) AnyActive() bool { return f.active }
func (f *fakeAlarms) ResetAll()       { f.resetCall++; f.active = false }

type fakeCells struct{ stable bool }

func (f *fakeCells) AreCellsFreeAndStable(stable time.Duration) bool { return f.stable }

func testCfg() Config {
	return Config{
		ConfirmTimeout: 50 * time.Millisecond,
		StableWindow:   0,
		DisplayHold:    10 * time.Millisecond,
	}
}

func press(r *fakeReader, f *FSM) {
	r.level = 1
	f.Poll()
	r.level = 0
	f.Poll()
}

// TestAcknowledgeDoublePress covers spec seed scenario S5: a valid
// double press with active alarms and stable cells clears every
// channel.
func TestAcknowledgeDoublePress(t *testing.T) {
	r := &fakeReader{}
	alarms := &fakeAlarms{active: true}
	cells := &fakeCells{stable: true}
	f := New(r, alarms, cells, testCfg())

	press(r, f)
	if f.state != awaitingConfirm {
		t.Fatalf("state = %v, want awaitingConfirm after first press", f.state)
	}

	press(r, f)
	if alarms.resetCall != 1 {
		t.Fatalf("resetCall = %d, want 1 after confirming press", alarms.resetCall)
	}
	if !f.Status().Acked {
		t.Fatalf("status.Acked = false, want true")
	}
}

// TestAckRejectedWhenCellsInstable covers spec seed scenario S6: a
// press while cells are not free-and-stable is ignored entirely.
func TestAckRejectedWhenCellsInstable(t *testing.T) {
	r := &fakeReader{}
	alarms := &fakeAlarms{active: true}
	cells := &fakeCells{stable: false}
	f := New(r, alarms, cells, testCfg())

	press(r, f)
	if f.state != idle {
		t.Fatalf("state = %v, want idle when cells instable", f.state)
	}
	if alarms.resetCall != 0 {
		t.Fatalf("resetCall = %d, want 0", alarms.resetCall)
	}
}

func TestAckIgnoredWithoutActiveAlarm(t *testing.T) {
	r := &fakeReader{}
	alarms := &fakeAlarms{active: false}
	cells := &fakeCells{stable: true}
	f := New(r, alarms, cells, testCfg())

	press(r, f)
	if f.state != idle {
		t.Fatalf("state = %v, want idle with no active alarm", f.state)
	}
}

func TestConfirmTimeoutCancelsAwaiting(t *testing.T) {
	r := &fakeReader{}
	alarms := &fakeAlarms{active: true}
	cells := &fakeCells{stable: true}
	cfg := testCfg()
	cfg.ConfirmTimeout = 1 * time.Millisecond
	f := New(r, alarms, cells, cfg)

	press(r, f)
	if f.state != awaitingConfirm {
		t.Fatalf("setup: state = %v, want awaitingConfirm", f.state)
	}

	time.Sleep(5 * time.Millisecond)
	f.Poll()
	if f.state != idle {
		t.Fatalf("state = %v, want idle after confirm timeout", f.state)
	}
	if alarms.resetCall != 0 {
		t.Fatalf("resetCall = %d, want 0: timeout must not clear alarms", alarms.resetCall)
	}
}

func TestConfirmCancelledByCellInstability(t *testing.T) {
	r := &fakeReader{}
	alarms := &fakeAlarms{active: true}
	cells := &fakeCells{stable: true}
	f := New(r, alarms, cells, testCfg())

	press(r, f)
	if f.state != awaitingConfirm {
		t.Fatalf("setup: state = %v, want awaitingConfirm", f.state)
	}

	cells.stable = false
	f.Poll()
	if f.state != idle {
		t.Fatalf("state = %v, want idle once cells go instable mid-confirm", f.state)
	}
}

func TestStatusClearsAfterDisplayHold(t *testing.T) {
	r := &fakeReader{}
	alarms := &fakeAlarms{active: true}
	cells := &fakeCells{stable: true}
	f := New(r, alarms, cells, testCfg())

	press(r, f)
	press(r, f)
	if !f.Status().Acked {
		t.Fatalf("setup: want Acked after confirm")
	}

	time.Sleep(20 * time.Millisecond)
	f.Poll()
	if f.Status() != (Status{}) {
		t.Fatalf("status = %+v, want cleared after display hold", f.Status())
	}
}
