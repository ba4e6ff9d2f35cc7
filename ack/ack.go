// package ack implements the acknowledge state machine (spec §4.H),
// grounded on original_source/.../core/acquittement/acquittement.py's
// AcquittementThread: a validated double-press of the ACK input that
// clears every channel's latched alarm, gated on cell stability and
// at least one active alarm.
package ack

import (
	"context"
	"time"

	"radport.dev/hwport"
)

// fsmState is the internal FSM state (spec §3: {IDLE, AWAITING_CONFIRM}).
type fsmState int

const (
	idle fsmState = iota
	awaitingConfirm
)

// AlarmSource is the subset of alarm.Bank the FSM depends on.
type AlarmSource interface {
	AnyActive() bool
	ResetAll()
}

// CellGate is the subset of passage.Service the FSM depends on.
type CellGate interface {
	AreCellsFreeAndStable(stable time.Duration) bool
}

// Reader reads the ACK digital line.
type Reader interface {
	ReadDigital(idx int) int
}

// Config mirrors acquittement.py's AcquittementConfig.
type Config struct {
	ConfirmTimeout time.Duration
	StableWindow   time.Duration
	// DisplayHold is how long a cleared status lingers before resetting
	// to idle once no alarm remains active (SPEC_FULL.md supplement #2).
	DisplayHold time.Duration
}

// DefaultConfig matches spec §4.H's defaults.
func DefaultConfig() Config {
	return Config{
		ConfirmTimeout: 15 * time.Second,
		StableWindow:   200 * time.Millisecond,
		DisplayHold:    2 * time.Second,
	}
}

// Status is the read-only view of the FSM (spec §6 ack_status).
type Status struct {
	Acked   bool
	Message string
}

// FSM owns the acknowledge state machine. Poll must be called from a
// single goroutine.
type FSM struct {
	reader Reader
	alarms AlarmSource
	cells  CellGate
	cfg    Config

	lastLevel int
	state     fsmState
	deadline  time.Time

	status        Status
	pendingClear  time.Time
	hasPendingClr bool
}

// New returns an idle FSM.
func New(reader Reader, alarms AlarmSource, cells CellGate, cfg Config) *FSM {
	return &FSM{reader: reader, alarms: alarms, cells: cells, cfg: cfg}
}

// Status returns the current ack status snapshot.
func (f *FSM) Status() Status {
	return f.status
}

// Poll reads the ACK line and advances the FSM. Call it at the
// configured poll rate (spec: 10 Hz).
func (f *FSM) Poll() {
	now := time.Now()

	hasAlarm := f.alarms.AnyActive()
	if !hasAlarm {
		f.autoReset(now)
	}

	level := f.reader.ReadDigital(hwport.LineAck)
	rising := level == 1 && f.lastLevel == 0
	f.lastLevel = level

	if f.state == awaitingConfirm {
		switch {
		case !now.Before(f.deadline):
			f.cancelConfirm(now, "timeout")
		case !f.cells.AreCellsFreeAndStable(f.cfg.StableWindow):
			f.cancelConfirm(now, "cells instable")
		}
	}

	if rising {
		f.handleRisingEdge(now, hasAlarm)
	}
}

func (f *FSM) autoReset(now time.Time) {
	f.state = idle
	if f.status.Acked || f.status.Message != "" {
		if !f.hasPendingClr {
			f.pendingClear = now.Add(f.cfg.DisplayHold)
			f.hasPendingClr = true
		}
		if !now.Before(f.pendingClear) {
			f.status = Status{}
			f.hasPendingClr = false
		}
	}
}

func (f *FSM) cancelConfirm(now time.Time, reason string) {
	f.state = idle
	f.status = Status{Message: reason}
	f.hasPendingClr = false
}

func (f *FSM) handleRisingEdge(now time.Time, hasAlarm bool) {
	if !hasAlarm {
		f.status = Status{Message: "no active alarm to acknowledge"}
		return
	}
	if !f.cells.AreCellsFreeAndStable(f.cfg.StableWindow) {
		f.status = Status{Message: "cells instable, acknowledge ignored"}
		return
	}
	switch f.state {
	case idle:
		f.state = awaitingConfirm
		f.deadline = now.Add(f.cfg.ConfirmTimeout)
		f.status = Status{Message: "first press, awaiting confirm"}
	case awaitingConfirm:
		f.alarms.ResetAll()
		f.state = idle
		f.status = Status{Acked: true, Message: "acknowledged"}
		f.hasPendingClr = false
	}
}

// Run polls the FSM every period until ctx is cancelled.
func (f *FSM) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			f.Poll()
		}
	}
}
