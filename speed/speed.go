// package speed estimates passage speed and direction from the two
// cell edge timestamps, grounded on
// original_source/.../hardware/vitesse_chargement.py's ListWatcher.
package speed

import (
	"context"
	"math"
	"time"

	"radport.dev/hwport"
)

// Direction strings, matching spec §4.I's vocabulary.
const (
	DirAtoB    = "1->2"
	DirBtoA    = "2->1"
	DirUnknown = "NA"
)

// Speed values that are not a numeric km/h reading.
const (
	ValueNA        = "NA"
	ValueNoMeasure = "NO_MEASURE"
	ValueFault     = "FAULT"
)

// CellReader is the subset of cell.Watchers speed depends on.
type CellReader interface {
	Get(c hwport.Cell) int
}

// AlarmSource reports whether any channel is currently at N2; speed
// discards a measurement while that is true.
type AlarmSource interface {
	AnyN2() bool
}

// Config mirrors vitesse_chargement.py's tunables.
type Config struct {
	DistanceCellules  float64
	ModeSansCellules  bool
	ReboundWindow     time.Duration
	SingleEdgeWindow  time.Duration
	FaultThresholdKMH float64
}

// Reading is the read-only snapshot exposed to state (spec §4.I /
// §6's speed field).
type Reading struct {
	// Value is either a km/h number formatted by the caller, or one of
	// ValueNA / ValueNoMeasure / ValueFault.
	KMH       float64
	IsNumeric bool
	Value     string
	Direction string
}

// Estimator owns the edge-timestamp state machine.
type Estimator struct {
	cells  CellReader
	alarms AlarmSource
	cfg    Config

	t1, t2     time.Time
	haveT1     bool
	haveT2     bool
	lastC1     int
	lastC2     int
	lastMeasure time.Time

	reading Reading
}

// New returns an estimator. If cfg.ModeSansCellules is set, Poll is a
// no-op and Reading always reports ValueNA.
func New(cells CellReader, alarms AlarmSource, cfg Config) *Estimator {
	e := &Estimator{cells: cells, alarms: alarms, cfg: cfg}
	e.reading = Reading{Value: ValueNA, Direction: DirUnknown}
	return e
}

// Reading returns the last computed (or held) speed reading.
func (e *Estimator) Reading() Reading { return e.reading }

// Poll reads both cells and advances the edge-capture state machine.
func (e *Estimator) Poll() {
	if e.cfg.ModeSansCellules {
		return
	}

	c1 := e.cells.Get(hwport.Cell1)
	c2 := e.cells.Get(hwport.Cell2)
	now := time.Now()

	if c1 == 1 && e.lastC1 == 0 && !e.haveT1 {
		e.t1 = now
		e.haveT1 = true
	}
	if c2 == 1 && e.lastC2 == 0 && !e.haveT2 {
		e.t2 = now
		e.haveT2 = true
	}
	e.lastC1, e.lastC2 = c1, c2

	switch {
	case e.haveT1 && e.haveT2:
		e.resolvePair(now)
	case e.haveT1 && !e.haveT2:
		if now.Sub(e.t1) > e.cfg.SingleEdgeWindow && e.t1.After(e.lastMeasure) {
			e.reading = Reading{Value: ValueNoMeasure, Direction: DirUnknown}
			e.haveT1 = false
		}
	case e.haveT2 && !e.haveT1:
		if now.Sub(e.t2) > e.cfg.SingleEdgeWindow && e.t2.After(e.lastMeasure) {
			e.reading = Reading{Value: ValueNoMeasure, Direction: DirUnknown}
			e.haveT2 = false
		}
	}
}

func (e *Estimator) resolvePair(now time.Time) {
	delta := e.t2.Sub(e.t1)
	abs := delta
	if abs < 0 {
		abs = -abs
	}

	if abs < e.cfg.ReboundWindow {
		e.haveT1, e.haveT2 = false, false
		return
	}

	if e.alarms.AnyN2() {
		e.haveT1, e.haveT2 = false, false
		return
	}

	dir := DirBtoA
	if e.t1.Before(e.t2) {
		dir = DirAtoB
	}

	e.reading = Reading{Direction: dir}
	kmh := e.computeKMH(abs)
	if kmh > e.cfg.FaultThresholdKMH {
		e.reading.Value = ValueFault
	} else {
		e.reading.IsNumeric = true
		e.reading.KMH = math.Round(kmh*10) / 10
	}

	e.lastMeasure = now
	e.haveT1, e.haveT2 = false, false
}

func (e *Estimator) computeKMH(delta time.Duration) float64 {
	if delta <= 0 {
		return 0
	}
	metersPerSecond := e.cfg.DistanceCellules / delta.Seconds()
	return metersPerSecond * 3.6
}

// Run polls the estimator every period until ctx is cancelled.
func (e *Estimator) Run(ctx context.Context, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.Poll()
		}
	}
}
