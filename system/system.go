// package system wires every component into its own goroutine,
// analogous to cmd/controller's platform wiring in the teacher: one
// constructor builds the whole dependency graph, one Run blocks until
// shutdown.
package system

import (
	"context"
	"log"
	"sync"
	"time"

	"radport.dev/ack"
	"radport.dev/alarm"
	"radport.dev/background"
	"radport.dev/cell"
	"radport.dev/config"
	"radport.dev/counter"
	"radport.dev/curve"
	"radport.dev/driver/evok"
	"radport.dev/driver/simhw"
	"radport.dev/fault"
	"radport.dev/hwport"
	"radport.dev/passage"
	"radport.dev/relay"
	"radport.dev/speed"
	"radport.dev/state"
)

// alwaysQuiescent reports no passage ever, for Mode_sans_cellules == 1
// where there are no cells to gate on.
type alwaysQuiescent struct{}

func (alwaysQuiescent) IsPassage() bool { return false }

// backend is what a hardware backend must provide: the uniform digital
// port (spec §4.A) plus the per-channel pulse-counter register the
// counting subsystem reads (spec §4.C). Both driver/evok and
// driver/simhw implement it; it is kept separate from hwport.Port
// because the spec treats pulse counting as fed by an independent edge
// source, not part of the digital-IO capability set.
type backend interface {
	hwport.Port
	counter.PulseSource
}

// System owns every wired component and their backing hardware port.
type System struct {
	cfg *config.Config

	port backend
	sim  *simhw.Model // non-nil only when cfg.Sim

	cells       *cell.Watchers
	counters    *counter.Bank
	passageSvc  *passage.Service
	backgrounds *background.Tracker
	alarms      *alarm.Bank
	faults      *fault.Bank
	ackFSM      *ack.FSM
	speedEst    *speed.Estimator
	relayDrv    *relay.Driver
	curves      *curve.Bank
}

// New builds the full dependency graph from cfg but starts nothing.
func New(cfg *config.Config) *System {
	s := &System{cfg: cfg}

	if cfg.Sim {
		s.sim = simhw.New(cfg.InvertedLines)
		s.port = s.sim
	} else {
		s.port = evok.New(evok.Options{
			HTTPBase: cfg.EvokHTTPBase,
			WSURL:    cfg.EvokWSURL,
			Inverted: cfg.InvertedLines,
		})
	}

	s.cells = cell.New()
	s.counters = counter.NewBank(3*cfg.SampleTime, cfg.SampleTime)

	passageCfg := passage.Config{ArmDelay: cfg.ArmDelay, MinOff: cfg.MinOff}
	s.passageSvc = passage.New(s.cells, passageCfg)

	s.backgrounds = background.New(cfg.SampleTime)

	var alarmCfg [alarm.Channels]alarm.ChannelConfig
	var faultCfg [fault.Channels]fault.ChannelConfig
	for i := 0; i < config.Channels; i++ {
		c := cfg.Channel[i]
		alarmCfg[i] = alarm.ChannelConfig{
			Enabled:    c.Enabled,
			N1:         c.N1,
			N2Factor:   cfg.N2Factor,
			Multiple:   cfg.Multiple,
			ResetRatio: cfg.ResetRatio,
		}
		faultCfg[i] = fault.ChannelConfig{
			Enabled: c.Enabled,
			Low:     c.Low,
			High:    c.High,
		}
	}
	s.alarms = alarm.New(alarmCfg)
	s.faults = fault.New(faultCfg)

	s.ackFSM = ack.New(s.port, s.alarms, s.passageSvc, ack.Config{
		ConfirmTimeout: cfg.ConfirmTimeout,
		StableWindow:   cfg.CellStable,
		DisplayHold:    cfg.AckDisplayHold,
	})

	s.speedEst = speed.New(s.cells, s.alarms, speed.Config{
		DistanceCellules:  cfg.DistanceCellules,
		ModeSansCellules:  cfg.ModeSansCellules,
		ReboundWindow:     cfg.SpeedReboundWindow,
		SingleEdgeWindow:  cfg.SpeedSingleEdgeWindow,
		FaultThresholdKMH: cfg.SpeedFaultThresholdKMH,
	})

	s.relayDrv = relay.New(s.port, s.alarms, s.faults, s.cells, config.Channels)
	s.curves = curve.New(cfg.CurveCapacity)

	return s
}

// Snapshot returns a point-in-time system state view (spec §4.K).
func (s *System) Snapshot() state.Snapshot {
	return state.Take(state.Sources{
		Counters:    s.counters,
		Alarms:      s.alarms,
		Backgrounds: s.backgrounds,
		Faults:      s.faults,
		Curves:      s.curves,
		Ack:         s.ackFSM,
		Speed:       s.speedEst,
	})
}

// Run starts every component's ticker in its own goroutine and blocks
// until ctx is cancelled (spec §5: system-wide shutdown terminates all
// tickers at their next tick).
func (s *System) Run(ctx context.Context) {
	sampleTime := s.cfg.SampleTime

	var wg sync.WaitGroup
	run := func(f func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f()
		}()
	}

	if s.sim != nil {
		run(func() { s.sim.Run(ctx, sampleTime) })
	}

	run(func() { s.cells.Run(ctx, s.port, cell.DefaultPeriod) })
	run(func() {
		s.counters.Run(ctx, s.port, sampleTime, func(ch int) bool {
			return s.cfg.Channel[ch-1].Enabled
		})
	})
	run(func() { s.passageSvc.Run(ctx, 10*time.Millisecond) })

	var alarmGate alarm.PassageGate = s.passageSvc
	var backgroundGate background.PassageGate = s.passageSvc
	if s.cfg.ModeSansCellules {
		alarmGate = nil
		backgroundGate = alwaysQuiescent{}
	}
	run(func() { s.backgrounds.Run(ctx, s.counters, backgroundGate, s.alarms, sampleTime) })
	run(func() { s.alarms.Run(ctx, s.counters, s.backgrounds, alarmGate, sampleTime) })
	run(func() { s.faults.Run(ctx, s.counters, s.cfg.FaultPeriod) })
	run(func() { s.ackFSM.Run(ctx, 100*time.Millisecond) })
	run(func() { s.speedEst.Run(ctx, 10*time.Millisecond) })
	run(func() { s.relayDrv.Run(ctx, time.Second) })
	run(func() { s.curves.Run(ctx, s.counters, time.Second) })

	log.Printf("system: %d channels running, sim=%v", config.Channels, s.cfg.Sim)
	wg.Wait()
}
