// package alarm implements the per-channel alarm evaluator (spec
// §4.F): rate vs. N1/N2/follower thresholds, passage gating, and
// upward-only latching. ChannelConfig.ResetRatio is stored but not
// evaluated: no hysteresis value is computed or published. Only the
// acknowledge FSM may lower a channel's state (spec invariant 3).
package alarm

import (
	"context"
	"log"
	"sync"
	"time"
)

// Channels is the number of detector channels.
const Channels = 12

// State values, ordered OK < N1 < N2 (spec §3).
const (
	OK = 0
	N1 = 1
	N2 = 2
)

// Event is published on an upward edge, for the (external) email/SMS
// notifier to drain (spec §9 design note, SPEC_FULL.md supplement #3).
type Event struct {
	Channel int
	State   int
}

// ChannelConfig is the per-channel threshold configuration (spec §3).
type ChannelConfig struct {
	Enabled    bool
	N1         float64
	N2Factor   float64
	Multiple   float64
	ResetRatio float64
}

// RateSource and BackgroundSource are the upstream publishers alarm
// reads from; it never writes either.
type RateSource interface {
	Rate(ch int) float64
}

type BackgroundSource interface {
	Get(ch int) float64
}

// PassageGate is consulted on every tick unless nil (spec: absent when
// Mode_sans_cellules == 1).
type PassageGate interface {
	IsPassage() bool
}

// Bank owns all twelve channels' alarm state.
type Bank struct {
	mu      sync.RWMutex
	state   [Channels]int
	measure [Channels]float64
	cfg     [Channels]ChannelConfig

	events     chan Event
	loggedDrop bool
}

// New returns a Bank with every channel OK, configured from cfg.
func New(cfg [Channels]ChannelConfig) *Bank {
	b := &Bank{cfg: cfg, events: make(chan Event, 32)}
	return b
}

// Events returns the channel upward-edge events are published on.
func (b *Bank) Events() <-chan Event { return b.events }

// State implements background.AlarmSource.
func (b *Bank) State(ch int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state[ch-1]
}

// Measure returns the rate sampled when channel ch's state was last
// computed (spec §4.F step 8: alarm_measure).
func (b *Bank) Measure(ch int) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.measure[ch-1]
}

// Reset unconditionally clears channel ch to OK (spec invariant 3:
// lowering is reserved for acknowledgement; the acknowledge FSM itself
// clears every channel through ResetAll).
func (b *Bank) Reset(ch int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state[ch-1] = OK
}

// SetConfig updates channel ch's threshold configuration, e.g. when
// the operator toggles Dn_ON.
func (b *Bank) SetConfig(ch int, cfg ChannelConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg[ch-1] = cfg
}

// AnyActive reports whether at least one channel is not OK (spec
// §4.H precondition 1).
func (b *Bank) AnyActive() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.state {
		if s != OK {
			return true
		}
	}
	return false
}

// ResetAll clears every channel to OK (spec §4.H confirm step).
func (b *Bank) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.state {
		b.state[i] = OK
	}
}

// AnyN2 reports whether at least one channel is at N2, used by speed
// to discard a measurement taken during an N2 alarm (spec §4.I).
func (b *Bank) AnyN2() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.state {
		if s == N2 {
			return true
		}
	}
	return false
}

func (b *Bank) publish(ev Event) {
	select {
	case b.events <- ev:
		return
	default:
	}
	// Bounded per spec §9; a full channel means a slow consumer, and
	// the core must never block on it. Drop the oldest pending event
	// to make room for this one rather than lose the new transition.
	select {
	case <-b.events:
	default:
	}
	select {
	case b.events <- ev:
	default:
	}
	if !b.loggedDrop {
		b.loggedDrop = true
		log.Printf("alarm: event channel full, dropped oldest pending event")
	}
}

// tick evaluates channel ch given the current rate and background,
// and whether the passage gate is open.
func (b *Bank) tick(ch int, rate, background float64, gateOpen bool) {
	b.mu.Lock()
	cfg := b.cfg[ch-1]
	if !cfg.Enabled {
		b.state[ch-1] = OK
		b.measure[ch-1] = 0
		b.mu.Unlock()
		return
	}

	n2 := cfg.N1 * cfg.N2Factor
	follower := background * cfg.Multiple

	var prospective int
	switch {
	case rate >= n2 && gateOpen:
		prospective = N2
	case (rate >= cfg.N1 || rate >= follower) && gateOpen:
		prospective = N1
	default:
		prospective = OK
	}

	current := b.state[ch-1]
	newState := current
	if prospective > current {
		newState = prospective
	}

	b.state[ch-1] = newState
	b.measure[ch-1] = rate
	rose := newState > current
	b.mu.Unlock()

	if rose {
		b.publish(Event{Channel: ch, State: newState})
	}
}

// Run ticks every channel every period until ctx is cancelled. gate
// may be nil (Mode_sans_cellules == 1), in which case every tick is
// gate-open.
func (b *Bank) Run(ctx context.Context, rates RateSource, backgrounds BackgroundSource, gate PassageGate, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			gateOpen := gate == nil || gate.IsPassage()
			for ch := 1; ch <= Channels; ch++ {
				b.tick(ch, rates.Rate(ch), backgrounds.Get(ch), gateOpen)
			}
		}
	}
}
