// package fault implements the per-channel fault detector (spec
// §4.G), grounded on original_source/.../core/defauts/defauts.py's
// DefautThread: raw counts classified against low/high bounds, not
// latched, with an email-flag edge on OK -> (LOW|HIGH).
package fault

import (
	"context"
	"log"
	"sync"
	"time"
)

// Channels is the number of detector channels.
const Channels = 12

// State values (spec §3).
const (
	OK   = 0
	LOW  = 1
	HIGH = 2
)

// Event is published on an OK -> (LOW|HIGH) transition (spec §9
// design note; SPEC_FULL.md supplement #3).
type Event struct {
	Channel int
	State   int
}

// ChannelConfig is the per-channel bound configuration.
type ChannelConfig struct {
	Enabled bool
	Low     float64
	High    float64
}

// RawSource provides the counting subsystem's raw per-tick count.
type RawSource interface {
	Raw(ch int) float64
}

// Bank owns all twelve channels' fault state.
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
	return &Bank{cfg: cfg, events: make(chan Event, 32)}
}

// Events returns the channel OK->fault transitions are published on.
func (b *Bank) Events() <-chan Event { return b.events }

// State returns channel ch's current fault classification.
func (b *Bank) State(ch int) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state[ch-1]
}

// Measure returns the raw count sampled when ch's fault state was
// last computed (SPEC_FULL.md supplement #4).
func (b *Bank) Measure(ch int) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.measure[ch-1]
}

// SetConfig updates channel ch's bound configuration.
func (b *Bank) SetConfig(ch int, cfg ChannelConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cfg[ch-1] = cfg
}

func (b *Bank) publish(ev Event) {
	select {
	case b.events <- ev:
		return
	default:
	}
	// A full channel means a slow consumer; drop the oldest pending
	// event to make room rather than lose this transition (spec §9
	// design note; SPEC_FULL.md supplement #3).
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
		log.Printf("fault: event channel full, dropped oldest pending event")
	}
}

func (b *Bank) tick(ch int, raw float64) {
	b.mu.Lock()
	idx := ch - 1
	cfg := b.cfg[idx]
	if !cfg.Enabled {
		b.state[idx] = OK
		b.measure[idx] = 0
		b.mu.Unlock()
		return
	}

	var next int
	switch {
	case raw < cfg.Low:
		next = LOW
	case raw > cfg.High:
		next = HIGH
	default:
		next = OK
	}

	old := b.state[idx]
	b.state[idx] = next
	b.measure[idx] = raw
	rose := old == OK && next != OK
	b.mu.Unlock()

	if rose {
		b.publish(Event{Channel: ch, State: next})
	}
}

// Run ticks every channel every period until ctx is cancelled.
func (b *Bank) Run(ctx context.Context, raws RawSource, period time.Duration) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for ch := 1; ch <= Channels; ch++ {
				b.tick(ch, raws.Raw(ch))
			}
		}
	}
}
