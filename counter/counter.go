// package counter implements the counting subsystem (spec §4.C): it
// turns a per-channel monotonic pulse counter into a raw count per
// tick and a smoothed rate, via a first-order exponential filter.
package counter

import (
	"context"
	"math"
	"sync"
	"time"
)

// PulseSource is the edge-counting register a channel's input
// maintains, whether backed by a real ISR or simhw's injected rate.
type PulseSource interface {
	ReadPulses(ch int) uint64
}

// Channels is the number of detector channels.
const Channels = 12

// Sample is one channel's published counting state (spec §3).
type Sample struct {
	Raw  float64
	Rate float64
}

// Bank owns all twelve channels' counting state. Run is a single
// goroutine iterating every channel at the tick rate and is the sole
// writer of each channel's previous-pulse bookkeeping; reads and
// writes share one bank-wide RWMutex, held only for the duration of a
// single channel's read or update.
type Bank struct {
	mu       sync.RWMutex
	samples  [Channels]Sample
	previous [Channels]uint64
	ratePrev [Channels]float64
	first    [Channels]bool
	enabled  [Channels]bool

	alpha float64
}

// NewBank returns a Bank with no channel yet ticked. tau is the
// smoothing time constant (DESIGN.md: a few sample periods); period is
// the tick interval (spec §6 sample_time).
func NewBank(tau, period time.Duration) *Bank {
	b := &Bank{}
	b.alpha = 1 - math.Exp(-period.Seconds()/tau.Seconds())
	for i := range b.first {
		b.first[i] = true
		b.enabled[i] = true
	}
	return b
}

// Sample returns the latest published raw count and smoothed rate for
// channel ch (1..Channels).
func (b *Bank) Sample(ch int) Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples[ch-1]
}

// Rate implements alarm.RateSource and curve.RateSource.
func (b *Bank) Rate(ch int) float64 { return b.Sample(ch).Rate }

// Raw implements fault.RawSource.
func (b *Bank) Raw(ch int) float64 { return b.Sample(ch).Raw }

// tick advances channel ch given the current pulse counter reading
// and enable flag.
func (b *Bank) tick(ch int, pulses uint64, on bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := ch - 1
	b.enabled[idx] = on
	if !on {
		b.samples[idx] = Sample{}
		b.ratePrev[idx] = 0
		b.previous[idx] = pulses
		b.first[idx] = true
		return
	}

	prev := b.previous[idx]
	var raw float64
	if pulses < prev {
		// Tie-break: counter restarted. Treat delta as zero and
		// resync to avoid a spurious spike (spec §4.C).
		raw = 0
	} else {
		raw = float64(pulses - prev)
	}
	b.previous[idx] = pulses

	var rate float64
	if b.first[idx] {
		rate = raw
		b.first[idx] = false
	} else {
		rate = b.alpha*raw + (1-b.alpha)*b.ratePrev[idx]
	}
	b.ratePrev[idx] = rate
	b.samples[idx] = Sample{Raw: raw, Rate: rate}
}

// Run ticks every channel from src each period until ctx is
// cancelled. enabledFn reports whether channel ch (1..Channels) is
// currently on; it is consulted every tick so configuration changes
// take effect without restarting the loop.
func (b *Bank) Run(ctx context.Context, src PulseSource, period time.Duration, enabledFn func(ch int) bool) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			for ch := 1; ch <= Channels; ch++ {
				b.tick(ch, src.ReadPulses(ch), enabledFn(ch))
			}
		}
	}
}
