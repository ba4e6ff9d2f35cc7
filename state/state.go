// package state implements the read-only snapshot façade (spec §4.K):
// a shallow, point-in-time aggregation of every component's published
// state for the supervision layer, completing in O(channels) without
// taking long-held locks on any writer.
package state

import (
	"radport.dev/ack"
	"radport.dev/alarm"
	"radport.dev/background"
	"radport.dev/counter"
	"radport.dev/curve"
	"radport.dev/fault"
	"radport.dev/speed"
)

// Channels is the number of detector channels.
const Channels = 12

// Channel is one channel's snapshot row.
type Channel struct {
	Count        float64
	RawCount     float64
	AlarmState   int
	AlarmMeasure float64
	Background   float64
	FaultState   int
	FaultMeasure float64
	Curve        []float64
}

// Snapshot is the whole-system view exposed to supervision (spec §6).
type Snapshot struct {
	Channels  [Channels]Channel
	AckStatus ack.Status
	Speed     speed.Reading
}

// Sources bundles every component state reads from. None are written
// by state itself.
type Sources struct {
	Counters    *counter.Bank
	Alarms      *alarm.Bank
	Backgrounds *background.Tracker
	Faults      *fault.Bank
	Curves      *curve.Bank
	Ack         *ack.FSM
	Speed       *speed.Estimator
}

// Take builds a point-in-time Snapshot. It takes no component's lock
// for longer than a single method call, so snapshots are not
// internally consistent across components by design (spec §4.K).
func Take(s Sources) Snapshot {
	var out Snapshot
	for ch := 1; ch <= Channels; ch++ {
		sample := s.Counters.Sample(ch)
		out.Channels[ch-1] = Channel{
			Count:        sample.Rate,
			RawCount:     sample.Raw,
			AlarmState:   s.Alarms.State(ch),
			AlarmMeasure: s.Alarms.Measure(ch),
			Background:   s.Backgrounds.Get(ch),
			FaultState:   s.Faults.State(ch),
			FaultMeasure: s.Faults.Measure(ch),
			Curve:        s.Curves.Snapshot(ch),
		}
	}
	out.AckStatus = s.Ack.Status()
	out.Speed = s.Speed.Reading()
	return out
}
