package simhw

import (
	"context"
	"testing"
	"time"

	"radport.dev/hwport"
)

func TestReadDigitalMapsFixedLines(t *testing.T) {
	m := New(nil)
	m.SetCell(hwport.Cell1, 1)
	m.PressAck(1)
	if got := m.ReadDigital(hwport.LineCell1); got != 1 {
		t.Fatalf("LineCell1 = %d, want 1", got)
	}
	if got := m.ReadDigital(hwport.LineCell2); got != 0 {
		t.Fatalf("LineCell2 = %d, want 0", got)
	}
	if got := m.ReadDigital(hwport.LineAck); got != 1 {
		t.Fatalf("LineAck = %d, want 1", got)
	}
	if got := m.ReadDigital(99); got != 0 {
		t.Fatalf("unmapped line = %d, want 0", got)
	}
}

func TestReadDigitalAppliesInversion(t *testing.T) {
	m := New([]int{hwport.LineCell1})
	m.SetCell(hwport.Cell1, 0)
	if got := m.ReadDigital(hwport.LineCell1); got != 1 {
		t.Fatalf("inverted LineCell1 = %d, want 1 for underlying 0", got)
	}
	if got := m.ReadCell(hwport.Cell1); got != 1 {
		t.Fatalf("inverted ReadCell(Cell1) = %d, want 1 for underlying 0", got)
	}
	m.SetCell(hwport.Cell1, 1)
	if got := m.ReadDigital(hwport.LineCell1); got != 0 {
		t.Fatalf("inverted LineCell1 = %d, want 0 for underlying 1", got)
	}
}

func TestWriteDigitalIsNoop(t *testing.T) {
	m := New(nil)
	m.WriteDigital(hwport.LineAck, 1)
	if got := m.ReadDigital(hwport.LineAck); got != 0 {
		t.Fatalf("relay write leaked into a read line: %d", got)
	}
}

func TestRunIntegratesRateIntoPulses(t *testing.T) {
	m := New(nil)
	m.SetRateCPS(1, 100)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	time.Sleep(120 * time.Millisecond)
	cancel()
	<-done

	if got := m.ReadPulses(1); got < 9 || got > 13 {
		t.Fatalf("pulses after ~120ms at 100cps = %d, want ~12", got)
	}
	if got := m.ReadPulses(2); got != 0 {
		t.Fatalf("channel 2 pulses = %d, want 0 (never set)", got)
	}
}
