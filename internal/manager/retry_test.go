package manager

import (
	"testing"
	"time"
)

func TestRetryMonitor_TripsWithinWindow(t *testing.T) {
	m := NewRetryMonitor(3, time.Minute)
	base := time.Now()

	if m.RecordCrash("inst-1", base) {
		t.Fatal("should not trip on first crash")
	}
	if m.RecordCrash("inst-1", base.Add(time.Second)) {
		t.Fatal("should not trip on second crash")
	}
	if !m.RecordCrash("inst-1", base.Add(2*time.Second)) {
		t.Fatal("should trip on third crash within window")
	}
}

func TestRetryMonitor_OldCrashesRollOff(t *testing.T) {
	m := NewRetryMonitor(2, time.Minute)
	base := time.Now()

	if m.RecordCrash("inst-1", base) {
		t.Fatal("should not trip on first crash")
	}
	// Second crash long after the window expired for the first: the
	// rolling window should not count them together.
	if m.RecordCrash("inst-1", base.Add(2*time.Minute)) {
		t.Fatal("should not trip once the first crash has rolled off the window")
	}
}

func TestRetryMonitor_ResetClearsHistory(t *testing.T) {
	m := NewRetryMonitor(2, time.Minute)
	base := time.Now()
	m.RecordCrash("inst-1", base)
	m.Reset("inst-1")
	if m.RecordCrash("inst-1", base.Add(time.Second)) {
		t.Fatal("should not trip right after reset")
	}
}
