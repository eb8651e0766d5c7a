package progress

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTrackerThrottleSequence(t *testing.T) {
	// One variant, so local percentages map straight to global ones. Each
	// destination throttles against its own baseline: the sink fires on
	// advances of at least 2 points, the record on advances of at least 10.
	samples := []float64{0, 1, 1.9, 2.1, 3, 11.9, 12.1}
	wantNotify := []bool{false, false, false, true, false, true, false}
	wantPersist := []bool{false, false, false, false, false, true, false}

	tr := NewTracker(1)
	for i, s := range samples {
		var d Decision
		tr, d = tr.Sample(s)
		if d.Notify != wantNotify[i] {
			t.Errorf("sample %v: Notify = %v, want %v", s, d.Notify, wantNotify[i])
		}
		if d.Persist != wantPersist[i] {
			t.Errorf("sample %v: Persist = %v, want %v", s, d.Persist, wantPersist[i])
		}
		if !almostEqual(d.Percent, s) {
			t.Errorf("sample %v: Percent = %v, want %v", s, d.Percent, s)
		}
	}
	if !almostEqual(tr.LastForwarded, 11.9) {
		t.Errorf("LastForwarded = %v, want 11.9", tr.LastForwarded)
	}
	if !almostEqual(tr.LastPersisted, 11.9) {
		t.Errorf("LastPersisted = %v, want 11.9", tr.LastPersisted)
	}
}

func TestTrackerIndependentBaselines(t *testing.T) {
	// A forward at 2.1 must not reset the persistence baseline: persistence
	// still measures from 0 and fires once the total advance reaches 10.
	tr := NewTracker(1)
	tr, d := tr.Sample(2.1)
	if !d.Notify || d.Persist {
		t.Fatalf("sample 2.1: got Notify=%v Persist=%v, want Notify only", d.Notify, d.Persist)
	}
	tr, d = tr.Sample(9.9)
	if d.Persist {
		t.Errorf("sample 9.9: persisted before a 10 point advance")
	}
	_, d = tr.Sample(10)
	if !d.Persist {
		t.Errorf("sample 10: expected persistence at a 10 point advance from 0")
	}
}

func TestTrackerVariantWeights(t *testing.T) {
	// Four variants: each owns a quarter of the global range.
	tr := NewTracker(4)

	tr, d := tr.Sample(50)
	if !almostEqual(d.Percent, 12.5) {
		t.Errorf("variant 1 at 50%%: global = %v, want 12.5", d.Percent)
	}

	tr, d = tr.VariantDone()
	if !almostEqual(d.Percent, 25) {
		t.Errorf("variant 1 done: global = %v, want 25", d.Percent)
	}

	tr, d = tr.Sample(50)
	if !almostEqual(d.Percent, 37.5) {
		t.Errorf("variant 2 at 50%%: global = %v, want 37.5", d.Percent)
	}

	for !tr.Done() {
		tr, d = tr.VariantDone()
	}
	if !almostEqual(d.Percent, 100) {
		t.Errorf("all variants done: global = %v, want 100", d.Percent)
	}
}

func TestTrackerMonotonicUnderRegression(t *testing.T) {
	// An encoder restart replays samples from zero; the global value must
	// hold its high-water mark through the regression.
	tr := NewTracker(2)
	var d Decision

	tr, d = tr.Sample(80) // global 40
	if !almostEqual(d.Percent, 40) {
		t.Fatalf("global = %v, want 40", d.Percent)
	}

	regressive := []float64{0, 10, 50}
	for _, s := range regressive {
		tr, d = tr.Sample(s)
		if d.Percent < 40 {
			t.Errorf("sample %v: global regressed to %v", s, d.Percent)
		}
		if d.Notify {
			t.Errorf("sample %v: notified without forward movement", s)
		}
	}

	tr, d = tr.Sample(90) // global 45
	if !almostEqual(d.Percent, 45) {
		t.Errorf("global = %v, want 45 after recovery", d.Percent)
	}
}

func TestTrackerMonotonicProperty(t *testing.T) {
	// Arbitrary out-of-order sample streams never move the global value
	// backwards.
	streams := [][]float64{
		{5, 3, 8, 2, 100, 50},
		{0, 0, 0},
		{100, 0, 100},
		{-5, 110, 4},
	}
	for _, stream := range streams {
		tr := NewTracker(3)
		last := 0.0
		for _, s := range stream {
			var d Decision
			tr, d = tr.Sample(s)
			if d.Percent < last {
				t.Errorf("stream %v: global regressed from %v to %v", stream, last, d.Percent)
			}
			if d.Percent < 0 || d.Percent > 100 {
				t.Errorf("stream %v: global %v out of range", stream, d.Percent)
			}
			last = d.Percent
		}
	}
}

func TestTrackerSnapWithoutSamples(t *testing.T) {
	// Zero or unknown duration means no sample ever moves the needle; the
	// completion snap still advances, notifies, and persists.
	tr := NewTracker(2)

	tr, d := tr.Sample(0)
	if d.Percent != 0 || d.Notify || d.Persist {
		t.Fatalf("zero sample: got %+v, want silent zero", d)
	}

	_, d = tr.VariantDone()
	if !almostEqual(d.Percent, 50) {
		t.Errorf("snap: global = %v, want 50", d.Percent)
	}
	if !d.Notify || !d.Persist {
		t.Errorf("snap: got Notify=%v Persist=%v, want both", d.Notify, d.Persist)
	}
}

func TestTrackerResume(t *testing.T) {
	// Two of three variants were checkpointed done and the record last
	// stored 60%. The global floor restarts at the checkpoint weight; the
	// persistence baseline keeps the stored value.
	tr := Resume(3, 2, 60)

	tr, d := tr.Sample(0)
	if !almostEqual(d.Percent, 200.0/3) {
		t.Fatalf("resumed global = %v, want %v", d.Percent, 200.0/3)
	}
	if !d.Notify {
		t.Errorf("first resumed sample should reach the sink")
	}
	if d.Persist {
		t.Errorf("persisted at %v with baseline 60, want advance of 10 first", d.Percent)
	}

	_, d = tr.VariantDone()
	if !almostEqual(d.Percent, 100) {
		t.Errorf("final global = %v, want 100", d.Percent)
	}
	if !d.Persist {
		t.Errorf("final snap should persist: 100 is 40 points past 60")
	}
}

func TestTrackerDegenerateTotals(t *testing.T) {
	tr := NewTracker(0)
	if tr.VariantsTotal != 1 {
		t.Errorf("VariantsTotal = %d, want clamp to 1", tr.VariantsTotal)
	}

	tr = Resume(3, 5, 0)
	if tr.CompletedVariants != 3 {
		t.Errorf("CompletedVariants = %d, want clamp to 3", tr.CompletedVariants)
	}
	if !tr.Done() {
		t.Errorf("tracker with all variants complete should report Done")
	}
}
