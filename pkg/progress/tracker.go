package progress

// Throttle thresholds in percentage points. The notification sink and the
// durable job record each keep their own baseline: an update is forwarded or
// persisted only once the job-wide percentage has advanced by at least the
// threshold since the last value that reached that destination.
const (
	NotifyThreshold  = 2.0
	PersistThreshold = 10.0
)

// Tracker folds per-variant encoder progress into a job-wide percentage and
// decides when that percentage is worth forwarding to the UI or persisting.
// Variants run sequentially, so each one owns an equal slice of the range:
// variant k's local 0-100% maps to global [k*100/N, (k+1)*100/N].
//
// Tracker is a value type. Every update returns a new Tracker and the caller
// keeps the latest one; nothing is shared and nothing mutates in place.
type Tracker struct {
	VariantsTotal     int
	CompletedVariants int
	Global            float64
	LastForwarded     float64
	LastPersisted     float64
}

// Decision tells the caller what to do with the sample that produced it.
type Decision struct {
	// Percent is the job-wide percentage after the update, clamped so it
	// never moves backwards within one run even when the encoder restarts
	// and its raw samples regress.
	Percent float64
	// Notify is true when Percent advanced at least NotifyThreshold points
	// past the last forwarded value.
	Notify bool
	// Persist is true when Percent advanced at least PersistThreshold
	// points past the last persisted value.
	Persist bool
}

// NewTracker returns a Tracker for a fresh job with the given variant count.
func NewTracker(variantsTotal int) Tracker {
	return Resume(variantsTotal, 0, 0)
}

// Resume rebuilds a Tracker for a job picked up mid-flight: completed is the
// number of variants already checkpointed done, persisted is the job
// record's last stored percentage. The global value restarts at the
// checkpointed floor, not at the persisted value, because the in-flight
// variant begins again from zero after a crash.
func Resume(variantsTotal, completed int, persisted float64) Tracker {
	if variantsTotal < 1 {
		variantsTotal = 1
	}
	if completed < 0 {
		completed = 0
	}
	if completed > variantsTotal {
		completed = variantsTotal
	}
	return Tracker{
		VariantsTotal:     variantsTotal,
		CompletedVariants: completed,
		Global:            float64(completed) * 100 / float64(variantsTotal),
		LastPersisted:     persisted,
	}
}

// Sample folds one local percentage reading for the in-flight variant.
func (t Tracker) Sample(localPercent float64) (Tracker, Decision) {
	if localPercent < 0 {
		localPercent = 0
	}
	if localPercent > 100 {
		localPercent = 100
	}
	global := (float64(t.CompletedVariants)*100 + localPercent) / float64(t.VariantsTotal)
	return t.advance(global)
}

// VariantDone marks the in-flight variant complete and snaps the global
// percentage to its full weight. This also covers sources with zero or
// unknown duration, where no sample ever moves past zero.
func (t Tracker) VariantDone() (Tracker, Decision) {
	if t.CompletedVariants < t.VariantsTotal {
		t.CompletedVariants++
	}
	global := float64(t.CompletedVariants) * 100 / float64(t.VariantsTotal)
	return t.advance(global)
}

// Done reports whether every variant has completed.
func (t Tracker) Done() bool {
	return t.CompletedVariants >= t.VariantsTotal
}

func (t Tracker) advance(global float64) (Tracker, Decision) {
	if global < t.Global {
		global = t.Global
	}
	if global > 100 {
		global = 100
	}
	t.Global = global

	d := Decision{Percent: global}
	if global-t.LastForwarded >= NotifyThreshold {
		d.Notify = true
		t.LastForwarded = global
	}
	if global-t.LastPersisted >= PersistThreshold {
		d.Persist = true
		t.LastPersisted = global
	}
	return t, d
}
