package watermark

import (
	"time"
)

// Tracker owns the current plan for one session and recomputes it only when
// the page or the minute changes. It is not safe for concurrent use; the
// session runner calls it from its own goroutine.
type Tracker struct {
	planner    *Planner
	identity   Identity
	device     string
	totalPages int

	current  Plan
	hasPlan  bool
	computes int
}

func NewTracker(planner *Planner, identity Identity, deviceIDSuffix string, totalPages int) *Tracker {
	return &Tracker{
		planner:    planner,
		identity:   identity,
		device:     deviceIDSuffix,
		totalPages: totalPages,
	}
}

// Next returns the plan for page at now, and whether it was recomputed.
func (t *Tracker) Next(page int, now time.Time) (Plan, bool, error) {
	minute := now.UTC().Truncate(time.Minute)
	if t.hasPlan && t.current.Page == page && t.current.Minute.Equal(minute) {
		return t.current, false, nil
	}
	plan, err := t.planner.Plan(t.identity, t.device, page, t.totalPages, now)
	if err != nil {
		return t.current, false, err
	}
	t.current = plan
	t.hasPlan = true
	t.computes++
	return plan, true, nil
}

// Current returns the last computed plan.
func (t *Tracker) Current() (Plan, bool) {
	return t.current, t.hasPlan
}

// Computes counts recomputations since creation.
func (t *Tracker) Computes() int {
	return t.computes
}
