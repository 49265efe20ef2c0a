package monitor

import (
	"time"

	"udpquake/internal/quake"
)

// SeenHorizon is how long an already-alerted event id is remembered.
const SeenHorizon = 2 * time.Hour

// SeenSet maps event id to the event's occurrence time for events whose
// alert dispatch has been initiated. Owned exclusively by the Runner.
type SeenSet map[string]time.Time

// Admit splits a batch into events that have not been alerted yet and
// computes the next SeenSet.
//
// fresh preserves batch order. next is rebuilt from the current batch alone:
// it holds the ids of batch events whose occurrence time is strictly inside
// the horizon; ids absent from this batch are dropped even when still inside
// the horizon.
//
// Pure function: no side effects, inputs are not mutated.
func Admit(batch quake.Batch, seen SeenSet, now time.Time) (fresh []quake.Event, next SeenSet) {
	for _, ev := range batch.Events {
		if _, ok := seen[ev.ID]; !ok {
			fresh = append(fresh, ev)
		}
	}

	cutoff := now.Add(-SeenHorizon)
	next = make(SeenSet, len(batch.Events))
	for _, ev := range batch.Events {
		if ev.Time.After(cutoff) {
			next[ev.ID] = ev.Time
		}
	}
	return fresh, next
}
