package monitor

import (
	"testing"
	"time"

	"udpquake/internal/quake"
)

func mkEvent(id string, t time.Time) quake.Event {
	return quake.Event{ID: id, Time: t}
}

func TestAdmitFirstBatchAllFresh(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := quake.Batch{Events: []quake.Event{
		mkEvent("a", now.Add(-10*time.Minute)),
		mkEvent("b", now.Add(-20*time.Minute)),
	}}

	fresh, next := Admit(batch, SeenSet{}, now)
	if len(fresh) != 2 {
		t.Fatalf("fresh = %d events, want 2", len(fresh))
	}
	if fresh[0].ID != "a" || fresh[1].ID != "b" {
		t.Fatalf("fresh order = [%s %s], want [a b]", fresh[0].ID, fresh[1].ID)
	}
	if len(next) != 2 {
		t.Fatalf("next = %d ids, want 2", len(next))
	}
}

func TestAdmitIdempotent(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := quake.Batch{Events: []quake.Event{
		mkEvent("a", now.Add(-10*time.Minute)),
		mkEvent("b", now.Add(-20*time.Minute)),
	}}

	_, seen := Admit(batch, SeenSet{}, now)
	fresh, _ := Admit(batch, seen, now)
	if len(fresh) != 0 {
		t.Fatalf("second Admit of the same batch yielded %d fresh events, want 0", len(fresh))
	}
}

func TestAdmitPreservesBatchOrder(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	// Deliberately not sorted by time: order must follow the batch.
	batch := quake.Batch{Events: []quake.Event{
		mkEvent("late", now.Add(-5*time.Minute)),
		mkEvent("early", now.Add(-90*time.Minute)),
		mkEvent("mid", now.Add(-30*time.Minute)),
	}}

	fresh, _ := Admit(batch, SeenSet{"mid": now.Add(-30 * time.Minute)}, now)
	if len(fresh) != 2 {
		t.Fatalf("fresh = %d events, want 2", len(fresh))
	}
	if fresh[0].ID != "late" || fresh[1].ID != "early" {
		t.Fatalf("fresh order = [%s %s], want [late early]", fresh[0].ID, fresh[1].ID)
	}
}

func TestAdmitEvictionHorizon(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		age      time.Duration
		retained bool
	}{
		{name: "30min old retained", age: 30 * time.Minute, retained: true},
		{name: "just inside horizon", age: 2*time.Hour - time.Second, retained: true},
		{name: "exactly at horizon dropped", age: 2 * time.Hour, retained: false},
		{name: "3h old dropped", age: 3 * time.Hour, retained: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			batch := quake.Batch{Events: []quake.Event{mkEvent("x", now.Add(-tt.age))}}
			_, next := Admit(batch, SeenSet{}, now)
			_, ok := next["x"]
			if ok != tt.retained {
				t.Fatalf("retained = %v, want %v", ok, tt.retained)
			}
		})
	}
}

func TestAdmitRebuildsFromLatestBatchOnly(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// "old" was alerted 30 minutes ago and is still inside the horizon,
	// but it is absent from the current batch, so it is dropped.
	seen := SeenSet{"old": now.Add(-30 * time.Minute)}
	batch := quake.Batch{Events: []quake.Event{mkEvent("new", now.Add(-5 * time.Minute))}}

	fresh, next := Admit(batch, seen, now)
	if len(fresh) != 1 || fresh[0].ID != "new" {
		t.Fatalf("fresh = %v, want [new]", ids(fresh))
	}
	if _, ok := next["old"]; ok {
		t.Fatal("id absent from the latest batch must not be retained")
	}
	if _, ok := next["new"]; !ok {
		t.Fatal("id from the latest batch inside the horizon must be retained")
	}
}

func TestAdmitDoesNotMutateInputs(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seen := SeenSet{"a": now.Add(-10 * time.Minute)}
	batch := quake.Batch{Events: []quake.Event{mkEvent("b", now.Add(-1 * time.Minute))}}

	Admit(batch, seen, now)
	if len(seen) != 1 {
		t.Fatalf("input SeenSet mutated: %v", seen)
	}
}

func ids(events []quake.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.ID)
	}
	return out
}
