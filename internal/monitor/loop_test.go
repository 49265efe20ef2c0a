package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"udpquake/internal/quake"
	"udpquake/pkg/logx"
)

type fakeFeed struct {
	queries []quake.Query
	batch   quake.Batch
	err     error
}

func (f *fakeFeed) Fetch(_ context.Context, q quake.Query) (quake.Batch, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return quake.Batch{}, f.err
	}
	return f.batch, nil
}

type fakeDispatcher struct {
	events  []quake.Event
	outcome Outcome
}

func (f *fakeDispatcher) Dispatch(_ context.Context, ev quake.Event) Outcome {
	f.events = append(f.events, ev)
	return f.outcome
}

func newTestRunner(feed FeedClient, disp EventDispatcher, now time.Time) *Runner {
	r := NewRunner(feed, disp, RunnerConfig{}, logx.Nop())
	r.now = func() time.Time { return now }
	return r
}

func TestCycleLookbackWindows(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{}
	r := newTestRunner(feed, &fakeDispatcher{outcome: Outcome{Code: Sent}}, now)

	r.cycle(context.Background())
	r.cycle(context.Background())

	if len(feed.queries) != 2 {
		t.Fatalf("queries = %d, want 2", len(feed.queries))
	}
	if got, want := feed.queries[0].StartTime, now.Add(-72*time.Hour); !got.Equal(want) {
		t.Fatalf("first cycle start = %v, want %v (72h lookback)", got, want)
	}
	if got, want := feed.queries[1].StartTime, now.Add(-time.Hour); !got.Equal(want) {
		t.Fatalf("second cycle start = %v, want %v (1h lookback)", got, want)
	}
	if feed.queries[0].MinMagnitude != 2.0 || feed.queries[0].Limit != 50 {
		t.Fatalf("query defaults = minmag %v limit %d, want 2.0 / 50",
			feed.queries[0].MinMagnitude, feed.queries[0].Limit)
	}
}

func TestCycleFirstWindowConsumedByFailedFetch(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{err: errors.New("feed down")}
	r := newTestRunner(feed, &fakeDispatcher{}, now)

	r.cycle(context.Background())
	feed.err = nil
	r.cycle(context.Background())

	// The wide window belongs to the first attempt, successful or not.
	if got, want := feed.queries[1].StartTime, now.Add(-time.Hour); !got.Equal(want) {
		t.Fatalf("second cycle start = %v, want %v", got, want)
	}
}

func TestCycleFetchFailureKeepsSeenSet(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{batch: quake.Batch{Events: []quake.Event{mkEvent("a", now)}}}
	disp := &fakeDispatcher{outcome: Outcome{Code: Sent}}
	r := newTestRunner(feed, disp, now)

	r.cycle(context.Background())
	if len(r.seen) != 1 {
		t.Fatalf("seen = %d ids after good cycle, want 1", len(r.seen))
	}

	feed.err = errors.New("feed down")
	r.cycle(context.Background())
	if _, ok := r.seen["a"]; !ok {
		t.Fatal("failed fetch must leave the seen set untouched")
	}

	// And no re-dispatch once the feed recovers with the same batch.
	feed.err = nil
	r.cycle(context.Background())
	if len(disp.events) != 1 {
		t.Fatalf("dispatched %d events, want 1 (no duplicates)", len(disp.events))
	}
}

func TestCycleDispatchFailureStillMarksSeen(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{batch: quake.Batch{Events: []quake.Event{
		mkEvent("a", now.Add(-time.Minute)),
		mkEvent("b", now.Add(-2*time.Minute)),
	}}}
	disp := &fakeDispatcher{outcome: Outcome{Code: Skipped, Reason: "all sends failed"}}
	r := newTestRunner(feed, disp, now)

	r.cycle(context.Background())

	// A skipped alert is not retried: the whole batch enters the seen set.
	if len(r.seen) != 2 {
		t.Fatalf("seen = %d ids, want 2", len(r.seen))
	}
	r.cycle(context.Background())
	if len(disp.events) != 2 {
		t.Fatalf("dispatched %d events total, want 2", len(disp.events))
	}
}

func TestCycleDispatchOrderFollowsBatch(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{batch: quake.Batch{Events: []quake.Event{
		mkEvent("c", now.Add(-time.Minute)),
		mkEvent("a", now.Add(-90*time.Minute)),
		mkEvent("b", now.Add(-10*time.Minute)),
	}}}
	disp := &fakeDispatcher{outcome: Outcome{Code: Sent}}
	r := newTestRunner(feed, disp, now)

	r.cycle(context.Background())

	got := ids(disp.events)
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatch order = %v, want %v", got, want)
		}
	}
}

func TestCycleStopsDispatchingOnCancel(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{batch: quake.Batch{Events: []quake.Event{
		mkEvent("a", now),
		mkEvent("b", now),
	}}}
	disp := &fakeDispatcher{outcome: Outcome{Code: Sent}}
	r := newTestRunner(feed, disp, now)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.cycle(ctx)

	if len(disp.events) != 0 {
		t.Fatalf("dispatched %d events on canceled context, want 0", len(disp.events))
	}
	// The seen set is still rebuilt so recovery does not replay the batch.
	if len(r.seen) != 2 {
		t.Fatalf("seen = %d ids, want 2", len(r.seen))
	}
}

func TestRunReturnsOnCancel(t *testing.T) {
	t.Parallel()
	feed := &fakeFeed{}
	r := NewRunner(feed, &fakeDispatcher{outcome: Outcome{Code: Sent}}, RunnerConfig{
		PollInterval: 10 * time.Millisecond,
	}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunnerStats(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	feed := &fakeFeed{batch: quake.Batch{Events: []quake.Event{mkEvent("a", now)}}}
	r := newTestRunner(feed, &fakeDispatcher{outcome: Outcome{Code: Sent}}, now)

	r.cycle(context.Background())
	s := r.Stats()
	if s.Cycles != 1 || s.EventsFetched != 1 || s.EventsFresh != 1 || s.AlertsSent != 1 || s.SeenIDs != 1 {
		t.Fatalf("stats = %+v", s)
	}

	feed.err = errors.New("feed down")
	r.cycle(context.Background())
	s = r.Stats()
	if s.Cycles != 2 || s.FetchErrors != 1 {
		t.Fatalf("stats after failed cycle = %+v", s)
	}
}
