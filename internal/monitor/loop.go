package monitor

import (
	"context"
	"sync"
	"time"

	"udpquake/internal/quake"
	"udpquake/pkg/logx"
)

// FeedClient is the slice of the feed client the loop needs.
type FeedClient interface {
	Fetch(ctx context.Context, q quake.Query) (quake.Batch, error)
}

// EventDispatcher is the slice of the dispatcher the loop needs.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev quake.Event) Outcome
}

type RunnerConfig struct {
	// PollInterval is the pause between cycles.
	PollInterval time.Duration
	// FirstLookback is the query window of the very first cycle; it is wide
	// so a freshly started process catches events from the recent past.
	FirstLookback time.Duration
	// SteadyLookback is the query window of every later cycle.
	SteadyLookback time.Duration

	MinMagnitude float64
	Limit        int

	// SignificantMagnitude marks events worth a louder log line.
	SignificantMagnitude float64
}

func (c RunnerConfig) withDefaults() RunnerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Minute
	}
	if c.FirstLookback <= 0 {
		c.FirstLookback = 72 * time.Hour
	}
	if c.SteadyLookback <= 0 {
		c.SteadyLookback = time.Hour
	}
	if c.MinMagnitude == 0 {
		c.MinMagnitude = 2.0
	}
	if c.Limit <= 0 {
		c.Limit = 50
	}
	if c.SignificantMagnitude == 0 {
		c.SignificantMagnitude = 4.0
	}
	return c
}

// Stats is a point-in-time snapshot of the runner's counters,
// read by the periodic stats job.
type Stats struct {
	Cycles        uint64
	FetchErrors   uint64
	EventsFetched uint64
	EventsFresh   uint64
	AlertsSent    uint64
	SeenIDs       int
}

// Runner is the poll loop: fetch, admit, dispatch, sleep.
//
// All loop state (seen set, first-cycle flag) lives here as plain fields.
// The runner is single-threaded; only Stats() may be called concurrently.
type Runner struct {
	cfg      RunnerConfig
	feed     FeedClient
	dispatch EventDispatcher

	log     logx.Logger
	feedLog logx.Logger

	now func() time.Time

	seen     SeenSet
	firstRun bool

	mu    sync.Mutex
	stats Stats
}

func NewRunner(feed FeedClient, dispatch EventDispatcher, cfg RunnerConfig, log logx.Logger) *Runner {
	return &Runner{
		cfg:      cfg.withDefaults(),
		feed:     feed,
		dispatch: dispatch,
		log:      log.With(logx.String("component", "monitor")),
		feedLog:  log.With(logx.String("component", "feed")),
		now:      time.Now,
		seen:     SeenSet{},
		firstRun: true,
	}
}

// Run executes poll cycles until ctx is canceled. Nothing inside a cycle is
// fatal: fetch and dispatch failures are logged and the loop carries on.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("earthquake monitor started",
		logx.Duration("poll_interval", r.cfg.PollInterval),
		logx.Float64("min_magnitude", r.cfg.MinMagnitude),
	)

	for {
		r.cycle(ctx)

		timer := time.NewTimer(r.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.log.Info("earthquake monitor stopped")
			return nil
		case <-timer.C:
		}
	}
}

func (r *Runner) cycle(ctx context.Context) {
	lookback := r.cfg.SteadyLookback
	if r.firstRun {
		lookback = r.cfg.FirstLookback
	}
	// The wide window applies to the first fetch attempt only, whether or
	// not that fetch succeeds.
	r.firstRun = false

	pollCycles.Inc()
	r.bump(func(s *Stats) { s.Cycles++ })

	start := r.now().Add(-lookback)
	batch, err := r.feed.Fetch(ctx, quake.Query{
		MinMagnitude: r.cfg.MinMagnitude,
		StartTime:    start,
		Limit:        r.cfg.Limit,
	})
	if err != nil {
		// Cycle abandoned; the seen set is left untouched.
		fetchErrors.Inc()
		r.bump(func(s *Stats) { s.FetchErrors++ })
		r.feedLog.Error("fetch failed", logx.Err(err), logx.Duration("lookback", lookback))
		return
	}

	eventsFetched.Add(float64(len(batch.Events)))
	fresh, next := Admit(batch, r.seen, r.now())

	r.log.Info("poll cycle",
		logx.Int("fetched", len(batch.Events)),
		logx.Int("declared", batch.Count),
		logx.Int("fresh", len(fresh)),
		logx.Duration("lookback", lookback),
	)

	for _, ev := range fresh {
		// Observe shutdown between dispatches so a multi-event burst
		// cannot delay it by minutes of pacing.
		if ctx.Err() != nil {
			break
		}

		eventsFresh.Inc()
		r.logEvent(ev)

		out := r.dispatch.Dispatch(ctx, ev)
		switch out.Code {
		case Sent:
			alertsSent.Inc()
			r.bump(func(s *Stats) { s.AlertsSent++ })
		case SentPartially, Skipped:
			r.log.Warn("alert degraded",
				logx.String("event_id", ev.ID),
				logx.String("outcome", out.Code.String()),
				logx.String("reason", out.Reason),
			)
		}

		if ev.Magnitude >= r.cfg.SignificantMagnitude {
			r.log.Warn("significant earthquake",
				logx.Float64("magnitude", ev.Magnitude),
				logx.String("place", ev.Place),
			)
		}
	}

	r.bump(func(s *Stats) {
		s.EventsFetched += uint64(len(batch.Events))
		s.EventsFresh += uint64(len(fresh))
		s.SeenIDs = len(next)
	})

	r.seen = next
	seenIDs.Set(float64(len(next)))
}

func (r *Runner) logEvent(ev quake.Event) {
	r.log.Info("new earthquake",
		logx.String("event_id", ev.ID),
		logx.Float64("magnitude", ev.Magnitude),
		logx.String("place", ev.Place),
		logx.Time("time", ev.Time),
		logx.Float64("lat", ev.Latitude),
		logx.Float64("lon", ev.Longitude),
		logx.Float64("depth_km", ev.DepthKm),
		logx.String("status", ev.Status),
	)
}

func (r *Runner) bump(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()
}

// Stats returns a snapshot of the runner counters. Safe for concurrent use.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
