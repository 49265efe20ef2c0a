package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pollCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udpquake_poll_cycles_total",
		Help: "Completed poll cycles, including cycles abandoned on fetch failure.",
	})
	fetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udpquake_fetch_errors_total",
		Help: "Feed fetches that failed (cycle skipped).",
	})
	eventsFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udpquake_events_fetched_total",
		Help: "Events returned by the feed across all cycles.",
	})
	eventsFresh = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udpquake_events_fresh_total",
		Help: "Events admitted as new (not present in the seen set).",
	})
	alertsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udpquake_alerts_sent_total",
		Help: "Alerts fully dispatched to the mesh.",
	})
	dispatchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "udpquake_dispatch_errors_total",
		Help: "Individual mesh sends that failed inside dispatch.",
	})
	seenIDs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "udpquake_seen_ids",
		Help: "Event ids currently retained in the seen set.",
	})
)
