// Package monitor is the core of udpquake: the poll loop that fetches new
// seismic events from the feed, deduplicates them against a time-bounded
// seen set, and dispatches alerts onto the mesh.
//
// The pieces are deliberately separable:
//
//   - Admit is a pure function over (batch, seen, now) so dedup and eviction
//     are testable without I/O or timing.
//   - Dispatcher owns the alert policy (threshold, pacing, packet shapes)
//     and the catch-log-continue boundary around transport sends.
//   - Runner owns all loop state (seen set, first-cycle flag) and sequences
//     fetch -> admit -> dispatch -> sleep under a single goroutine.
package monitor
