package monitor

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"udpquake/internal/mesh"
	"udpquake/internal/quake"
	"udpquake/pkg/logx"
)

// Alert policy knobs. The threshold is a strict greater-than: an event at
// exactly TextAlertThreshold gets no text packet.
const (
	TextAlertThreshold = 3.5
	DefaultSendSpacing = 3 * time.Second

	maxPlaceLabel = 20

	minAltitudeMeters = -10000
	maxAltitudeMeters = 0
)

// OutcomeCode classifies the result of dispatching one event.
type OutcomeCode int

const (
	// Sent: every packet for this event went out.
	Sent OutcomeCode = iota
	// SentPartially: at least one packet went out, at least one failed.
	SentPartially
	// Skipped: nothing went out.
	Skipped
)

func (c OutcomeCode) String() string {
	switch c {
	case Sent:
		return "sent"
	case SentPartially:
		return "sent_partially"
	case Skipped:
		return "skipped"
	default:
		return "unknown"
	}
}

type Outcome struct {
	Code   OutcomeCode
	Reason string
}

type DispatcherConfig struct {
	// AlertThreshold is the magnitude above which a text alert is sent.
	AlertThreshold float64
	// SendSpacing is the pause after each outbound packet. The mesh has no
	// flow control, so pacing is the dispatcher's job, not the caller's.
	SendSpacing time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.AlertThreshold == 0 {
		c.AlertThreshold = TextAlertThreshold
	}
	if c.SendSpacing == 0 {
		c.SendSpacing = DefaultSendSpacing
	}
	return c
}

// Dispatcher turns one seismic event into mesh packets: a node announcement,
// an optional text alert, and a position report.
//
// Transport failures never escape Dispatch: each send is wrapped, logged,
// and the remaining packets are still attempted. One bad alert must not
// abort the poll cycle or starve later events in the same batch.
type Dispatcher struct {
	transport mesh.Transport
	cfg       DispatcherConfig
	log       logx.Logger
}

func NewDispatcher(transport mesh.Transport, cfg DispatcherConfig, log logx.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		cfg:       cfg.withDefaults(),
		log:       log.With(logx.String("component", "dispatch")),
	}
}

// Dispatch publishes the alert packets for one event and reports the outcome.
// It always returns normally.
func (d *Dispatcher) Dispatch(ctx context.Context, ev quake.Event) Outcome {
	node := mesh.NodeInfo{
		ID:        "!" + alertToken(ev.Magnitude, ev.Place, ev.Time.UnixMilli()),
		LongName:  truncateLabel(ev.Place, maxPlaceLabel),
		ShortName: magnitudeLabel(ev.Magnitude),
	}

	attempted := 0
	failed := 0
	var lastFail string

	send := func(packet string, fn func(context.Context) error) {
		attempted++
		if err := fn(ctx); err != nil {
			failed++
			lastFail = packet
			dispatchErrors.Inc()
			d.log.Error("send failed",
				logx.String("packet", packet),
				logx.String("event_id", ev.ID),
				logx.Err(err),
			)
		}
		d.pace(ctx)
	}

	send("nodeinfo", func(ctx context.Context) error {
		return d.transport.AnnounceIdentity(ctx, node)
	})

	if ev.Magnitude > d.cfg.AlertThreshold {
		msg := alertMessage(ev, d.log)
		send("text", func(ctx context.Context) error {
			return d.transport.SendText(ctx, msg)
		})
	}

	send("position", func(ctx context.Context) error {
		return d.transport.SendPosition(ctx, mesh.Position{
			Latitude:       ev.Latitude,
			Longitude:      ev.Longitude,
			AltitudeMeters: altitudeMeters(ev.DepthKm),
		})
	})

	switch {
	case failed == 0:
		d.log.Info("alert dispatched",
			logx.String("event_id", ev.ID),
			logx.Float64("magnitude", ev.Magnitude),
			logx.String("place", ev.Place),
		)
		return Outcome{Code: Sent}
	case failed < attempted:
		return Outcome{Code: SentPartially, Reason: fmt.Sprintf("%s send failed", lastFail)}
	default:
		return Outcome{Code: Skipped, Reason: "all sends failed"}
	}
}

// pace enforces the fixed inter-send delay, bailing out early on shutdown.
func (d *Dispatcher) pace(ctx context.Context) {
	if d.cfg.SendSpacing <= 0 {
		return
	}
	t := time.NewTimer(d.cfg.SendSpacing)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ---- pure alert formatting ----

// alertToken derives the synthetic node id for one alert: the first 8 hex
// chars of an md5 over magnitude, place and occurrence epoch-millis.
// Deterministic for identical inputs; unrelated to the feed's event id.
func alertToken(magnitude float64, place string, whenMillis int64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%v%s%d", magnitude, place, whenMillis)))
	return hex.EncodeToString(sum[:])[:8]
}

func truncateLabel(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

func magnitudeLabel(m float64) string {
	return fmt.Sprintf("%v", m)
}

// altitudeMeters converts event depth to the position packet altitude:
// negated, clamped to [-10000, 0], rounded to an integer. Depths beyond
// 10 km report the -10000 floor; zero or negative depths report 0.
func altitudeMeters(depthKm float64) int {
	alt := -(depthKm * 1000)
	alt = math.Max(float64(minAltitudeMeters), math.Min(float64(maxAltitudeMeters), alt))
	return int(math.Round(alt))
}

func alertMessage(ev quake.Event, log logx.Logger) string {
	when, ok := formatEventTime(ev.Time)
	if !ok {
		log.Warn("event time not representable; using placeholder",
			logx.String("event_id", ev.ID),
			logx.Int64("epoch_ms", ev.Time.UnixMilli()),
		)
	}
	return fmt.Sprintf("🚨 EARTHQUAKE ALERT 🚨\n%s\n%s\nMag: %.1f Depth: %.1f km",
		when, ev.Place, ev.Magnitude, ev.DepthKm)
}

// formatEventTime renders the occurrence time, or a sentinel when the
// timestamp is outside the representable window (years 1902..9999 — the
// range a 32-bit epoch or a sane feed can produce).
func formatEventTime(t time.Time) (string, bool) {
	y := t.Year()
	if y < 1902 || y > 9999 {
		return "Unknown time", false
	}
	return t.UTC().Format("2006-01-02 15:04:05 UTC"), true
}
