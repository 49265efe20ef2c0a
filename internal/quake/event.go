package quake

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is a single seismic event as reported by the feed.
//
// ID is the sole identity key: two fetches returning the same ID describe the
// same physical event even if other fields drifted (e.g. status upgraded from
// "automatic" to "reviewed").
type Event struct {
	ID        string
	Magnitude float64
	Place     string
	Time      time.Time
	Latitude  float64
	Longitude float64
	DepthKm   float64
	Type      string
	Status    string
	URL       string

	// FeltReports is the number of "did you feel it" reports, when present.
	FeltReports *int
}

// Batch is one feed response.
//
// Events preserves feed order (not guaranteed sorted by time). Count is the
// count the feed declared in its metadata; it may legitimately differ from
// len(Events) and is informational only — always iterate Events.
type Batch struct {
	Events      []Event
	Count       int
	GeneratedAt time.Time
}

// ---- GeoJSON wire types (USGS fdsnws) ----

type geoCollection struct {
	Metadata geoMetadata  `json:"metadata"`
	Features []geoFeature `json:"features"`
}

type geoMetadata struct {
	Generated int64 `json:"generated"` // epoch millis
	Count     int   `json:"count"`
}

type geoFeature struct {
	ID         string        `json:"id"`
	Properties geoProperties `json:"properties"`
	Geometry   geoGeometry   `json:"geometry"`
}

type geoProperties struct {
	Mag    *float64 `json:"mag"`
	Place  string   `json:"place"`
	Time   int64    `json:"time"` // epoch millis
	Type   string   `json:"type"`
	Status string   `json:"status"`
	URL    string   `json:"url"`
	Felt   *int     `json:"felt"`
}

type geoGeometry struct {
	// GeoJSON order: [longitude, latitude, depth_km]
	Coordinates []float64 `json:"coordinates"`
}

// ParseBatch decodes a USGS GeoJSON payload into a Batch.
func ParseBatch(data []byte) (Batch, error) {
	var fc geoCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return Batch{}, fmt.Errorf("decode geojson: %w", err)
	}

	events := make([]Event, 0, len(fc.Features))
	for _, f := range fc.Features {
		events = append(events, eventFromFeature(f))
	}

	count := fc.Metadata.Count
	if count == 0 {
		count = len(events)
	}

	return Batch{
		Events:      events,
		Count:       count,
		GeneratedAt: time.UnixMilli(fc.Metadata.Generated).UTC(),
	}, nil
}

func eventFromFeature(f geoFeature) Event {
	ev := Event{
		ID:          f.ID,
		Place:       f.Properties.Place,
		Time:        time.UnixMilli(f.Properties.Time).UTC(),
		Type:        f.Properties.Type,
		Status:      f.Properties.Status,
		URL:         f.Properties.URL,
		FeltReports: f.Properties.Felt,
	}
	// Magnitude may be absent upstream; treat as 0.
	if f.Properties.Mag != nil {
		ev.Magnitude = *f.Properties.Mag
	}
	if len(f.Geometry.Coordinates) >= 2 {
		ev.Longitude = f.Geometry.Coordinates[0]
		ev.Latitude = f.Geometry.Coordinates[1]
	}
	if len(f.Geometry.Coordinates) >= 3 {
		ev.DepthKm = f.Geometry.Coordinates[2]
	}
	return ev
}
