package quake

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const queryPath = "/fdsnws/event/1/query"

// Bounds is the geographic bounding box every query is constrained to.
type Bounds struct {
	MinLatitude  float64
	MaxLatitude  float64
	MinLongitude float64
	MaxLongitude float64
}

// DefaultBounds covers the Southern California region the service was
// originally deployed for.
var DefaultBounds = Bounds{
	MinLatitude:  33.0,
	MaxLatitude:  35.0,
	MinLongitude: -120.0,
	MaxLongitude: -116.0,
}

// Query holds the per-call feed parameters. Zero-valued fields are omitted
// from the request.
type Query struct {
	MinMagnitude float64
	MaxMagnitude float64
	StartTime    time.Time
	EndTime      time.Time
	Limit        int
}

type ClientConfig struct {
	// Host of the feed, without scheme. Default: earthquake.usgs.gov.
	Host    string
	Bounds  Bounds
	Timeout time.Duration
}

// Client fetches event batches from the USGS fdsnws feed.
// It is stateless; each Fetch is an independent idempotent request.
type Client struct {
	host   string
	bounds Bounds
	hc     *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "earthquake.usgs.gov"
	}
	bounds := cfg.Bounds
	if bounds == (Bounds{}) {
		bounds = DefaultBounds
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		host:   host,
		bounds: bounds,
		hc:     &http.Client{Timeout: timeout},
	}
}

// Fetch runs one feed query and returns the parsed batch.
// Failures are always *FetchError (unreachable / bad status / malformed).
func (c *Client) Fetch(ctx context.Context, q Query) (Batch, error) {
	u := c.buildURL(q)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Batch{}, fetchErr(KindUnreachable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return Batch{}, fetchErr(KindUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a short body snippet so operators see the feed's own message.
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Batch{}, &FetchError{
			Kind:   KindBadStatus,
			Status: resp.StatusCode,
			err:    fmt.Errorf("GET %s: %s", u, strings.TrimSpace(string(msg))),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Batch{}, fetchErr(KindUnreachable, err)
	}

	batch, err := ParseBatch(body)
	if err != nil {
		return Batch{}, fetchErr(KindMalformed, err)
	}
	return batch, nil
}

// Recent fetches recent events above a minimum magnitude with no time window.
func (c *Client) Recent(ctx context.Context, minMagnitude float64, limit int) (Batch, error) {
	return c.Fetch(ctx, Query{MinMagnitude: minMagnitude, Limit: limit})
}

func (c *Client) buildURL(q Query) string {
	params := url.Values{}
	params.Set("format", "geojson")
	params.Set("minlatitude", formatFloat(c.bounds.MinLatitude))
	params.Set("minlongitude", formatFloat(c.bounds.MinLongitude))
	params.Set("maxlatitude", formatFloat(c.bounds.MaxLatitude))
	params.Set("maxlongitude", formatFloat(c.bounds.MaxLongitude))

	if q.MinMagnitude != 0 {
		params.Set("minmagnitude", formatFloat(q.MinMagnitude))
	}
	if q.MaxMagnitude != 0 {
		params.Set("maxmagnitude", formatFloat(q.MaxMagnitude))
	}
	if !q.StartTime.IsZero() {
		params.Set("starttime", q.StartTime.UTC().Format(time.RFC3339))
	}
	if !q.EndTime.IsZero() {
		params.Set("endtime", q.EndTime.UTC().Format(time.RFC3339))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}

	scheme := "https"
	// Allow host:port with explicit scheme for tests.
	if strings.HasPrefix(c.host, "http://") || strings.HasPrefix(c.host, "https://") {
		return c.host + queryPath + "?" + params.Encode()
	}
	return scheme + "://" + c.host + queryPath + "?" + params.Encode()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
