package quake

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestFetchQueryParameters(t *testing.T) {
	t.Parallel()
	var gotURL *url.URL
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL
		w.Write([]byte(`{"metadata": {"count": 0}, "features": []}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Host: srv.URL})
	start := time.Date(2025, 5, 29, 12, 0, 0, 0, time.UTC)
	_, err := c.Fetch(context.Background(), Query{
		MinMagnitude: 2.0,
		StartTime:    start,
		Limit:        50,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotURL.Path != "/fdsnws/event/1/query" {
		t.Fatalf("path = %q", gotURL.Path)
	}
	q := gotURL.Query()
	checks := map[string]string{
		"format":       "geojson",
		"minmagnitude": "2",
		"starttime":    "2025-05-29T12:00:00Z",
		"limit":        "50",
		"minlatitude":  "33",
		"maxlatitude":  "35",
		"minlongitude": "-120",
		"maxlongitude": "-116",
	}
	for k, want := range checks {
		if got := q.Get(k); got != want {
			t.Errorf("param %s = %q, want %q", k, got, want)
		}
	}
	if q.Has("maxmagnitude") || q.Has("endtime") {
		t.Errorf("zero-valued params leaked into query: %v", q)
	}
}

func TestFetchParsesBatch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Host: srv.URL})
	batch, err := c.Recent(context.Background(), 2.0, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(batch.Events) != 2 {
		t.Fatalf("events = %d, want 2", len(batch.Events))
	}
}

func TestFetchBadStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Bad Request: starttime must precede endtime", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Host: srv.URL})
	_, err := c.Fetch(context.Background(), Query{})
	if err == nil {
		t.Fatal("want error")
	}
	if !IsBadStatus(err) {
		t.Fatalf("IsBadStatus = false for %v", err)
	}
	if IsUnreachable(err) || IsMalformed(err) {
		t.Fatalf("error classified under multiple kinds: %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusBadRequest {
		t.Fatalf("status = %v, want 400", err)
	}
}

func TestFetchMalformedPayload(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"features": [`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Host: srv.URL})
	_, err := c.Fetch(context.Background(), Query{})
	if !IsMalformed(err) {
		t.Fatalf("IsMalformed = false for %v", err)
	}
}

func TestFetchUnreachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	c := NewClient(ClientConfig{Host: srv.URL, Timeout: time.Second})
	_, err := c.Fetch(context.Background(), Query{})
	if !IsUnreachable(err) {
		t.Fatalf("IsUnreachable = false for %v", err)
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Parallel()
	c := NewClient(ClientConfig{})
	if c.host != "earthquake.usgs.gov" {
		t.Fatalf("host = %q", c.host)
	}
	if c.bounds != DefaultBounds {
		t.Fatalf("bounds = %+v", c.bounds)
	}
}
