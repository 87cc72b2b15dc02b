package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abrennan/tv-schedule-service/internal/models"
)

const sampleBody = `{
	"data": {
		"items": [
			{
				"id": "airing-1",
				"season": {"number": 2},
				"episode": {"number": 5},
				"tvShow": {"id": "show-1", "title": "Night News", "description": "Daily news."},
				"startTime": "2024-10-15T20:00:00Z",
				"endTime": "2024-10-15T21:00:00Z"
			},
			{
				"id": "airing-2",
				"season": {"number": 1},
				"episode": {"number": null},
				"tvShow": {"id": "show-2", "title": "Late Movie", "description": "Feature film."},
				"startTime": "2024-10-15T21:00:00Z",
				"endTime": "2024-10-15T23:00:00Z"
			}
		]
	}
}`

func day(t *testing.T, s string) models.Day {
	t.Helper()
	d, err := models.ParseDay(s)
	if err != nil {
		t.Fatalf("ParseDay(%q): %v", s, err)
	}
	return d
}

func drain(t *testing.T, stream Stream) []AiringRecord {
	t.Helper()
	defer func() { _ = stream.Close() }()
	var records []AiringRecord
	for stream.Next() {
		records = append(records, stream.Record())
	}
	if err := stream.Err(); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return records
}

func TestFetchDayRequestShape(t *testing.T) {
	var gotVariables string
	var gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVariables = r.URL.Query().Get("variables")
		gotAccept = r.Header.Get("Accept")
		_, _ = w.Write([]byte(`{"data":{"items":[]}}`))
	}))
	defer srv.Close()

	c, err := NewEPGClient(srv.URL, "tv.example.com", "airing", 5*time.Second)
	if err != nil {
		t.Fatalf("NewEPGClient: %v", err)
	}
	stream, err := c.FetchDay(context.Background(), day(t, "2024-10-15"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	_ = stream.Close()

	var vars struct {
		Date   string `json:"date"`
		Domain string `json:"domain"`
		Type   string `json:"type"`
	}
	if err := json.Unmarshal([]byte(gotVariables), &vars); err != nil {
		t.Fatalf("variables is not JSON: %v (raw %q)", err, gotVariables)
	}
	if vars.Date != "2024-10-15T00:00:00.000Z" {
		t.Errorf("variables.date = %q, want 2024-10-15T00:00:00.000Z", vars.Date)
	}
	if vars.Domain != "tv.example.com" || vars.Type != "airing" {
		t.Errorf("variables identity = %q/%q", vars.Domain, vars.Type)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want application/json", gotAccept)
	}
}

func TestFetchDayForwardsCorrelationID(t *testing.T) {
	var gotCorrID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCorrID = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(`{"data":{"items":[]}}`))
	}))
	defer srv.Close()

	c, _ := NewEPGClient(srv.URL, "d", "t", 5*time.Second)
	ctx := context.WithValue(context.Background(), "correlation_id", "corr-123")
	stream, err := c.FetchDay(ctx, day(t, "2024-10-15"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	_ = stream.Close()

	if gotCorrID != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", gotCorrID)
	}
}

func TestFetchDayParsesRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleBody))
	}))
	defer srv.Close()

	c, _ := NewEPGClient(srv.URL, "d", "t", 5*time.Second)
	stream, err := c.FetchDay(context.Background(), day(t, "2024-10-15"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	records := drain(t, stream)

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	first := records[0]
	if first.ID != "airing-1" || first.ShowID != "show-1" || first.ShowTitle != "Night News" {
		t.Errorf("first record = %+v", first)
	}
	if first.Season != 2 || first.Episode == nil || *first.Episode != 5 {
		t.Errorf("first season/episode = %d/%v", first.Season, first.Episode)
	}
	if records[1].Episode != nil {
		t.Errorf("null episode decoded as %v, want nil", *records[1].Episode)
	}
	if records[1].StartTime != "2024-10-15T21:00:00Z" {
		t.Errorf("second startTime = %q", records[1].StartTime)
	}
}

func TestFetchDayEmptyItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"items":[]}}`))
	}))
	defer srv.Close()

	c, _ := NewEPGClient(srv.URL, "d", "t", 5*time.Second)
	stream, err := c.FetchDay(context.Background(), day(t, "2024-10-15"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	if records := drain(t, stream); len(records) != 0 {
		t.Errorf("got %d records from empty items, want 0", len(records))
	}
}

func TestFetchDayStatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"not found", http.StatusNotFound, ErrNoData},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
		{"bad request", http.StatusBadRequest, ErrRejected},
		{"unauthorized", http.StatusUnauthorized, ErrRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, _ := NewEPGClient(srv.URL, "d", "t", 5*time.Second)
			_, err := c.FetchDay(context.Background(), day(t, "2024-10-15"))
			if !errors.Is(err, tt.want) {
				t.Errorf("FetchDay error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFetchDayTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	c, _ := NewEPGClient(srv.URL, "d", "t", time.Second)
	_, err := c.FetchDay(context.Background(), day(t, "2024-10-15"))
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("FetchDay error = %v, want ErrUnavailable", err)
	}
}

func TestFetchDayMalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>error</html>"},
		{"missing data", `{"other":{}}`},
		{"missing items", `{"data":{"other":[]}}`},
		{"items not array", `{"data":{"items":{}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, _ := NewEPGClient(srv.URL, "d", "t", 5*time.Second)
			_, err := c.FetchDay(context.Background(), day(t, "2024-10-15"))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("FetchDay error = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestStreamErrMidBody(t *testing.T) {
	// Envelope is valid, the second item is truncated garbage. FetchDay
	// succeeds; the failure surfaces through the stream's Err.
	body := strings.Replace(sampleBody, `"id": "airing-2",`, `"id": ]]`, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c, _ := NewEPGClient(srv.URL, "d", "t", 5*time.Second)
	stream, err := c.FetchDay(context.Background(), day(t, "2024-10-15"))
	if err != nil {
		t.Fatalf("FetchDay: %v", err)
	}
	defer func() { _ = stream.Close() }()

	var n int
	for stream.Next() {
		n++
	}
	if n != 1 {
		t.Errorf("records before failure = %d, want 1", n)
	}
	if !errors.Is(stream.Err(), ErrMalformed) {
		t.Errorf("stream.Err() = %v, want ErrMalformed", stream.Err())
	}
}

func TestNewEPGClientValidation(t *testing.T) {
	if _, err := NewEPGClient("", "d", "t", time.Second); err == nil {
		t.Error("expected error for empty base URL")
	}
}
