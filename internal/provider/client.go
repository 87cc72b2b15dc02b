package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/abrennan/tv-schedule-service/internal/models"
	"github.com/abrennan/tv-schedule-service/internal/observability"
)

// Client is the stream source contract: FetchDay yields a lazy sequence of
// airing records for one calendar day, terminable by error. A stream with
// zero records and no error means the provider has no data for that day.
type Client interface {
	FetchDay(ctx context.Context, day models.Day) (Stream, error)
}

// Stream iterates airing records in arrival order, bufio.Scanner style:
//
//	for st.Next() { rec := st.Record(); ... }
//	if err := st.Err(); err != nil { ... }
//
// Close releases the underlying response body and is safe to call at any
// point, including mid-iteration.
type Stream interface {
	Next() bool
	Record() AiringRecord
	Err() error
	Close() error
}

// AiringRecord is one airing event as delivered by the provider.
type AiringRecord struct {
	ID              string
	Season          int64
	Episode         *int64
	ShowID          string
	ShowTitle       string
	ShowDescription string
	StartTime       string
	EndTime         string
}

var (
	// ErrNoData signals the provider has nothing for the requested day (404).
	ErrNoData = errors.New("no data for requested day")
	// ErrUnavailable signals a provider-side failure: 5xx or transport error.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrMalformed signals an unparseable provider response.
	ErrMalformed = errors.New("malformed provider response")
	// ErrRejected signals an unexpected 4xx other than 404.
	ErrRejected = errors.New("provider rejected request")
)

// EPGClient fetches airing schedules from the EPG provider over HTTP. The
// provider takes a single "variables" query parameter holding a JSON
// object with the UTC-midnight date, domain, and guide type.
type EPGClient struct {
	baseURL   string
	domain    string
	guideType string
	timeout   time.Duration
	client    *http.Client
}

// NewEPGClient validates the base URL and returns a ready client.
func NewEPGClient(baseURL, domain, guideType string, timeout time.Duration) (*EPGClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	return &EPGClient{
		baseURL:   baseURL,
		domain:    domain,
		guideType: guideType,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// requestVariables is the JSON payload carried in the "variables" query
// parameter. Date is the requested day at UTC midnight with millisecond
// precision, e.g. 2024-10-15T00:00:00.000Z.
type requestVariables struct {
	Date   string `json:"date"`
	Domain string `json:"domain"`
	Type   string `json:"type"`
}

// FetchDay requests the day's schedule and returns a stream decoded
// incrementally from the response body. The HTTP status is classified
// before any record is read; decode failures surface later through the
// stream's Err.
func (c *EPGClient) FetchDay(ctx context.Context, day models.Day) (Stream, error) {
	start := time.Now()

	req, err := c.buildRequest(ctx, day)
	if err != nil {
		observability.EPGCallsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	resp, err := c.client.Do(req)
	duration := time.Since(start).Seconds()
	if err != nil {
		observability.EPGCallsTotal.WithLabelValues("error").Inc()
		observability.EPGCallDuration.WithLabelValues("error").Observe(duration)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: request for %s timed out: %v", ErrUnavailable, day, err)
		}
		return nil, fmt.Errorf("%w: request for %s failed: %v", ErrUnavailable, day, err)
	}

	status := statusLabel(resp.StatusCode)
	observability.EPGCallsTotal.WithLabelValues(status).Inc()
	observability.EPGCallDuration.WithLabelValues(status).Observe(duration)

	if err := classifyStatus(resp.StatusCode, day); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	stream, err := newAiringStream(resp.Body)
	if err != nil {
		_ = resp.Body.Close()
		return nil, err
	}
	return stream, nil
}

func (c *EPGClient) buildRequest(ctx context.Context, day models.Day) (*http.Request, error) {
	vars, err := json.Marshal(requestVariables{
		Date:   day.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Domain: c.domain,
		Type:   c.guideType,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request variables: %w", err)
	}

	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider base URL: %w", err)
	}
	params := url.Values{}
	params.Set("variables", string(vars))
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func classifyStatus(code int, day models.Day) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNoData, day)
	case code >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, code)
	default:
		return fmt.Errorf("%w: HTTP %d", ErrRejected, code)
	}
}

func statusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "success"
	case code == http.StatusNotFound:
		return "not_found"
	case code >= 400 && code < 500:
		return "client_error"
	case code >= 500:
		return "server_error"
	default:
		return "error"
	}
}

func extractCorrelationID(ctx context.Context) string {
	if v := ctx.Value("correlation_id"); v != nil {
		if corrID, ok := v.(string); ok {
			return corrID
		}
	}
	return ""
}

// wireItem mirrors one element of the provider's data.items array.
type wireItem struct {
	ID     string `json:"id"`
	Season struct {
		Number int64 `json:"number"`
	} `json:"season"`
	Episode struct {
		Number *int64 `json:"number"`
	} `json:"episode"`
	TvShow struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"tvShow"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// airingStream decodes data.items elements one at a time so the response
// is never materialized in full. A decode failure terminates iteration
// with ErrMalformed.
type airingStream struct {
	body io.ReadCloser
	dec  *json.Decoder
	rec  AiringRecord
	err  error
	done bool
}

// newAiringStream positions the decoder at the start of the data.items
// array. Any response not shaped {"data":{"items":[...]}} is malformed.
func newAiringStream(body io.ReadCloser) (*airingStream, error) {
	dec := json.NewDecoder(body)
	if err := seekItems(dec); err != nil {
		return nil, err
	}
	return &airingStream{body: body, dec: dec}, nil
}

// seekItems walks tokens through {"data":{"items": and stops after the
// opening bracket of the items array.
func seekItems(dec *json.Decoder) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	if err := seekKey(dec, "data"); err != nil {
		return err
	}
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	if err := seekKey(dec, "items"); err != nil {
		return err
	}
	return expectDelim(dec, '[')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformed, want, tok)
	}
	return nil
}

// seekKey advances within the current object until key is found, skipping
// the values of other keys.
func seekKey(dec *json.Decoder, key string) error {
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected object key, got %v", ErrMalformed, tok)
		}
		if name == key {
			return nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	return fmt.Errorf("%w: missing %q field", ErrMalformed, key)
}

func (s *airingStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}
	if !s.dec.More() {
		s.done = true
		return false
	}
	var item wireItem
	if err := s.dec.Decode(&item); err != nil {
		s.err = fmt.Errorf("%w: decode airing: %v", ErrMalformed, err)
		return false
	}
	s.rec = AiringRecord{
		ID:              item.ID,
		Season:          item.Season.Number,
		Episode:         item.Episode.Number,
		ShowID:          item.TvShow.ID,
		ShowTitle:       item.TvShow.Title,
		ShowDescription: item.TvShow.Description,
		StartTime:       item.StartTime,
		EndTime:         item.EndTime,
	}
	return true
}

func (s *airingStream) Record() AiringRecord { return s.rec }

func (s *airingStream) Err() error { return s.err }

func (s *airingStream) Close() error { return s.body.Close() }
