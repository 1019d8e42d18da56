// Package remote is the HTTP client for the vitals backend. It exposes the
// three operations the sync engine needs — fetch a day's records, fetch the
// daily aggregate series, upload a batch — plus a connectivity Ping for setup.
//
// Every call is a single attempt; the engine reports failures to its listener
// instead of retrying.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/njoerd114/vitalsync/internal/model"
)

// Client talks to the vitals backend on behalf of one user.
// Create one with [NewClient].
type Client struct {
	baseURL string
	token   string
	userID  string
	hc      *http.Client
	log     *slog.Logger
}

// NewClient creates a Client for the backend at baseURL, authenticating with
// the given bearer token.
func NewClient(baseURL, token, userID string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		userID:  userID,
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     logger,
	}
}

// NewClientWithHTTP creates a Client with a caller-supplied HTTP client.
// Intended for tests.
func NewClientWithHTTP(baseURL, token, userID string, hc *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		userID:  userID,
		hc:      hc,
		log:     logger,
	}
}

// wireRecord is the backend's JSON shape for one sample.
type wireRecord struct {
	TS    int64  `json:"ts"`
	Value string `json:"value"`
}

// wireDay is the backend's JSON shape for one daily aggregate row.
type wireDay struct {
	Date  string `json:"date"`
	Value string `json:"value"`
}

type dayResponse struct {
	Records []wireRecord `json:"records"`
}

type seriesResponse struct {
	Days []wireDay `json:"days"`
}

type uploadRequest struct {
	Records []wireRecord `json:"records"`
}

// Ping verifies connectivity and the access token.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/ping", nil)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

// FetchDay returns the backend's records of one vital for one calendar day,
// sorted ascending by timestamp on the backend side.
func (c *Client) FetchDay(ctx context.Context, vital model.VitalType, date string) ([]model.Reading, error) {
	path := fmt.Sprintf("/api/v1/users/%s/vitals/%s/days/%s",
		url.PathEscape(c.userID), url.PathEscape(string(vital)), url.PathEscape(date))

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s day %s: %w", vital, date, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var dr dayResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("parse %s day response: %w", vital, err)
	}

	readings := make([]model.Reading, 0, len(dr.Records))
	for _, rec := range dr.Records {
		v, v2, err := parseValue(vital, rec.Value)
		if err != nil {
			return nil, fmt.Errorf("record at ts %d: %w", rec.TS, err)
		}
		readings = append(readings, model.Reading{
			VitalType: vital,
			Timestamp: rec.TS,
			Value:     v,
			Value2:    v2,
		})
	}
	return readings, nil
}

// FetchDailySeries returns the backend's full daily aggregate series for one
// vital, sorted ascending by date on the backend side.
func (c *Client) FetchDailySeries(ctx context.Context, vital model.VitalType) ([]model.DailyAggregate, error) {
	path := fmt.Sprintf("/api/v1/users/%s/vitals/%s/daily",
		url.PathEscape(c.userID), url.PathEscape(string(vital)))

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s daily series: %w", vital, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var sr seriesResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("parse %s daily series: %w", vital, err)
	}

	aggs := make([]model.DailyAggregate, 0, len(sr.Days))
	for _, day := range sr.Days {
		v, v2, err := parseDailyValue(vital, day.Value)
		if err != nil {
			return nil, fmt.Errorf("day %s: %w", day.Date, err)
		}
		aggs = append(aggs, model.DailyAggregate{
			VitalType: vital,
			Date:      day.Date,
			Value:     v,
			Value2:    v2,
		})
	}
	return aggs, nil
}

// Upload pushes a batch of local readings to the backend. The backend
// deduplicates by (user, vital, timestamp), so re-uploading is safe.
func (c *Client) Upload(ctx context.Context, vital model.VitalType, readings []model.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	records := make([]wireRecord, 0, len(readings))
	for _, r := range readings {
		records = append(records, wireRecord{TS: r.Timestamp, Value: encodeValue(r)})
	}

	body, err := json.Marshal(uploadRequest{Records: records})
	if err != nil {
		return fmt.Errorf("marshal %s upload: %w", vital, err)
	}

	path := fmt.Sprintf("/api/v1/users/%s/vitals/%s",
		url.PathEscape(c.userID), url.PathEscape(string(vital)))

	resp, err := c.do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("upload %d %s readings: %w", len(readings), vital, err)
	}
	_ = resp.Body.Close()

	c.log.Debug("uploaded batch", "vital", vital, "count", len(readings))
	return nil
}

// do issues one request and maps error statuses. The caller owns the response
// body on success.
func (c *Client) do(ctx context.Context, method, path string, body *bytes.Reader) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		reqBody = body
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("backend returned 401 Unauthorized — check backend_token")
	}
	if resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("backend returned unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
