// Package device wraps the wearable gateway's REST and WebSocket APIs.
// It provides an [Adapter] with a single-attempt query operation per vital
// type, a connection-status snapshot, and a WebSocket watcher for connection
// change events.
//
// Pairing and connection establishment are the gateway's job; the adapter only
// observes the link and issues queries.
package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/njoerd114/vitalsync/internal/model"
)

// Outcome classifies the result of a device query.
type Outcome int

const (
	// OutcomeSucceeded means the device returned one or more records.
	OutcomeSucceeded Outcome = iota
	// OutcomeNoRecord means the device was reachable but had nothing to
	// return. Not an error: the UI shows "no data yet", not "sync broke".
	OutcomeNoRecord
	// OutcomeUnavailable means the connected device does not support the
	// queried vital.
	OutcomeUnavailable
	// OutcomeFailed means the query failed (transport or gateway error).
	OutcomeFailed
)

// String returns the outcome label used in logs and failure reasons.
func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeNoRecord:
		return "no_record"
	case OutcomeUnavailable:
		return "unavailable"
	default:
		return "failed"
	}
}

// QueryResult is the full result of one device query. Reason is set only for
// OutcomeFailed and OutcomeUnavailable.
type QueryResult struct {
	Outcome  Outcome
	Reason   string
	Readings []model.Reading
}

// Adapter talks to the wearable gateway. Create one with [NewAdapter].
type Adapter struct {
	baseURL string
	hc      *http.Client
	log     *slog.Logger
}

// NewAdapter creates an Adapter for the gateway at baseURL.
func NewAdapter(baseURL string, logger *slog.Logger) *Adapter {
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// NewAdapterWithClient creates an Adapter with a caller-supplied HTTP client.
// Intended for tests.
func NewAdapterWithClient(baseURL string, hc *http.Client, logger *slog.Logger) *Adapter {
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), hc: hc, log: logger}
}

// statusResponse is the JSON shape of GET /api/v1/status.
type statusResponse struct {
	Connected bool   `json:"connected"`
	Device    string `json:"device,omitempty"`
}

// queryRequest is the JSON body of POST /api/v1/query.
type queryRequest struct {
	Vital string `json:"vital"`
}

// queryResponse is the JSON shape of the gateway's query reply.
// Status is one of "ok", "no_record", "unavailable", "error".
type queryResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Records []rawRecord `json:"records,omitempty"`
}

// Connected reports whether a wearable is currently linked to the gateway.
func (a *Adapter) Connected(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/v1/status", nil)
	if err != nil {
		return false, fmt.Errorf("create status request: %w", err)
	}

	resp, err := a.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("query gateway status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("gateway returned unexpected status %d", resp.StatusCode)
	}

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return false, fmt.Errorf("parse status response: %w", err)
	}
	return st.Connected, nil
}

// Query asks the connected device for all available records of one vital type.
// Single attempt, no retry. Transport and decode failures are mapped to
// OutcomeFailed; the four outcomes are never collapsed into each other.
func (a *Adapter) Query(ctx context.Context, vital model.VitalType) QueryResult {
	body, _ := json.Marshal(queryRequest{Vital: string(vital)}) //nolint:errcheck // fixed struct always marshals

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/query", bytes.NewReader(body))
	if err != nil {
		return QueryResult{Outcome: OutcomeFailed, Reason: fmt.Sprintf("create query request: %v", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.hc.Do(req)
	if err != nil {
		return QueryResult{Outcome: OutcomeFailed, Reason: fmt.Sprintf("device query transport error: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return QueryResult{Outcome: OutcomeFailed, Reason: fmt.Sprintf("gateway returned status %d", resp.StatusCode)}
	}

	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return QueryResult{Outcome: OutcomeFailed, Reason: fmt.Sprintf("parse query response: %v", err)}
	}

	switch qr.Status {
	case "ok":
		readings, err := decodeRecords(vital, qr.Records)
		if err != nil {
			return QueryResult{Outcome: OutcomeFailed, Reason: err.Error()}
		}
		a.log.Debug("device query succeeded", "vital", vital, "records", len(readings))
		return QueryResult{Outcome: OutcomeSucceeded, Readings: readings}
	case "no_record":
		return QueryResult{Outcome: OutcomeNoRecord}
	case "unavailable":
		return QueryResult{Outcome: OutcomeUnavailable, Reason: fmt.Sprintf("device does not support %s", vital)}
	case "error":
		return QueryResult{Outcome: OutcomeFailed, Reason: qr.Message}
	default:
		return QueryResult{Outcome: OutcomeFailed, Reason: fmt.Sprintf("unknown gateway status %q", qr.Status)}
	}
}
