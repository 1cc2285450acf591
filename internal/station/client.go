// Package station talks to the professional monitoring station gateway.
// Add and cancel calls are acknowledged synchronously; the station's
// decision arrives later as a correlated response event.
package station

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// AddAlarmRequest asks the station to open a monitoring case.
type AddAlarmRequest struct {
	CorrelationID string    `json:"correlation_id"`
	PlaceID       string    `json:"place_id"`
	IncidentID    string    `json:"incident_id"`
	AlertType     string    `json:"alert_type"`
	Alerts        []string  `json:"alerts,omitempty"`
	Population    string    `json:"population,omitempty"`
	Verified      bool      `json:"verified"`
	TTLSecs       int       `json:"ttl_secs"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// CancelAlarmRequest asks the station to stand down. TTLSecs tells the
// station how long the caller will wait for an answer.
type CancelAlarmRequest struct {
	CorrelationID string    `json:"correlation_id"`
	PlaceID       string    `json:"place_id"`
	IncidentID    string    `json:"incident_id"`
	CancelledBy   string    `json:"cancelled_by"`
	TTLSecs       int       `json:"ttl_secs"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Response is the station's asynchronous decision. Codes below 400
// accept the request; 4xx rejects it.
type Response struct {
	CorrelationID string `json:"correlation_id"`
	Code          int    `json:"code"`
	Message       string `json:"message,omitempty"`
}

// Accepted reports whether the station granted the request.
func (r Response) Accepted() bool {
	return r.Code < 400
}

// Client sends monitoring requests to the station gateway.
type Client interface {
	AddAlarm(ctx context.Context, req AddAlarmRequest) error
	CancelAlarm(ctx context.Context, req CancelAlarmRequest) error
}

// ErrStationUnavailable is returned when the gateway rejects or cannot
// accept a request.
var ErrStationUnavailable = errors.New("station: gateway unavailable")

// HTTPClient is a REST client for the station gateway.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient constructs a gateway client.
func NewHTTPClient(baseURL, token string) (*HTTPClient, error) {
	if baseURL == "" {
		return nil, errors.New("station: empty base url")
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// AddAlarm submits a monitoring request.
func (c *HTTPClient) AddAlarm(ctx context.Context, req AddAlarmRequest) error {
	if req.CorrelationID == "" || req.PlaceID == "" || req.IncidentID == "" {
		return errors.New("station: invalid add request")
	}
	return c.doJSON(ctx, http.MethodPost, "/api/alarms", req, nil)
}

// CancelAlarm submits a cancel request.
func (c *HTTPClient) CancelAlarm(ctx context.Context, req CancelAlarmRequest) error {
	if req.CorrelationID == "" || req.PlaceID == "" || req.IncidentID == "" {
		return errors.New("station: invalid cancel request")
	}
	return c.doJSON(ctx, http.MethodPost, "/api/alarms/cancel", req, nil)
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	if c == nil || c.client == nil {
		return errors.New("station: nil client")
	}
	var reqBody *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(payload)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: http %d", ErrStationUnavailable, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
