package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/darmiel/kartei/internal/api/presenter"
)

var ErrInvalidSession = errors.New("invalid session token")

type APIError struct {
	StatusCode    int
	Code          string
	CorrelationID string
	Message       string
	Details       map[string]any
}

func (e APIError) Error() string {
	return fmt.Sprintf("api error: '%s' (code: %s, correlation: %s)", e.Message, e.Code, e.CorrelationID)
}

// NotYetAvailableError is returned when the server answered with the 202 countdown payload.
type NotYetAvailableError struct {
	AvailableAt   time.Time
	DaysRemaining int
	CorrelationID string
}

func (e *NotYetAvailableError) Error() string {
	return fmt.Sprintf("not yet available: %d day(s) remaining, available at %s",
		e.DaysRemaining, e.AvailableAt.Format(time.RFC3339))
}

func (c *Client) get(ctx context.Context, url string, result any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, url string, payload, result any) (string, error) {
	return c.sendJSON(ctx, http.MethodPost, url, payload, result)
}

func (c *Client) put(ctx context.Context, url string, payload, result any) (string, error) {
	return c.sendJSON(ctx, http.MethodPut, url, payload, result)
}

func (c *Client) sendJSON(ctx context.Context, method, url string, payload, result any) (string, error) {
	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("marshaling payload: %w", err)
		}
		body = bytes.NewBuffer(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, result)
}

func parseErrorResponse(resp *http.Response) error {
	var errResp presenter.ErrorResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("request failed with status %d and unreadable body: %w", resp.StatusCode, err)
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		if resp.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrInvalidSession, errResp.Error)
		}
		return APIError{
			StatusCode:    resp.StatusCode,
			Code:          errResp.Code,
			CorrelationID: errResp.CorrelationID,
			Message:       errResp.Error,
			Details:       errResp.Details,
		}
	}
	return fmt.Errorf("api error: *unparsed '%s' (status %d)", string(body), resp.StatusCode)
}

func parseNotYetAvailable(resp *http.Response) error {
	var payload presenter.NotYetAvailableResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return &NotYetAvailableError{
		AvailableAt:   payload.AvailableAt,
		DaysRemaining: payload.DaysRemaining,
		CorrelationID: payload.CorrelationID,
	}
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	// inject auth token if available
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection failed: %w", err)
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, result any) (string, error) {
	resp, err := c.send(req)
	if err != nil {
		return "", err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode >= 400 {
		return correlationFromResponse(resp), parseErrorResponse(resp)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return correlationFromResponse(resp), fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return correlationFromResponse(resp), nil
}

func correlationFromResponse(resp *http.Response) string {
	if resp == nil {
		return ""
	}
	return resp.Header.Get("X-Correlation-ID")
}
