package lms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"enrollsync/internal/model"
	"enrollsync/pkg/config"
	"enrollsync/pkg/logger"
)

// Client talks to the external LMS REST API under a request-count quota.
// All calls pass through the rate limiter before dispatch; a server-side
// 429 triggers one transparent retry after a capped backoff.
type Client struct {
	baseURL    string
	apiKey     string
	subdomain  string
	httpClient *http.Client
	limiter    *RateLimiter
	retryAfter time.Duration

	sleep func(time.Duration)
}

// NewClient creates the LMS API client from configuration.
func NewClient(cfg *config.LMSConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.thinkific.com/api/public/v1"
	}

	return &Client{
		baseURL:   baseURL,
		apiKey:    cfg.APIKey,
		subdomain: cfg.Subdomain,
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		limiter:    NewRateLimiter(cfg.MaxRequests, cfg.Window(), cfg.RetryAfter()),
		retryAfter: cfg.RetryAfter(),
		sleep:      time.Sleep,
	}
}

// ListEnrollments lists enrollments matching the filter.
func (c *Client) ListEnrollments(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	q := url.Values{}
	if filter.Page > 0 {
		q.Set("page", strconv.Itoa(filter.Page))
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Sort != "" {
		q.Set("sort", filter.Sort)
	}
	if filter.CourseID != "" {
		q.Set("query[course_id]", filter.CourseID)
	}
	if filter.UserID != "" {
		q.Set("query[user_id]", filter.UserID)
	}
	if filter.Completed != nil {
		q.Set("query[completed]", strconv.FormatBool(*filter.Completed))
	}
	if !filter.UpdatedSince.IsZero() {
		q.Set("query[updated_at_gte]", filter.UpdatedSince.Format(time.RFC3339))
	}

	var resp ListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/enrollments", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListEnrollmentsSince lists enrollments updated after the cursor's
// watermark, ascending by update time.
func (c *Client) ListEnrollmentsSince(ctx context.Context, cursor model.SyncCursor, page, limit int) (*ListResponse, error) {
	return c.ListEnrollments(ctx, ListFilter{
		Page:         page,
		Limit:        limit,
		Sort:         "updated_at:asc",
		UpdatedSince: cursor.LastProcessedAt,
	})
}

// GetEnrollment fetches a single enrollment.
func (c *Client) GetEnrollment(ctx context.Context, enrollmentID string) (*model.EnrollmentData, error) {
	var resp model.EnrollmentData
	if err := c.doRequest(ctx, http.MethodGet, "/enrollments/"+enrollmentID, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateEnrollment creates an enrollment on the LMS.
func (c *Client) CreateEnrollment(ctx context.Context, req *CreateEnrollmentRequest) (*model.EnrollmentData, error) {
	var resp model.EnrollmentData
	if err := c.doRequest(ctx, http.MethodPost, "/enrollments", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateEnrollment patches an enrollment on the LMS.
func (c *Client) UpdateEnrollment(ctx context.Context, enrollmentID string, patch map[string]interface{}) error {
	return c.doRequest(ctx, http.MethodPut, "/enrollments/"+enrollmentID, nil, patch, nil)
}

// HealthCheck issues a minimal listing call and reports reachability.
func (c *Client) HealthCheck(ctx context.Context) bool {
	_, err := c.ListEnrollments(ctx, ListFilter{Page: 1, Limit: 1})
	if err != nil {
		logger.WarnCtx(ctx, "lms health check failed: %v", err)
		return false
	}
	return true
}

// doRequest performs one rate-limited call, decoding the response into out.
// Responses of 429 are retried once after a capped backoff; the retry is
// invisible to the caller.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	status, respData, err := c.dispatch(ctx, method, path, query, payload)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		backoff := c.retryAfter * 2
		if backoff > 5*time.Second {
			backoff = 5 * time.Second
		}
		logger.WarnCtx(ctx, "lms rate limit exceeded, backing off %v before retry", backoff)
		c.sleep(backoff)

		status, respData, err = c.dispatch(ctx, method, path, query, payload)
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return &APIError{StatusCode: status, Message: truncate(string(respData), 512)}
	}

	if out != nil {
		if err := json.Unmarshal(respData, out); err != nil {
			return &DecodeError{Err: err}
		}
	}
	return nil
}

// dispatch admits the call through the rate limiter and executes it once.
func (c *Client) dispatch(ctx context.Context, method, path string, query url.Values, payload []byte) (int, []byte, error) {
	if err := c.limiter.Acquire(ctx); err != nil {
		return 0, nil, &APIError{Message: fmt.Sprintf("rate limit wait aborted: %v", err)}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Auth-API-Key", c.apiKey)
	req.Header.Set("X-Auth-Subdomain", c.subdomain)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, &APIError{Message: fmt.Sprintf("failed to read response: %v", err)}
	}

	logger.DebugCtx(ctx, "lms request: %s %s, status: %d", method, path, resp.StatusCode)
	return resp.StatusCode, respData, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
