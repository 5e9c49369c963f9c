package pulseboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Pulseboard HTTP API client focused on reports.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ReportOptions narrow a report request.
type ReportOptions struct {
	Range     string
	ProjectID string
}

// Overview is the dashboard report (partial; unknown fields are ignored).
type Overview struct {
	GeneratedAt string `json:"generated_at"`
	RangeDays   int    `json:"range_days"`
	Projects    struct {
		Total   int `json:"total"`
		Active  int `json:"active"`
		Overdue int `json:"overdue"`
	} `json:"projects"`
	Tasks struct {
		Total          int            `json:"total"`
		ByStatus       map[string]int `json:"by_status"`
		Overdue        int            `json:"overdue"`
		CompletionRate int            `json:"completion_rate"`
	} `json:"tasks"`
	Time struct {
		TotalHours    float64 `json:"total_hours"`
		BillableHours float64 `json:"billable_hours"`
	} `json:"time"`
}

// TrendPoint is one day of the productivity series.
type TrendPoint struct {
	Date           string `json:"date"`
	Completed      int    `json:"completed"`
	Total          int    `json:"total"`
	CompletionRate int    `json:"completion_rate"`
}

// Productivity is the trend report.
type Productivity struct {
	GeneratedAt string       `json:"generated_at"`
	RangeDays   int          `json:"range_days"`
	Trend       []TrendPoint `json:"trend"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Overview fetches the dashboard overview report.
func (c *Client) Overview(ctx context.Context, opts ReportOptions) (Overview, error) {
	var resp Overview
	err := c.do(ctx, http.MethodGet, reportPath("overview", opts), nil, &resp)
	return resp, err
}

// Productivity fetches the completion trend report.
func (c *Client) Productivity(ctx context.Context, opts ReportOptions) (Productivity, error) {
	var resp Productivity
	err := c.do(ctx, http.MethodGet, reportPath("productivity", opts), nil, &resp)
	return resp, err
}

// ExportCSV fetches the overview report as CSV bytes.
func (c *Client) ExportCSV(ctx context.Context, opts ReportOptions) ([]byte, error) {
	endpoint := reportPath("export", opts)
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return c.raw(ctx, endpoint+sep+"format=csv")
}

func reportPath(name string, opts ReportOptions) string {
	endpoint := "v0/reports/" + name
	q := url.Values{}
	if opts.Range != "" {
		q.Set("range", opts.Range)
	}
	if opts.ProjectID != "" {
		q.Set("project_id", opts.ProjectID)
	}
	if encoded := q.Encode(); encoded != "" {
		endpoint += "?" + encoded
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	resp, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, endpoint string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return b, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return c.HTTPClient.Do(req)
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
