package nasa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/couchcryptid/neo-radar-service/internal/domain"
	"github.com/couchcryptid/neo-radar-service/internal/observability"
)

const (
	feedPath = "/neo/rest/v1/feed"
	apodPath = "/planetary/apod"

	endpointFeed = "feed"
	endpointAPOD = "apod"

	// maxErrorBody bounds how much of a failed response is kept in the error.
	maxErrorBody = 512
)

// Client talks to the NASA NeoWs feed and APOD endpoints.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a NASA API client. baseURL is normally https://api.nasa.gov.
func NewClient(apiKey, baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// Feed returns the raw NeoWs feed document for the inclusive date range.
// The body is returned undecoded; domain.ParseFeed owns its interpretation.
func (c *Client) Feed(ctx context.Context, startDate, endDate string) ([]byte, error) {
	params := url.Values{
		"start_date": {startDate},
		"end_date":   {endDate},
	}
	body, err := c.get(ctx, feedPath, params, endpointFeed)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("neo feed fetched", "start_date", startDate, "end_date", endDate, "bytes", len(body))
	return body, nil
}

// PictureOfDay fetches the APOD record for date. Transport failures wrap
// domain.ErrTransport; a response missing the expected fields wraps
// domain.ErrMalformedRecord.
func (c *Client) PictureOfDay(ctx context.Context, date string) (domain.PictureOfDay, error) {
	body, err := c.get(ctx, apodPath, url.Values{"date": {date}}, endpointAPOD)
	if err != nil {
		return domain.PictureOfDay{}, err
	}

	var resp apodResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.PictureOfDay{}, fmt.Errorf("decode apod response: %w: %w", domain.ErrMalformedRecord, err)
	}
	if resp.MediaType == "" || resp.URL == "" {
		return domain.PictureOfDay{}, fmt.Errorf("apod response missing media_type or url: %w", domain.ErrMalformedRecord)
	}

	return domain.PictureOfDay{
		Date:        resp.Date,
		Title:       resp.Title,
		MediaType:   resp.MediaType,
		URL:         resp.URL,
		HDURL:       resp.HDURL,
		Explanation: resp.Explanation,
		Copyright:   resp.Copyright,
	}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, endpoint string) ([]byte, error) {
	start := time.Now()
	body, err := c.doRequest(ctx, path, params, endpoint)
	if c.metrics != nil {
		c.metrics.APIDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.metrics.APIRequests.WithLabelValues(endpoint, outcome).Inc()
	}
	return body, err
}

func (c *Client) doRequest(ctx context.Context, path string, params url.Values, endpoint string) ([]byte, error) {
	params.Set("api_key", c.apiKey)
	fullURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Keep the api_key out of logged errors.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = c.baseURL + path
		}
		return nil, fmt.Errorf("%s request: %w: %w", endpoint, domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("nasa api error", "endpoint", endpoint, "status", resp.StatusCode,
			"rate_limit_remaining", resp.Header.Get("X-RateLimit-Remaining"))
		return nil, fmt.Errorf("%s: nasa API status %d: %s: %w", endpoint, resp.StatusCode, body, domain.ErrTransport)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w: %w", endpoint, domain.ErrTransport, err)
	}
	return body, nil
}

// APOD API response type.
type apodResponse struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	MediaType   string `json:"media_type"`
	URL         string `json:"url"`
	HDURL       string `json:"hdurl"`
	Explanation string `json:"explanation"`
	Copyright   string `json:"copyright"`
}
