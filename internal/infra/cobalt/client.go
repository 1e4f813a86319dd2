// Package cobalt provides a client for the cobalt media extraction API.
package cobalt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Errors classified from the API's error text.
var (
	ErrUnavailable = errors.New("cobalt: video unavailable")
	ErrRestricted  = errors.New("cobalt: video is private or region blocked")
	ErrNotFound    = errors.New("cobalt: video not found")
	ErrBadResponse = errors.New("cobalt: malformed response")
)

// Config represents cobalt client configuration.
type Config struct {
	BaseURL        string  // API endpoint
	RequestsPerSec float64 // Outbound request rate cap
	Timeout        time.Duration
}

// Client is a cobalt API client. Requests are rate limited so a burst of
// play commands does not trip the hosted instance's abuse protection.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type request struct {
	URL string `json:"url"`
}

type response struct {
	Status string `json:"status"`
	URL    string `json:"url"`
	Text   string `json:"text"`
}

// New creates a new cobalt client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cobalt.tools/api/json"
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), 1),
	}
}

// FetchStream asks the API for a direct audio stream URL for a video page
// URL.
func (c *Client) FetchStream(ctx context.Context, videoURL string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", errors.Wrap(err, "waiting for rate limiter")
	}

	body, err := json.Marshal(request{URL: videoURL})
	if err != nil {
		return "", errors.Wrap(err, "encoding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "calling cobalt API")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(err, "reading response")
	}
	if resp.StatusCode != http.StatusOK {
		zlog.Debug().Msgf("cobalt: non-200 response: status=%d body=%s", resp.StatusCode, data)
		return "", errors.Wrapf(ErrBadResponse, "status %d", resp.StatusCode)
	}

	var r response
	if err := json.Unmarshal(data, &r); err != nil {
		return "", errors.Wrapf(ErrBadResponse, "decoding response: %v", err)
	}

	switch r.Status {
	case "success", "stream", "redirect", "tunnel":
		if r.URL == "" {
			return "", errors.Wrap(ErrBadResponse, "success status without a stream URL")
		}
		return r.URL, nil
	case "error", "rate-limit":
		return "", ClassifyErrorText(r.Text)
	default:
		return "", errors.Wrapf(ErrBadResponse, "unexpected status %q", r.Status)
	}
}

// ClassifyErrorText maps the API's free-form error text onto error kinds.
func ClassifyErrorText(text string) error {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "private"):
		return errors.Wrapf(ErrRestricted, "%s", text)
	case strings.Contains(lower, "region") || strings.Contains(lower, "country"):
		return errors.Wrapf(ErrRestricted, "%s", text)
	case strings.Contains(lower, "not available") || strings.Contains(lower, "not found"):
		return errors.Wrapf(ErrNotFound, "%s", text)
	case strings.Contains(lower, "unavailable"):
		return errors.Wrapf(ErrUnavailable, "%s", text)
	default:
		return errors.Wrapf(ErrUnavailable, "cobalt error: %s", text)
	}
}
