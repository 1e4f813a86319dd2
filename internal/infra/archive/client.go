// Package archive provides a client for the archive.org search and
// download APIs, used as a last-resort audio source.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// ErrNoAudio indicates no verifiable audio file was found for the query.
var ErrNoAudio = errors.New("archive: no downloadable audio found")

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// audioExtensions in preference order. Identifiers typically carry a file
// named after themselves.
var audioExtensions = []string{".mp3", ".ogg", ".m4a", ".wav"}

// Config represents archive.org client configuration.
type Config struct {
	BaseURL string        // Override for tests
	Rows    int           // Search result count per query
	Timeout time.Duration
}

// Client searches archive.org audio items and verifies candidate files
// before handing their download URLs out.
type Client struct {
	baseURL    string
	rows       int
	httpClient *http.Client
}

type searchResponse struct {
	Response struct {
		Docs []struct {
			Identifier string `json:"identifier"`
			Title      string `json:"title"`
		} `json:"docs"`
	} `json:"response"`
}

// New creates a new archive.org client.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://archive.org"
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		rows:       cfg.Rows,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// FindAudio searches audio items for the query and returns the first
// download URL that verifies with a HEAD request.
func (c *Client) FindAudio(ctx context.Context, query string) (string, error) {
	docs, err := c.search(ctx, query)
	if err != nil {
		return "", err
	}

	for _, doc := range docs {
		for _, ext := range audioExtensions {
			dlURL := fmt.Sprintf("%s/download/%s/%s%s", c.baseURL, doc.Identifier, doc.Identifier, ext)
			if c.verify(ctx, dlURL) {
				zlog.Debug().Msgf("archive: verified audio: item=%s file=%s%s", doc.Identifier, doc.Identifier, ext)
				return dlURL, nil
			}
		}
	}
	return "", errors.Wrapf(ErrNoAudio, "query %q", query)
}

func (c *Client) search(ctx context.Context, query string) ([]struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
}, error) {
	q := url.Values{}
	q.Set("q", query+" AND mediatype:audio")
	q.Add("fl[]", "identifier")
	q.Add("fl[]", "title")
	q.Add("sort[]", "downloads desc")
	q.Set("rows", fmt.Sprintf("%d", c.rows))
	q.Set("page", "1")
	q.Set("output", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/advancedsearch.php?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "building search request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling archive.org search")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("archive.org search returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, errors.Wrap(err, "reading search response")
	}

	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, errors.Wrap(err, "decoding search response")
	}
	return sr.Response.Docs, nil
}

func (c *Client) verify(ctx context.Context, fileURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, fileURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
