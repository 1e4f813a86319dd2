// Package ytapi provides API-free YouTube and YouTube Music search without
// shelling out to yt-dlp. Faster than an extractor run but durations are
// only known for plain YouTube results.
package ytapi

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	zlog "github.com/rs/zerolog/log"
)

// ErrNotFound indicates the lookup produced no matching video.
var ErrNotFound = errors.New("ytapi: no matching video")

// Result is one search hit.
type Result struct {
	VideoID  string
	Title    string
	Uploader string
	Duration time.Duration // 0 when the backend does not report one
}

// Config represents search client configuration.
type Config struct {
	SearchTimeout time.Duration // Upper bound on a combined search
}

// Client merges results from the YouTube and YouTube Music search
// frontends.
type Client struct {
	searchTimeout time.Duration
}

// New creates a new search client.
func New(cfg Config) *Client {
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 2300 * time.Millisecond
	}
	return &Client{searchTimeout: cfg.SearchTimeout}
}

// QuickSearch runs both frontends in parallel and merges the results,
// YouTube hits first, deduplicated by video ID. Whatever arrived when the
// timeout fires is returned.
func (c *Client) QuickSearch(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 15
	}

	var (
		mu       sync.Mutex
		yt, ytm  []Result
		seen     = make(map[string]bool)
		wg       sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		sc := ytsearch.NewClient(nil)
		r, err := sc.Search(ctx, query)
		if err != nil {
			zlog.Debug().Msgf("ytapi: youtube search failed: %v", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, v := range r.Results {
			if v.VideoID == "" || seen[v.VideoID] {
				continue
			}
			seen[v.VideoID] = true
			yt = append(yt, Result{
				VideoID:  v.VideoID,
				Title:    v.Title,
				Uploader: v.Channel,
				Duration: parseDurationColon(v.Duration),
			})
		}
	}()
	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(query)
		r, err := s.Next()
		if err != nil {
			zlog.Debug().Msgf("ytapi: youtube music search failed: %v", err)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, v := range r.Tracks {
			if v.VideoID == "" || seen[v.VideoID] {
				continue
			}
			seen[v.VideoID] = true
			uploader := ""
			if len(v.Artists) > 0 {
				uploader = v.Artists[0].Name
			}
			ytm = append(ytm, Result{
				VideoID:  v.VideoID,
				Title:    v.Title,
				Uploader: uploader,
			})
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(c.searchTimeout):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	mu.Lock()
	defer mu.Unlock()
	merged := append(append([]Result{}, yt...), ytm...)
	if len(merged) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "query %q", query)
	}
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// LookupVideo resolves metadata for a known video ID by searching for it.
// The search frontend returns the exact video as a top result for ID
// queries.
func (c *Client) LookupVideo(ctx context.Context, videoID string) (*Result, error) {
	sc := ytsearch.NewClient(nil)
	res, err := sc.Search(ctx, videoID)
	if err != nil {
		return nil, errors.Wrap(err, "searching by video ID")
	}
	for _, r := range res.Results {
		if r.VideoID == videoID {
			return &Result{
				VideoID:  r.VideoID,
				Title:    r.Title,
				Uploader: r.Channel,
				Duration: parseDurationColon(r.Duration),
			}, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "video %s", videoID)
}

// parseDurationColon parses "3:20" or "1:05:20" style durations.
func parseDurationColon(s string) time.Duration {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return 0
		}
		nums[i] = n
	}
	if len(nums) == 3 {
		return time.Duration(nums[0])*time.Hour + time.Duration(nums[1])*time.Minute + time.Duration(nums[2])*time.Second
	}
	return time.Duration(nums[0])*time.Minute + time.Duration(nums[1])*time.Second
}
