package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/hayasaka/discbox/internal/app/transport"
	"github.com/hayasaka/discbox/internal/domain/track"
	"github.com/hayasaka/discbox/internal/infra/ytapi"
)

// QuickSearchClient defines the search frontend operations used by the
// strategy.
type QuickSearchClient interface {
	QuickSearch(ctx context.Context, query string, limit int) ([]ytapi.Result, error)
	LookupVideo(ctx context.Context, videoID string) (*ytapi.Result, error)
}

type YtAPIStrategyConfig struct {
	TimeoutSec int `yaml:"timeout_sec" mapstructure:"timeout_sec" default:"5" validate:"gte=1"`
}

// YtAPIStrategy resolves track metadata through the scrape-based search
// frontends. Metadata only; it cannot produce streams. Its searcher is the
// fast fallback when the extractor search fails.
type YtAPIStrategy struct {
	client  QuickSearchClient
	timeout time.Duration
}

// NewYtAPIStrategy creates a search-frontend backed strategy.
func NewYtAPIStrategy(settings map[string]any) (*YtAPIStrategy, error) {
	var config YtAPIStrategyConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	return &YtAPIStrategy{
		client:  ytapi.New(ytapi.Config{}),
		timeout: time.Duration(config.TimeoutSec) * time.Second,
	}, nil
}

// NewYtAPIStrategyWithClient wires a custom client, used in tests.
func NewYtAPIStrategyWithClient(client QuickSearchClient, timeout time.Duration) *YtAPIStrategy {
	return &YtAPIStrategy{client: client, timeout: timeout}
}

// Name returns the strategy name.
func (s *YtAPIStrategy) Name() string {
	return "ytsearch"
}

// Timeout bounds a single frontend call.
func (s *YtAPIStrategy) Timeout() time.Duration {
	return s.timeout
}

// ResolveInfo fetches metadata for a video URL by looking its ID up on the
// search frontend.
func (s *YtAPIStrategy) ResolveInfo(ctx context.Context, url string) (*track.Track, error) {
	id, ok := ExtractVideoID(url)
	if !ok {
		return nil, ErrStrategyUnsupported
	}
	r, err := s.client.LookupVideo(ctx, id)
	if err != nil {
		if errors.Is(err, ytapi.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "%v", err)
		}
		return nil, err
	}
	return &track.Track{
		Title:        r.Title,
		URL:          WatchURL(r.VideoID),
		Duration:     r.Duration,
		Uploader:     r.Uploader,
		ThumbnailURL: thumbnailURL(r.VideoID),
	}, nil
}

// ResolveSource is not supported; the frontends expose no media.
func (s *YtAPIStrategy) ResolveSource(context.Context, *track.Track) (*transport.AudioSource, error) {
	return nil, ErrStrategyUnsupported
}

// Search runs the combined quick search. Music catalog hits come without
// durations, so downstream duration filters pass them through.
func (s *YtAPIStrategy) Search(ctx context.Context, query string, opts SearchOptions) ([]*track.Track, error) {
	fetch := opts.Limit * 2
	if fetch < 5 {
		fetch = 5
	}
	results, err := s.client.QuickSearch(ctx, query, fetch)
	if err != nil {
		if errors.Is(err, ytapi.ErrNotFound) {
			return nil, errors.Wrapf(ErrNotFound, "%v", err)
		}
		return nil, err
	}
	tracks := make([]*track.Track, 0, len(results))
	for _, r := range results {
		tracks = append(tracks, &track.Track{
			Title:        r.Title,
			URL:          WatchURL(r.VideoID),
			Duration:     r.Duration,
			Uploader:     r.Uploader,
			ThumbnailURL: thumbnailURL(r.VideoID),
		})
	}
	return tracks, nil
}

func thumbnailURL(videoID string) string {
	return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg"
}
